package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/nostrcache/internal/diag"
	"github.com/roach88/nostrcache/internal/retention"
	"github.com/roach88/nostrcache/internal/store"
)

// SweepReport describes one retention sweep.
type SweepReport struct {
	Anchor   string
	Plan     retention.Plan
	Deleted  map[string]int
	Duration time.Duration
}

// snapshotGraph walks the committed social graph for the retention planner.
// It reads inside the sweep's commit transaction.
type snapshotGraph struct {
	sn *store.Snapshot
}

var _ retention.Graph = snapshotGraph{}

func (g snapshotGraph) Followees(ctx context.Context, authors []string) ([]string, error) {
	return g.sn.Project(ctx, store.EntityFollow, "destination_key", "source_key", authors)
}

func (g snapshotGraph) EventsByAuthors(ctx context.Context, authors []string) ([]string, error) {
	return g.sn.Project(ctx, store.EntityEvent, "id", "author_key", authors)
}

func (g snapshotGraph) ReferencedEvents(ctx context.Context, events []string) ([]string, error) {
	return g.sn.Project(ctx, store.EntityEventReference, "event_id", "referencing_id", events)
}

func (g snapshotGraph) AuthorsOfEvents(ctx context.Context, events []string) ([]string, error) {
	return g.sn.Project(ctx, store.EntityEvent, "author_key", "id", events)
}

func (g snapshotGraph) AllAuthors(ctx context.Context) ([]string, error) {
	return g.sn.Keys(ctx, store.EntityAuthor)
}

func (g snapshotGraph) AllEvents(ctx context.Context) ([]string, error) {
	return g.sn.Keys(ctx, store.EntityEvent)
}

// Sweep deletes every author and event that is not relevant to anchor, in
// one fresh background context and one commit. The graph is planned inside
// the commit's transaction, so rows saved by other contexts while the sweep
// runs are either seen by the planner or saved after the deletes. An empty
// anchor does nothing. On error nothing is deleted.
func (c *Controller) Sweep(ctx context.Context, anchor string) (SweepReport, error) {
	report := SweepReport{Anchor: anchor, Deleted: map[string]int{}}
	if anchor == "" {
		return report, nil
	}

	start := time.Now()
	bg := c.NewBackgroundContext("cleanup")
	defer bg.Close()

	err := bg.Perform(ctx, func(s *Scope) error {
		committed, err := s.CommitPlanned(func(ctx context.Context, sn *store.Snapshot) error {
			plan, err := retention.PlanSweep(ctx, snapshotGraph{sn: sn}, anchor, c.Retention())
			if err != nil {
				return fmt.Errorf("plan: %w", err)
			}
			report.Plan = plan

			for _, id := range plan.DeleteEvents {
				if err := s.DeleteEvent(id); err != nil {
					return err
				}
			}
			for _, key := range plan.DeleteAuthors {
				if err := s.DeleteAuthor(key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		report.Deleted = committed.Deleted()
		return nil
	})
	if err != nil {
		return SweepReport{}, fmt.Errorf("sweep for %s: %w", anchor, err)
	}

	report.Duration = time.Since(start)
	diag.RecordSweep(report.Duration, report.Deleted)
	return report, nil
}

// CleanupEntities runs a retention sweep for the current user. Errors are
// logged and reported to diagnostics, never returned: eviction failing
// must not break the caller.
func (c *Controller) CleanupEntities(ctx context.Context, anchor string) {
	if anchor == "" {
		c.logger.Debug("skipping cleanup: no current user")
		return
	}

	report, err := c.Sweep(ctx, anchor)
	if err != nil {
		c.logger.Error("cleanup failed", "anchor", anchor, "error", err)
		ev := diag.Error(diag.KindSweepFailed, "cleanup failed", err)
		ev.Attrs = map[string]string{"anchor": anchor}
		c.reporter.Report(ev)
		return
	}

	c.logger.Info("cleanup finished",
		"anchor", anchor,
		"kept_authors", report.Plan.KeptAuthors,
		"kept_events", report.Plan.KeptEvents,
		"deleted_authors", report.Deleted[store.EntityAuthor],
		"deleted_events", report.Deleted[store.EntityEvent],
		"duration", report.Duration,
	)
}
