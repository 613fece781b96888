package persistence

import (
	"context"
	"fmt"

	"github.com/roach88/nostrcache/internal/diag"
	"github.com/roach88/nostrcache/internal/store"
)

// EntityCount is the number of stored rows of one entity.
type EntityCount struct {
	Entity string `json:"entity"`
	Count  int    `json:"count"`
}

// Statistics counts the committed rows of every entity, sorted by entity
// name. It runs on a fresh background context. Failures are logged and
// reported to diagnostics before being returned.
func (c *Controller) Statistics(ctx context.Context) ([]EntityCount, error) {
	bg := c.NewBackgroundContext("statistics")
	defer bg.Close()

	var out []EntityCount
	err := bg.Perform(ctx, func(s *Scope) error {
		out = out[:0]
		for _, ent := range store.Entities() {
			n, err := s.Count(ent.Name)
			if err != nil {
				return fmt.Errorf("count %s: %w", ent.Name, err)
			}
			out = append(out, EntityCount{Entity: ent.Name, Count: n})
		}
		return nil
	})
	if err != nil {
		c.logger.Error("statistics failed", "error", err)
		c.reporter.Report(diag.Error(diag.KindStatisticsFailed, "statistics failed", err))
		return nil, err
	}
	return out, nil
}

// NonEmpty drops entities without rows.
func NonEmpty(counts []EntityCount) []EntityCount {
	var out []EntityCount
	for _, ec := range counts {
		if ec.Count > 0 {
			out = append(out, ec)
		}
	}
	return out
}
