package persistence

import (
	"context"
	"fmt"

	"github.com/roach88/nostrcache/internal/fixture"
	"github.com/roach88/nostrcache/internal/model"
	"github.com/roach88/nostrcache/internal/store"
)

// LoadSampleData replaces every stored event with the fixture's data in
// pc and saves it. currentUser, if set, is made to follow every author of
// the fixture so that a retention sweep keeps the sample.
func (c *Controller) LoadSampleData(ctx context.Context, pc *Context, fx *fixture.Fixture, currentUser string) error {
	err := pc.Perform(ctx, func(s *Scope) error {
		ids, err := s.All(store.EntityEvent)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := s.DeleteEvent(id); err != nil {
				return err
			}
		}
		// Deletes go in first so re-inserting the same ids works.
		if err := s.Save(); err != nil {
			s.Rollback()
			return err
		}

		var res IngestResult
		if err := c.ingest(s, Batch{Source: fx.Source, Events: fx.Events, Authors: fx.Authors}, &res); err != nil {
			s.Rollback()
			return err
		}
		for source, follows := range fx.FollowsBySource() {
			if err := s.SetFollows(source, follows); err != nil {
				s.Rollback()
				return err
			}
		}

		if currentUser != "" {
			follows, err := s.Follows(currentUser)
			if err != nil {
				s.Rollback()
				return err
			}
			have := make(map[string]bool, len(follows))
			for _, f := range follows {
				have[f.DestinationKey] = true
			}
			for _, key := range fx.AuthorKeys() {
				if key != currentUser && !have[key] {
					follows = append(follows, model.Follow{SourceKey: currentUser, DestinationKey: key})
				}
			}
			if err := s.SetFollows(currentUser, follows); err != nil {
				s.Rollback()
				return err
			}
		}

		if err := s.Save(); err != nil {
			s.Rollback()
			return err
		}
		c.logger.Info("loaded sample data", "fixture", fx.Name, "events", len(fx.Events), "inserted", res.Inserted)
		return nil
	})
	if err != nil {
		return fmt.Errorf("load sample data %s: %w", fx.Name, err)
	}
	return nil
}
