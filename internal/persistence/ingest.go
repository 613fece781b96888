package persistence

import (
	"context"
	"fmt"

	"github.com/roach88/nostrcache/internal/diag"
	"github.com/roach88/nostrcache/internal/model"
	"github.com/roach88/nostrcache/internal/store"
	"github.com/roach88/nostrcache/internal/thread"
)

// Batch is a set of already validated entities received from one relay.
type Batch struct {
	// Source is the relay URL the batch came from. It is recorded as the
	// first relay an event was seen on.
	Source  string
	Events  []model.Event
	Authors []model.Author
}

// IngestResult counts what one batch did.
type IngestResult struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Profiles   int `json:"profiles"`
	Follows    int `json:"follows"`
}

// Ingest writes b through the parse context and saves it in one commit.
// Events are upserted by id, so ingesting the same batch twice stores each
// event once. Metadata events update the author's profile when they are
// newer than the stored one; contact lists replace the author's follows
// when they are the newest contact list known for that author.
//
// Public keys and event ids are stored lowercase whatever case the relay
// sent them in.
//
// On error nothing of the batch is persisted.
func (c *Controller) Ingest(ctx context.Context, b Batch) (IngestResult, error) {
	var res IngestResult
	err := c.parse.Perform(ctx, func(s *Scope) error {
		res = IngestResult{}
		if err := c.ingest(s, b, &res); err != nil {
			s.Rollback()
			return err
		}
		if err := s.Save(); err != nil {
			s.Rollback()
			return err
		}
		return nil
	})
	if err != nil {
		return IngestResult{}, fmt.Errorf("ingest from %q: %w", b.Source, err)
	}

	diag.RecordIngested("inserted", res.Inserted)
	diag.RecordIngested("duplicate", res.Duplicates)
	c.logger.Debug("ingested batch",
		"source", b.Source,
		"inserted", res.Inserted,
		"duplicates", res.Duplicates,
		"profiles", res.Profiles,
		"follows", res.Follows,
	)
	return res, nil
}

func (c *Controller) ingest(s *Scope, b Batch, res *IngestResult) error {
	policy := c.ThreadPolicy()

	for _, a := range b.Authors {
		changed, err := s.UpsertProfile(a)
		if err != nil {
			return fmt.Errorf("author %s: %w", a.PublicKey, err)
		}
		if changed {
			res.Profiles++
		}
	}

	for _, e := range b.Events {
		e = e.NormalizeKeys()
		if e.References == nil {
			e.References = model.ReferencesFromTags(e.ID, e.Tags)
		}
		e.RootID = thread.RootNoteID(e.References, policy)
		e.ReplyToID = thread.ReplyToID(e.References, policy)
		if e.SeenOn == "" {
			e.SeenOn = b.Source
		}

		inserted, err := s.InsertEvent(e)
		if err != nil {
			return fmt.Errorf("event %s: %w", e.ID, err)
		}
		if !inserted {
			res.Duplicates++
			continue
		}
		res.Inserted++

		if e.AuthorKey != "" {
			if _, err := s.FindOrCreateAuthor(e.AuthorKey); err != nil {
				return fmt.Errorf("author of %s: %w", e.ID, err)
			}
		}

		switch e.Kind {
		case model.KindMetadata:
			a, err := model.AuthorFromMetadata(e)
			if err != nil {
				// Malformed profiles are common on the network; keep the event.
				c.logger.Debug("ignoring malformed metadata", "event", e.ID, "error", err)
				continue
			}
			changed, err := s.UpsertProfile(a)
			if err != nil {
				return fmt.Errorf("profile of %s: %w", e.ID, err)
			}
			if changed {
				res.Profiles++
			}

		case model.KindContactList:
			newest, err := c.isNewestContactList(s, e)
			if err != nil {
				return err
			}
			if !newest {
				continue
			}
			follows := model.FollowsFromContactList(e)
			if err := s.SetFollows(e.AuthorKey, follows); err != nil {
				return fmt.Errorf("follows of %s: %w", e.ID, err)
			}
			res.Follows += len(follows)
		}
	}
	return nil
}

// isNewestContactList reports whether e is the newest contact list of its
// author this context knows about.
func (c *Controller) isNewestContactList(s *Scope, e model.Event) (bool, error) {
	ids, err := s.List(store.EntityEvent, "author_key", e.AuthorKey)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == e.ID {
			continue
		}
		v, ok, err := s.Get(store.EntityEvent, id)
		if err != nil {
			return false, err
		}
		kind, _ := v["kind"].(int64)
		if !ok || model.Kind(kind) != model.KindContactList {
			continue
		}
		if createdAt, _ := v["created_at"].(int64); createdAt > e.CreatedAt {
			return false, nil
		}
	}
	return true, nil
}
