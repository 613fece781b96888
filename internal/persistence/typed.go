package persistence

import (
	"fmt"
	"sort"

	"github.com/roach88/nostrcache/internal/model"
	"github.com/roach88/nostrcache/internal/store"
)

// Author returns the author with the given public key.
func (s *Scope) Author(key string) (model.Author, bool, error) {
	v, ok, err := s.Get(store.EntityAuthor, key)
	if err != nil || !ok {
		return model.Author{}, false, err
	}
	return store.AuthorFromValues(key, v), true, nil
}

// FindOrCreateAuthor returns the author, inserting an empty profile if it
// is not known yet.
func (s *Scope) FindOrCreateAuthor(key string) (model.Author, error) {
	a, ok, err := s.Author(key)
	if err != nil {
		return model.Author{}, err
	}
	if ok {
		return a, nil
	}
	if err := s.Insert(store.EntityAuthor, key, nil); err != nil {
		return model.Author{}, err
	}
	return model.Author{PublicKey: key}, nil
}

// UpsertProfile stores a's profile unless a newer one is already known.
// It returns true when the stored profile changed.
func (s *Scope) UpsertProfile(a model.Author) (bool, error) {
	a = a.Normalize()
	if a.PublicKey == "" {
		return false, fmt.Errorf("upsert profile: empty public key")
	}
	cur, ok, err := s.Author(a.PublicKey)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, s.Insert(store.EntityAuthor, a.PublicKey, store.AuthorValues(a))
	}
	if a.MetadataUpdatedAt < cur.MetadataUpdatedAt {
		return false, nil
	}
	if cur == a {
		return false, nil
	}
	_, err = s.Update(store.EntityAuthor, a.PublicKey, store.AuthorValues(a))
	return err == nil, err
}

// UpdateAuthor applies fn to the stored author and records only the fields
// fn changed. It returns false if the author is unknown.
func (s *Scope) UpdateAuthor(key string, fn func(*model.Author)) (bool, error) {
	a, ok, err := s.Author(key)
	if err != nil || !ok {
		return false, err
	}
	fn(&a)
	a.PublicKey = key
	return s.Update(store.EntityAuthor, key, store.AuthorValues(a))
}

// DeleteAuthor deletes the author and its outgoing follows. Its events stay.
func (s *Scope) DeleteAuthor(key string) error {
	return s.Delete(store.EntityAuthor, key)
}

// Event returns the event with its references in position order.
func (s *Scope) Event(id string) (model.Event, bool, error) {
	v, ok, err := s.Get(store.EntityEvent, id)
	if err != nil || !ok {
		return model.Event{}, false, err
	}
	e, err := store.EventFromValues(id, v)
	if err != nil {
		return model.Event{}, false, err
	}
	refs, err := s.References(id)
	if err != nil {
		return model.Event{}, false, err
	}
	e.References = refs
	return e, true, nil
}

// References returns the references owned by event id in position order.
func (s *Scope) References(id string) ([]model.EventReference, error) {
	keys, err := s.List(store.EntityEventReference, "referencing_id", id)
	if err != nil {
		return nil, err
	}
	refs := make([]model.EventReference, 0, len(keys))
	for _, k := range keys {
		v, ok, err := s.Get(store.EntityEventReference, k)
		if err != nil {
			return nil, err
		}
		if ok {
			refs = append(refs, store.ReferenceFromValues(v))
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Position < refs[j].Position })
	return refs, nil
}

// InsertEvent stores e and its references. Events are immutable: if e is
// already stored only an empty SeenOn is filled in, and false is returned.
func (s *Scope) InsertEvent(e model.Event) (bool, error) {
	if e.ID == "" {
		return false, fmt.Errorf("insert event: empty id")
	}
	cur, ok, err := s.Get(store.EntityEvent, e.ID)
	if err != nil {
		return false, err
	}
	if ok {
		if seen, _ := cur["seen_on"].(string); seen == "" && e.SeenOn != "" {
			if _, err := s.Update(store.EntityEvent, e.ID, store.Values{"seen_on": e.SeenOn}); err != nil {
				return false, err
			}
		}
		return false, nil
	}

	vals, err := store.EventValues(e)
	if err != nil {
		return false, err
	}
	if err := s.Insert(store.EntityEvent, e.ID, vals); err != nil {
		return false, err
	}
	for _, r := range e.References {
		r.ReferencingID = e.ID
		if err := s.Insert(store.EntityEventReference, r.Key(), store.ReferenceValues(r)); err != nil {
			return false, err
		}
	}
	return true, nil
}

// DeleteEvent deletes the event and its references.
func (s *Scope) DeleteEvent(id string) error {
	return s.Delete(store.EntityEvent, id)
}

// EventsByAuthor returns the author's events, newest first.
func (s *Scope) EventsByAuthor(key string) ([]model.Event, error) {
	ids, err := s.List(store.EntityEvent, "author_key", key)
	if err != nil {
		return nil, err
	}
	return s.events(ids)
}

// Replies returns the events that reference id, newest first.
func (s *Scope) Replies(id string) ([]model.Event, error) {
	keys, err := s.List(store.EntityEventReference, "event_id", id)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(keys))
	var ids []string
	for _, k := range keys {
		v, ok, err := s.Get(store.EntityEventReference, k)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		ref := store.ReferenceFromValues(v)
		if !seen[ref.ReferencingID] {
			seen[ref.ReferencingID] = true
			ids = append(ids, ref.ReferencingID)
		}
	}
	return s.events(ids)
}

func (s *Scope) events(ids []string) ([]model.Event, error) {
	out := make([]model.Event, 0, len(ids))
	for _, id := range ids {
		e, ok, err := s.Event(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Follows returns the outgoing follow edges of source.
func (s *Scope) Follows(source string) ([]model.Follow, error) {
	return s.follows("source_key", source)
}

// Followers returns the follow edges pointing at destination.
func (s *Scope) Followers(destination string) ([]model.Follow, error) {
	return s.follows("destination_key", destination)
}

func (s *Scope) follows(column, key string) ([]model.Follow, error) {
	keys, err := s.List(store.EntityFollow, column, key)
	if err != nil {
		return nil, err
	}
	out := make([]model.Follow, 0, len(keys))
	for _, k := range keys {
		v, ok, err := s.Get(store.EntityFollow, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, store.FollowFromValues(v))
		}
	}
	return out, nil
}

// Followees returns the destination keys source follows.
func (s *Scope) Followees(source string) ([]string, error) {
	follows, err := s.Follows(source)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(follows))
	for i, f := range follows {
		out[i] = f.DestinationKey
	}
	sort.Strings(out)
	return out, nil
}

// SetFollows replaces the outgoing follow edges of source with follows.
// The source author is created if needed. Edges that did not change are
// left alone.
func (s *Scope) SetFollows(source string, follows []model.Follow) error {
	if _, err := s.FindOrCreateAuthor(source); err != nil {
		return err
	}

	current, err := s.List(store.EntityFollow, "source_key", source)
	if err != nil {
		return err
	}
	want := make(map[string]model.Follow, len(follows))
	for _, f := range follows {
		f.SourceKey = source
		if f.DestinationKey == "" {
			continue
		}
		if _, dup := want[f.Key()]; !dup {
			want[f.Key()] = f
		}
	}

	for _, key := range current {
		if _, keep := want[key]; !keep {
			if err := s.Delete(store.EntityFollow, key); err != nil {
				return err
			}
		}
	}
	for key, f := range want {
		if _, err := s.Upsert(store.EntityFollow, key, store.FollowValues(f)); err != nil {
			return err
		}
	}
	return nil
}
