package persistence

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/roach88/nostrcache/internal/diag"
	"github.com/roach88/nostrcache/internal/store"
)

type objectKey struct {
	entity string
	key    string
}

// object is one registered row in a context's graph.
type object struct {
	values   store.Values
	dirty    map[string]bool
	inserted bool
	deleted  bool
}

func (o *object) changed() bool {
	return o.inserted || o.deleted || len(o.dirty) > 0
}

// value returns the column value, treating the key column specially.
func (o *object) value(ent store.Entity, key, column string) any {
	if column == ent.Key {
		return key
	}
	return o.values[column]
}

func (o *object) set(column string, v any) {
	if o.values == nil {
		o.values = store.Values{}
	}
	if o.dirty == nil {
		o.dirty = make(map[string]bool)
	}
	o.values[column] = v
	o.dirty[column] = true
}

// Scope is the view of a context's graph handed to a Perform callback.
// It must not be retained after the callback returns.
type Scope struct {
	ctx context.Context
	c   *Context
}

// Context returns the context.Context the job runs under.
func (s *Scope) Context() context.Context { return s.ctx }

// Owner returns the context the scope belongs to.
func (s *Scope) Owner() *Context { return s.c }

// lookup returns the registered object, faulting it in from the store if
// needed. It returns nil when the row exists nowhere.
func (s *Scope) lookup(entity, key string) (*object, error) {
	k := objectKey{entity: entity, key: key}
	if o, ok := s.c.graph[k]; ok {
		return o, nil
	}

	var (
		vals  store.Values
		found bool
	)
	err := s.c.ctrl.withStore(func(st *store.Store) error {
		var err error
		vals, found, err = st.Get(s.ctx, entity, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	o := &object{values: vals}
	s.c.graph[k] = o
	return o, nil
}

// Get returns a copy of the row's values as this context sees them.
func (s *Scope) Get(entity, key string) (store.Values, bool, error) {
	if _, err := store.Lookup(entity); err != nil {
		return nil, false, err
	}
	o, err := s.lookup(entity, key)
	if err != nil {
		return nil, false, err
	}
	if o == nil || o.deleted {
		return nil, false, nil
	}
	return copyValues(o.values), true, nil
}

// Exists reports whether the row is visible in this context.
func (s *Scope) Exists(entity, key string) (bool, error) {
	_, ok, err := s.Get(entity, key)
	return ok, err
}

// Insert registers a new row. Only the columns in values are written;
// columns missing from values read as their zero value here and keep the
// stored value if another context created the row first. Inserting a row
// already visible in the context updates it instead. Inserting a row this
// context deleted replaces it, so every column is written.
func (s *Scope) Insert(entity, key string, values store.Values) error {
	ent, err := store.Lookup(entity)
	if err != nil {
		return err
	}
	vals, err := normalizeValues(ent, values)
	if err != nil {
		return err
	}

	k := objectKey{entity: entity, key: key}
	prev, registered := s.c.graph[k]
	if registered && !prev.deleted {
		applyValues(prev, vals)
		return nil
	}

	o := &object{values: ent.Zero(), dirty: make(map[string]bool, len(vals)), inserted: true}
	for col, v := range vals {
		o.values[col] = v
		o.dirty[col] = true
	}
	if registered {
		for _, col := range ent.Columns {
			o.dirty[col.Name] = true
		}
	}
	s.c.graph[k] = o
	return nil
}

// Update changes the given columns of an existing row. Only columns whose
// value actually changes are marked modified. It returns false if the row
// is not visible.
func (s *Scope) Update(entity, key string, values store.Values) (bool, error) {
	ent, err := store.Lookup(entity)
	if err != nil {
		return false, err
	}
	vals, err := normalizeValues(ent, values)
	if err != nil {
		return false, err
	}
	o, err := s.lookup(entity, key)
	if err != nil {
		return false, err
	}
	if o == nil || o.deleted {
		return false, nil
	}
	applyValues(o, vals)
	return true, nil
}

// Upsert updates the row if it is visible and inserts it otherwise.
// It returns true when a new row was inserted.
func (s *Scope) Upsert(entity, key string, values store.Values) (bool, error) {
	updated, err := s.Update(entity, key, values)
	if err != nil {
		return false, err
	}
	if updated {
		return false, nil
	}
	return true, s.Insert(entity, key, values)
}

// Delete marks the row for deletion. Deleting an absent row is a no-op at
// commit time.
func (s *Scope) Delete(entity, key string) error {
	if _, err := store.Lookup(entity); err != nil {
		return err
	}
	k := objectKey{entity: entity, key: key}
	o, ok := s.c.graph[k]
	if !ok {
		o = &object{}
		s.c.graph[k] = o
	}
	o.deleted = true
	o.inserted = false
	o.dirty = nil
	return nil
}

// List returns the keys of rows whose column equals value, as this context
// sees them: committed rows overlaid with registered objects.
func (s *Scope) List(entity, column, value string) ([]string, error) {
	ent, err := store.Lookup(entity)
	if err != nil {
		return nil, err
	}
	if column != ent.Key {
		col, ok := ent.Column(column)
		if !ok || col.Int {
			return nil, fmt.Errorf("list %s: %q is not a text column", entity, column)
		}
	}

	var keys []string
	err = s.c.ctrl.withStore(func(st *store.Store) error {
		var err error
		keys, err = st.KeysWhere(s.ctx, entity, column, []string{value})
		return err
	})
	if err != nil {
		return nil, err
	}

	return s.overlay(ent, keys, func(key string, o *object) bool {
		return o.value(ent, key, column) == value
	}), nil
}

// All returns every key of entity as this context sees it.
func (s *Scope) All(entity string) ([]string, error) {
	ent, err := store.Lookup(entity)
	if err != nil {
		return nil, err
	}
	var keys []string
	err = s.c.ctrl.withStore(func(st *store.Store) error {
		var err error
		keys, err = st.Keys(s.ctx, entity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.overlay(ent, keys, func(string, *object) bool { return true }), nil
}

// overlay merges committed keys with the graph. Registered objects decide
// for themselves through match; deleted objects are hidden.
func (s *Scope) overlay(ent store.Entity, committed []string, match func(string, *object) bool) []string {
	set := make(map[string]struct{}, len(committed))
	for _, key := range committed {
		if o, ok := s.c.graph[objectKey{entity: ent.Name, key: key}]; ok {
			if o.deleted || o.values == nil || !match(key, o) {
				continue
			}
		}
		set[key] = struct{}{}
	}
	for k, o := range s.c.graph {
		if k.entity != ent.Name || o.deleted || o.values == nil {
			continue
		}
		if match(k.key, o) {
			set[k.key] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of committed rows of entity.
func (s *Scope) Count(entity string) (int, error) {
	var n int
	err := s.c.ctrl.withStore(func(st *store.Store) error {
		var err error
		n, err = st.Count(s.ctx, entity)
		return err
	})
	return n, err
}

// HasChanges reports whether any registered object is modified.
func (s *Scope) HasChanges() bool {
	for _, o := range s.c.graph {
		if o.changed() {
			return true
		}
	}
	return false
}

// Save commits every pending change in one transaction and publishes the
// committed change set to the other contexts. Saving without changes does
// nothing. On failure the pending changes are kept so the caller can retry
// or roll back.
func (s *Scope) Save() error {
	_, err := s.Commit()
	return err
}

// Commit is Save returning the committed change set, cascaded deletes
// included. Without pending changes it returns an empty change set.
func (s *Scope) Commit() (store.ChangeSet, error) {
	if !s.HasChanges() {
		diag.RecordSaveSkipped()
		return store.ChangeSet{}, nil
	}

	cs := s.changeSet()
	var committed store.ChangeSet
	err := s.c.ctrl.withStore(func(st *store.Store) error {
		var err error
		committed, err = st.Commit(s.ctx, cs, s.c.ctrl.dispatcher.Publish)
		return err
	})
	return s.finishCommit(len(cs.Changes), committed, err)
}

// CommitPlanned stages changes with plan and commits them in the same store
// transaction. plan reads the committed data through the snapshot and stages
// changes on the scope; no other commit can land between its reads and the
// commit. The snapshot sees only committed data, never this context's
// pending changes. If plan fails the staged changes are rolled back.
func (s *Scope) CommitPlanned(plan func(ctx context.Context, sn *store.Snapshot) error) (store.ChangeSet, error) {
	var (
		staged    int
		committed store.ChangeSet
		planErr   error
	)
	err := s.c.ctrl.withStore(func(st *store.Store) error {
		var err error
		committed, err = st.CommitPlanned(s.ctx, func(ctx context.Context, sn *store.Snapshot) (store.ChangeSet, error) {
			if planErr = plan(ctx, sn); planErr != nil {
				return store.ChangeSet{}, planErr
			}
			cs := s.changeSet()
			staged = len(cs.Changes)
			return cs, nil
		}, s.c.ctrl.dispatcher.Publish)
		return err
	})
	if planErr != nil {
		s.Rollback()
		return store.ChangeSet{}, planErr
	}
	return s.finishCommit(staged, committed, err)
}

func (s *Scope) finishCommit(staged int, committed store.ChangeSet, err error) (store.ChangeSet, error) {
	if err != nil {
		s.c.logger.Error("save failed", "changes", staged, "error", err)
		ev := diag.Error(diag.KindSaveFailed, "save failed", err)
		ev.Attrs = map[string]string{"context": s.c.name}
		s.c.ctrl.reporter.Report(ev)
		return store.ChangeSet{}, fmt.Errorf("save %s: %w", s.c.name, err)
	}

	s.markSaved(committed)
	s.c.logger.Debug("saved", "changeset", committed.ID, "seq", committed.Seq, "changes", len(committed.Changes))
	return committed, nil
}

// changeSet builds the change set for the pending changes in a stable order.
func (s *Scope) changeSet() store.ChangeSet {
	keys := make([]objectKey, 0, len(s.c.graph))
	for k, o := range s.c.graph {
		if o.changed() {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].entity != keys[j].entity {
			return keys[i].entity < keys[j].entity
		}
		return keys[i].key < keys[j].key
	})

	cs := store.ChangeSet{ID: uuid.Must(uuid.NewV7()).String(), Origin: s.c.id}
	for _, k := range keys {
		o := s.c.graph[k]
		switch {
		case o.deleted:
			cs.Changes = append(cs.Changes, store.Change{Entity: k.entity, Key: k.key, Op: store.OpDelete})
		default:
			vals := make(store.Values, len(o.dirty))
			for col := range o.dirty {
				vals[col] = o.values[col]
			}
			cs.Changes = append(cs.Changes, store.Change{
				Entity: k.entity, Key: k.key, Op: store.OpUpsert, Inserted: o.inserted, Values: vals,
			})
		}
	}
	return cs
}

func (s *Scope) markSaved(committed store.ChangeSet) {
	for k, o := range s.c.graph {
		if o.deleted {
			delete(s.c.graph, k)
			continue
		}
		o.inserted = false
		o.dirty = nil
	}
	for _, ch := range committed.Changes {
		if ch.Op == store.OpDelete {
			delete(s.c.graph, objectKey{entity: ch.Entity, key: ch.Key})
		}
	}
}

// Rollback discards pending changes. Modified objects are forgotten and
// will be fetched again on next access.
func (s *Scope) Rollback() {
	for k, o := range s.c.graph {
		if o.changed() {
			delete(s.c.graph, k)
		}
	}
}

// Reset forgets every registered object.
func (s *Scope) Reset() {
	s.c.graph = make(map[objectKey]*object)
}

func applyValues(o *object, vals store.Values) {
	for col, v := range vals {
		if cur, ok := o.values[col]; ok && cur == v {
			continue
		}
		o.set(col, v)
	}
}

func copyValues(v store.Values) store.Values {
	out := make(store.Values, len(v))
	for k, x := range v {
		out[k] = x
	}
	return out
}

// normalizeValues checks columns against the schema and converts Go
// integer types to int64 so that values compare equal to fetched ones.
func normalizeValues(ent store.Entity, values store.Values) (store.Values, error) {
	out := make(store.Values, len(values))
	for name, v := range values {
		if name == ent.Key {
			continue
		}
		col, ok := ent.Column(name)
		if !ok {
			return nil, fmt.Errorf("%s has no column %q", ent.Name, name)
		}
		if col.Int {
			switch n := v.(type) {
			case int64:
				out[name] = n
			case int:
				out[name] = int64(n)
			case int32:
				out[name] = int64(n)
			default:
				return nil, fmt.Errorf("%s.%s: want integer, got %T", ent.Name, name, v)
			}
			continue
		}
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s.%s: want string, got %T", ent.Name, name, v)
		}
		out[name] = str
	}
	return out, nil
}
