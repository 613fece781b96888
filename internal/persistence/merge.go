package persistence

import (
	"github.com/roach88/nostrcache/internal/diag"
	"github.com/roach88/nostrcache/internal/store"
)

// merge applies a change set committed by another context. It runs on the
// receiving context's worker, in global commit order.
//
// Only registered objects are refreshed; rows this context never touched
// are read from the store on demand anyway.
func (c *Context) merge(cs store.ChangeSet) {
	storeWins := c.Policy() == MergeByPropertyStoreWins
	refreshed := 0

	for _, ch := range cs.Changes {
		k := objectKey{entity: ch.Entity, key: ch.Key}
		o, ok := c.graph[k]
		if !ok {
			continue
		}
		refreshed++

		switch ch.Op {
		case store.OpDelete:
			if o.inserted && !storeWins {
				// The local insert recreates the row when this context saves.
				// Columns it does not write come back as table defaults.
				if ent, err := store.Lookup(ch.Entity); err == nil {
					for col, v := range ent.Zero() {
						if !o.dirty[col] {
							o.values[col] = v
						}
					}
				}
				continue
			}
			delete(c.graph, k)

		case store.OpUpsert:
			if o.deleted || o.values == nil {
				if storeWins {
					delete(c.graph, k)
				}
				continue
			}
			for col, v := range ch.Values {
				if o.dirty[col] {
					if storeWins {
						o.values[col] = v
						delete(o.dirty, col)
					}
					continue
				}
				o.values[col] = v
			}
			if storeWins && o.inserted {
				// The row exists now; remaining dirty columns become plain updates.
				o.inserted = false
			}
		}
	}

	c.merged.Store(cs.Seq)
	diag.RecordMerge()
	c.logger.Debug("merged", "changeset", cs.ID, "seq", cs.Seq, "refreshed", refreshed)

	c.observersMu.Lock()
	observers := append([]func(store.ChangeSet){}, c.observers...)
	c.observersMu.Unlock()
	for _, fn := range observers {
		c.notify(fn, cs)
	}
}

// notify runs one observer. A panicking observer is logged and skipped so
// the worker and the remaining observers keep running.
func (c *Context) notify(fn func(store.ChangeSet), cs store.ChangeSet) {
	defer func() {
		if r := recover(); r != nil {
			err := &PanicError{Context: c.name, Value: r}
			c.logger.Error("observer panicked", "changeset", cs.ID, "panic", r, "error", err)
		}
	}()
	fn(cs)
}
