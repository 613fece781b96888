package persistence

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/roach88/nostrcache/internal/store"
)

// Dispatcher fans committed change sets out to every open context except
// the one that committed them.
//
// Publish is called by the store while its writer gate is held, so every
// subscriber receives change sets in commit order. Delivery only enqueues a
// merge job and never blocks.
type Dispatcher struct {
	subs *xsync.MapOf[string, *Context]
}

// NewDispatcher creates a dispatcher with no subscribers.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{subs: xsync.NewMapOf[string, *Context]()}
}

// Subscribe registers c for change sets committed by other contexts.
func (d *Dispatcher) Subscribe(c *Context) {
	d.subs.Store(c.ID(), c)
}

// Unsubscribe removes the context with the given id.
func (d *Dispatcher) Unsubscribe(id string) {
	d.subs.Delete(id)
}

// Publish delivers cs to every subscriber but its origin.
func (d *Dispatcher) Publish(cs store.ChangeSet) {
	if cs.Empty() {
		return
	}
	d.subs.Range(func(id string, c *Context) bool {
		if id != cs.Origin {
			c.enqueueMerge(cs)
		}
		return true
	})
}

// Contexts returns every subscribed context.
func (d *Dispatcher) Contexts() []*Context {
	out := make([]*Context, 0, d.subs.Size())
	d.subs.Range(func(_ string, c *Context) bool {
		out = append(out, c)
		return true
	})
	return out
}

// Len returns the number of subscribers.
func (d *Dispatcher) Len() int { return d.subs.Size() }
