package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/roach88/nostrcache/internal/store"
)

// Kind is the role of a context in the pool.
type Kind int

const (
	// KindView is the primary context serving reads to the UI.
	KindView Kind = iota + 1
	// KindParse is the long-lived ingestion context.
	KindParse
	// KindBackground is an ad hoc or long-lived background context.
	KindBackground
)

func (k Kind) String() string {
	switch k {
	case KindView:
		return "view"
	case KindParse:
		return "parse"
	case KindBackground:
		return "background"
	default:
		return "unknown"
	}
}

// MergePolicy decides what happens when a committed change set from another
// context touches a field this context has modified but not saved.
type MergePolicy int

const (
	// MergeByPropertyCommitterWins keeps locally modified fields. They
	// overwrite the stored values when this context saves.
	MergeByPropertyCommitterWins MergePolicy = iota
	// MergeByPropertyStoreWins replaces locally modified fields with the
	// committed values and forgets the local modification.
	MergeByPropertyStoreWins
)

func (p MergePolicy) String() string {
	switch p {
	case MergeByPropertyCommitterWins:
		return "committer-wins"
	case MergeByPropertyStoreWins:
		return "store-wins"
	default:
		return "unknown"
	}
}

// Context is an isolated object graph with its own serial work queue.
//
// All reads and writes of the graph happen inside Perform, on the context's
// worker goroutine. Jobs of one context run strictly in submission order;
// jobs of different contexts run in parallel.
type Context struct {
	id     string
	name   string
	kind   Kind
	ctrl   *Controller
	logger *slog.Logger

	policy atomic.Int32
	queue  *jobQueue
	done   chan struct{}
	closed atomic.Bool
	merged atomic.Int64

	// graph is owned by the worker goroutine.
	graph map[objectKey]*object

	observersMu sync.Mutex
	observers   []func(store.ChangeSet)
}

func newContext(ctrl *Controller, name string, kind Kind, policy MergePolicy) *Context {
	c := &Context{
		id:     uuid.Must(uuid.NewV7()).String(),
		name:   name,
		kind:   kind,
		ctrl:   ctrl,
		logger: ctrl.logger.With("context", name),
		queue:  newJobQueue(),
		done:   make(chan struct{}),
		graph:  make(map[objectKey]*object),
	}
	c.policy.Store(int32(policy))
	go c.run()
	return c
}

// run drains the queue until it is closed.
func (c *Context) run() {
	defer close(c.done)
	for {
		j, ok := c.queue.Dequeue()
		if !ok {
			return
		}
		j()
	}
}

// ID returns the unique id of the context. Change sets carry it as their origin.
func (c *Context) ID() string { return c.id }

// Name returns the human readable name.
func (c *Context) Name() string { return c.name }

// Kind returns the role of the context.
func (c *Context) Kind() Kind { return c.kind }

// Policy returns the current merge policy.
func (c *Context) Policy() MergePolicy { return MergePolicy(c.policy.Load()) }

// SetPolicy changes the merge policy for merges applied from now on.
func (c *Context) SetPolicy(p MergePolicy) { c.policy.Store(int32(p)) }

// LastMergedSeq returns the commit sequence number of the last change set
// merged into this context.
func (c *Context) LastMergedSeq() int64 { return c.merged.Load() }

// Done is closed when the worker has exited after Close.
func (c *Context) Done() <-chan struct{} { return c.done }

// Perform runs fn on the context's queue and waits for it.
//
// If ctx is cancelled before fn finishes, Perform returns ctx.Err()
// immediately. The job itself keeps running to completion on the queue and
// sees the same ctx, so store operations inside it fail fast and roll back.
func (c *Context) Perform(ctx context.Context, fn func(*Scope) error) error {
	if c.closed.Load() {
		return ErrContextClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	result := make(chan error, 1)
	ok := c.queue.Enqueue(func() {
		result <- c.runJob(ctx, fn)
	})
	if !ok {
		return ErrContextClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Context) runJob(ctx context.Context, fn func(*Scope) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("job panicked", "panic", r)
			err = &PanicError{Context: c.name, Value: r}
		}
	}()
	return fn(&Scope{ctx: ctx, c: c})
}

// Save commits the context's pending changes. See Scope.Save.
func (c *Context) Save(ctx context.Context) error {
	return c.Perform(ctx, func(s *Scope) error { return s.Save() })
}

// Rollback discards the context's pending changes.
func (c *Context) Rollback(ctx context.Context) error {
	return c.Perform(ctx, func(s *Scope) error {
		s.Rollback()
		return nil
	})
}

// Reset drops every registered object, pending changes included.
func (c *Context) Reset(ctx context.Context) error {
	return c.Perform(ctx, func(s *Scope) error {
		s.Reset()
		return nil
	})
}

// Sync waits until every job queued before it, merges included, has run.
func (c *Context) Sync(ctx context.Context) error {
	return c.Perform(ctx, func(*Scope) error { return nil })
}

// HasChanges reports whether the context holds unsaved changes.
func (c *Context) HasChanges(ctx context.Context) (bool, error) {
	var changed bool
	err := c.Perform(ctx, func(s *Scope) error {
		changed = s.HasChanges()
		return nil
	})
	return changed, err
}

// Registered returns the number of objects in the context's graph.
func (c *Context) Registered(ctx context.Context) (int, error) {
	var n int
	err := c.Perform(ctx, func(s *Scope) error {
		n = len(s.c.graph)
		return nil
	})
	return n, err
}

// Observe registers fn to run on the context's queue after every merged
// change set. It is used to refresh derived state such as views.
func (c *Context) Observe(fn func(store.ChangeSet)) {
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	c.observers = append(c.observers, fn)
}

// enqueueMerge hands a committed change set to the worker. It never blocks.
func (c *Context) enqueueMerge(cs store.ChangeSet) {
	if !c.queue.Enqueue(func() { c.merge(cs) }) {
		c.logger.Debug("dropping merge for closed context", "changeset", cs.ID)
	}
}

// Close stops the context. Queued jobs still run; new work is rejected.
// Close does not wait for the worker; use Done for that.
func (c *Context) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.ctrl.dispatcher.Unsubscribe(c.id)
	c.queue.Close()
}

func (c *Context) String() string {
	return fmt.Sprintf("%s(%s)", c.name, c.kind)
}
