package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/nostrcache/internal/diag"
	"github.com/roach88/nostrcache/internal/retention"
	"github.com/roach88/nostrcache/internal/store"
	"github.com/roach88/nostrcache/internal/thread"
)

// Options configures a Controller.
type Options struct {
	Store store.Options

	// Retention defaults to retention.DefaultPolicy.
	Retention *retention.Policy
	// Thread defaults to thread.DefaultPolicy.
	Thread *thread.Policy

	Logger   *slog.Logger
	Reporter diag.Reporter
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Reporter == nil {
		o.Reporter = diag.Nop()
	}
	if o.Store.Logger == nil {
		o.Store.Logger = o.Logger
	}
	if o.Store.Reporter == nil {
		o.Store.Reporter = o.Reporter
	}
	if o.Retention == nil {
		p := retention.DefaultPolicy()
		o.Retention = &p
	}
	if o.Thread == nil {
		p := thread.DefaultPolicy()
		o.Thread = &p
	}
	return o
}

// Controller owns the store and the pool of contexts working on it.
//
// The view context serves the UI, the parse context receives ingested data
// and the background view context runs expensive read queries. Ad hoc
// background contexts are created with NewBackgroundContext and discarded
// with Close.
type Controller struct {
	opts     Options
	logger   *slog.Logger
	reporter diag.Reporter

	// lifecycle serializes destroy and reopen cycles.
	lifecycle sync.Mutex

	// storeMu guards st. Contexts hold it for reading while they use the
	// store, lifecycle operations hold it for writing while they swap it.
	storeMu sync.RWMutex
	st      *store.Store
	closed  bool

	dispatcher *Dispatcher

	view           *Context
	parse          *Context
	backgroundView *Context
}

// Open opens the store, running the schema version gate, and starts the
// long-lived contexts. Open errors are fatal: the process cannot continue
// without its store.
func Open(opts Options) (*Controller, error) {
	opts = opts.withDefaults()

	st, err := store.Open(opts.Store)
	if err != nil {
		opts.Logger.Error("failed to open persistent store", "path", opts.Store.Path, "error", err)
		opts.Reporter.Report(diag.Error(diag.KindFatalOpen, "failed to open persistent store", err))
		return nil, err
	}

	c := &Controller{
		opts:       opts,
		logger:     opts.Logger,
		reporter:   opts.Reporter,
		st:         st,
		dispatcher: NewDispatcher(),
	}
	c.view = c.newContext("view", KindView, MergeByPropertyCommitterWins)
	c.parse = c.newContext("parse", KindParse, MergeByPropertyCommitterWins)
	c.backgroundView = c.newContext("background-view", KindBackground, MergeByPropertyStoreWins)

	c.logger.Info("persistent store opened", "path", st.Path(), "in_memory", st.InMemory())
	return c, nil
}

// MustOpen is like Open but panics on error. It is meant for process startup.
func MustOpen(opts Options) *Controller {
	c, err := Open(opts)
	if err != nil {
		panic(fmt.Sprintf("nostrcache: %v", err))
	}
	return c
}

func (c *Controller) newContext(name string, kind Kind, policy MergePolicy) *Context {
	ctx := newContext(c, name, kind, policy)
	c.dispatcher.Subscribe(ctx)
	return ctx
}

// ViewContext returns the primary context used by the UI.
func (c *Controller) ViewContext() *Context { return c.view }

// ParseContext returns the ingestion context.
func (c *Controller) ParseContext() *Context { return c.parse }

// BackgroundViewContext returns the long-lived context for expensive reads.
func (c *Controller) BackgroundViewContext() *Context { return c.backgroundView }

// NewBackgroundContext returns a fresh context. The caller must Close it.
func (c *Controller) NewBackgroundContext(name string) *Context {
	return c.newContext(name, KindBackground, MergeByPropertyCommitterWins)
}

// Dispatcher returns the change-set dispatcher.
func (c *Controller) Dispatcher() *Dispatcher { return c.dispatcher }

// Retention returns the retention policy used by CleanupEntities.
func (c *Controller) Retention() retention.Policy { return *c.opts.Retention }

// ThreadPolicy returns the reply classification policy used on ingest.
func (c *Controller) ThreadPolicy() thread.Policy { return *c.opts.Thread }

// Store returns the current store, or nil while it is destroyed.
func (c *Controller) Store() *store.Store {
	c.storeMu.RLock()
	defer c.storeMu.RUnlock()
	return c.st
}

// withStore runs fn with the current store while holding it open.
func (c *Controller) withStore(fn func(*store.Store) error) error {
	c.storeMu.RLock()
	defer c.storeMu.RUnlock()
	if c.st == nil {
		return ErrStoreUnavailable
	}
	return fn(c.st)
}

// SaveAll saves the view context, then the parse and background view
// contexts, in that order. It stops at the first error.
func (c *Controller) SaveAll(ctx context.Context) error {
	for _, pc := range []*Context{c.view, c.parse, c.backgroundView} {
		if err := pc.Save(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Reset drops the object graphs of every open context. Nothing on disk
// changes.
func (c *Controller) Reset(ctx context.Context) error {
	for _, pc := range c.dispatcher.Contexts() {
		if err := pc.Reset(ctx); err != nil && !errors.Is(err, ErrContextClosed) {
			return fmt.Errorf("reset %s: %w", pc.Name(), err)
		}
	}
	return nil
}

// Destroy deletes the store and its files and resets every context. Until
// Recreate is called every store access fails with ErrStoreUnavailable.
func (c *Controller) Destroy(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if err := c.destroyLocked(); err != nil {
		return err
	}
	return c.Reset(ctx)
}

// Recreate opens a fresh store after Destroy.
func (c *Controller) Recreate(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if err := c.reopenLocked(); err != nil {
		return err
	}
	return c.Reset(ctx)
}

// ResetForTesting destroys the store and reopens it empty, then resets
// every context.
func (c *Controller) ResetForTesting(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if err := c.destroyLocked(); err != nil {
		return err
	}
	if err := c.reopenLocked(); err != nil {
		return err
	}
	return c.Reset(ctx)
}

func (c *Controller) destroyLocked() error {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()

	if c.closed {
		return ErrControllerClosed
	}
	if c.st == nil {
		return nil
	}
	if err := c.st.Destroy(); err != nil {
		c.logger.Error("failed to destroy persistent store", "error", err)
		return err
	}
	c.st = nil
	return nil
}

func (c *Controller) reopenLocked() error {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()

	if c.closed {
		return ErrControllerClosed
	}
	if c.st != nil {
		return nil
	}
	st, err := store.Open(c.opts.Store)
	if err != nil {
		c.logger.Error("failed to reopen persistent store", "error", err)
		c.reporter.Report(diag.Error(diag.KindFatalOpen, "failed to reopen persistent store", err))
		return err
	}
	c.st = st
	return nil
}

// Close stops every context, waits for their queued work and closes the
// store. Unsaved changes are lost.
func (c *Controller) Close() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	contexts := c.dispatcher.Contexts()
	for _, pc := range contexts {
		pc.Close()
	}
	for _, pc := range contexts {
		<-pc.Done()
	}

	c.storeMu.Lock()
	defer c.storeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.st == nil {
		return nil
	}
	return c.st.Close()
}
