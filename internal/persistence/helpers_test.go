package persistence

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/nostrcache/internal/diag"
	"github.com/roach88/nostrcache/internal/model"
	"github.com/roach88/nostrcache/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestController opens an in-memory controller that is closed when the test ends.
func newTestController(t *testing.T) (*Controller, *diag.Recorder) {
	t.Helper()
	rec := &diag.Recorder{}
	c, err := Open(Options{
		Store:    store.Options{InMemory: true},
		Logger:   quietLogger(),
		Reporter: rec,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, rec
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// perform runs fn on pc and fails the test on error.
func perform(t *testing.T, pc *Context, fn func(*Scope) error) {
	t.Helper()
	require.NoError(t, pc.Perform(testCtx(t), fn))
}

func seedAuthor(t *testing.T, pc *Context, a model.Author) {
	t.Helper()
	perform(t, pc, func(s *Scope) error {
		if err := s.Insert(store.EntityAuthor, a.PublicKey, store.AuthorValues(a)); err != nil {
			return err
		}
		return s.Save()
	})
}

func authorIn(t *testing.T, pc *Context, key string) (model.Author, bool) {
	t.Helper()
	var (
		a  model.Author
		ok bool
	)
	perform(t, pc, func(s *Scope) error {
		var err error
		a, ok, err = s.Author(key)
		return err
	})
	return a, ok
}

func counts(t *testing.T, c *Controller) map[string]int {
	t.Helper()
	stats, err := c.Statistics(testCtx(t))
	require.NoError(t, err)
	out := make(map[string]int, len(stats))
	for _, ec := range stats {
		out[ec.Entity] = ec.Count
	}
	return out
}
