package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nostrcache/internal/fixture"
	"github.com/roach88/nostrcache/internal/model"
	"github.com/roach88/nostrcache/internal/store"
	"github.com/roach88/nostrcache/internal/testutil"
)

func TestLoadSampleData_ReplacesEventsAndFollowsSample(t *testing.T) {
	c, _ := newTestController(t)
	f := testutil.NewEventFactory()
	stranger := f.Note(testutil.Key("stranger"), "old data")
	_, err := c.Ingest(testCtx(t), Batch{Events: []model.Event{stranger}})
	require.NoError(t, err)

	fx := fixture.Sample()
	require.NoError(t, c.LoadSampleData(testCtx(t), c.ViewContext(), fx, fx.CurrentUser))

	got := counts(t, c)
	assert.Equal(t, len(fx.Events), got[store.EntityEvent], "previous events are gone")

	perform(t, c.ViewContext(), func(s *Scope) error {
		ok, err := s.Exists(store.EntityEvent, stranger.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		follows, err := s.Follows(fx.CurrentUser)
		require.NoError(t, err)
		assert.Len(t, follows, len(fx.AuthorKeys())-1, "current user follows every other sample author")
		for _, fl := range follows {
			if fl.Petname != "" {
				assert.Equal(t, "bobby", fl.Petname, "contact list details are kept")
			}
		}
		return nil
	})

	// Loading again converges on the same state.
	require.NoError(t, c.LoadSampleData(testCtx(t), c.ViewContext(), fx, fx.CurrentUser))
	assert.Equal(t, got, counts(t, c))

	// Everything in the sample is relevant to the current user.
	report, err := c.Sweep(testCtx(t), fx.CurrentUser)
	require.NoError(t, err)
	assert.Empty(t, report.Plan.DeleteEvents)
}

func TestLoadSampleData_WithoutCurrentUser(t *testing.T) {
	c, _ := newTestController(t)
	fx := fixture.Sample()

	require.NoError(t, c.LoadSampleData(testCtx(t), c.ParseContext(), fx, ""))
	got := counts(t, c)
	assert.Equal(t, len(fx.Events), got[store.EntityEvent])
	// The contact list plus the explicit follow.
	assert.Equal(t, 3, got[store.EntityFollow])
}
