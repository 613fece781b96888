package persistence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nostrcache/internal/model"
	"github.com/roach88/nostrcache/internal/store"
	"github.com/roach88/nostrcache/internal/testutil"
)

func rename(t *testing.T, pc *Context, key string, fn func(*model.Author)) {
	t.Helper()
	perform(t, pc, func(s *Scope) error {
		ok, err := s.UpdateAuthor(key, fn)
		require.True(t, ok)
		return err
	})
}

func committed(t *testing.T, c *Controller, key string) model.Author {
	t.Helper()
	bg := c.NewBackgroundContext("verify")
	defer bg.Close()
	a, ok := authorIn(t, bg, key)
	require.True(t, ok)
	return a
}

func TestMerge_DifferentFieldsBothSurvive(t *testing.T) {
	c, _ := newTestController(t)
	view, parse := c.ViewContext(), c.ParseContext()
	key := testutil.Key("x")
	seedAuthor(t, view, model.Author{PublicKey: key, Name: "x", About: "a"})

	rename(t, view, key, func(a *model.Author) { a.Name = "from view" })
	rename(t, parse, key, func(a *model.Author) { a.About = "from parse" })

	require.NoError(t, parse.Save(testCtx(t)))
	require.NoError(t, view.Sync(testCtx(t)))

	a, _ := authorIn(t, view, key)
	assert.Equal(t, "from view", a.Name, "local edit kept")
	assert.Equal(t, "from parse", a.About, "remote edit merged")

	require.NoError(t, view.Save(testCtx(t)))

	got := committed(t, c, key)
	assert.Equal(t, "from view", got.Name)
	assert.Equal(t, "from parse", got.About)
}

func TestMerge_SameFieldLastCommitterWins(t *testing.T) {
	tests := []struct {
		name       string
		firstView  bool
		wantStored string
	}{
		{"view then parse", true, "from parse"},
		{"parse then view", false, "from view"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestController(t)
			view, parse := c.ViewContext(), c.ParseContext()
			key := testutil.Key("x")
			seedAuthor(t, view, model.Author{PublicKey: key, Name: "x"})
			require.NoError(t, parse.Sync(testCtx(t)))

			rename(t, view, key, func(a *model.Author) { a.Name = "from view" })
			rename(t, parse, key, func(a *model.Author) { a.Name = "from parse" })

			first, second := parse, view
			if tt.firstView {
				first, second = view, parse
			}
			require.NoError(t, first.Save(testCtx(t)))
			require.NoError(t, second.Save(testCtx(t)))

			assert.Equal(t, tt.wantStored, committed(t, c, key).Name)

			// The first committer merges the winner's value.
			require.NoError(t, first.Sync(testCtx(t)))
			a, _ := authorIn(t, first, key)
			assert.Equal(t, tt.wantStored, a.Name)
		})
	}
}

func TestMerge_StoreWinsDropsLocalEdit(t *testing.T) {
	c, _ := newTestController(t)
	view, parse := c.ViewContext(), c.ParseContext()
	key := testutil.Key("x")
	seedAuthor(t, view, model.Author{PublicKey: key, Name: "x", About: "a"})

	view.SetPolicy(MergeByPropertyStoreWins)
	rename(t, view, key, func(a *model.Author) {
		a.Name = "from view"
		a.About = "view about"
	})
	rename(t, parse, key, func(a *model.Author) { a.Name = "from parse" })
	require.NoError(t, parse.Save(testCtx(t)))
	require.NoError(t, view.Sync(testCtx(t)))

	a, _ := authorIn(t, view, key)
	assert.Equal(t, "from parse", a.Name)
	assert.Equal(t, "view about", a.About, "fields the commit did not touch stay dirty")

	require.NoError(t, view.Save(testCtx(t)))
	got := committed(t, c, key)
	assert.Equal(t, "from parse", got.Name)
	assert.Equal(t, "view about", got.About)
}

func TestMerge_RemoteDeleteDropsObject(t *testing.T) {
	c, _ := newTestController(t)
	view, parse := c.ViewContext(), c.ParseContext()
	key := testutil.Key("x")
	seedAuthor(t, parse, model.Author{PublicKey: key})
	_, ok := authorIn(t, view, key)
	require.True(t, ok)

	rename(t, view, key, func(a *model.Author) { a.Name = "too late" })
	perform(t, parse, func(s *Scope) error {
		require.NoError(t, s.DeleteAuthor(key))
		return s.Save()
	})
	require.NoError(t, view.Sync(testCtx(t)))

	_, ok = authorIn(t, view, key)
	assert.False(t, ok)

	// The dropped edit does not resurrect the row.
	require.NoError(t, view.Save(testCtx(t)))
	assert.Zero(t, counts(t, c)[store.EntityAuthor])
}

func TestMerge_AppliesInCommitOrder(t *testing.T) {
	c, _ := newTestController(t)
	view, parse := c.ViewContext(), c.ParseContext()
	key := testutil.Key("x")
	seedAuthor(t, parse, model.Author{PublicKey: key, Name: "0"})
	authorIn(t, view, key)

	var mu sync.Mutex
	var seen []int64
	view.Observe(func(cs store.ChangeSet) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, cs.Seq)
	})

	for _, name := range []string{"1", "2", "3"} {
		rename(t, parse, key, func(a *model.Author) { a.Name = name })
		require.NoError(t, parse.Save(testCtx(t)))
	}
	require.NoError(t, view.Sync(testCtx(t)))

	a, _ := authorIn(t, view, key)
	assert.Equal(t, "3", a.Name)
	assert.Equal(t, int64(4), view.LastMergedSeq())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{2, 3, 4}, seen)
}

func TestMerge_CascadedDeletesReachOtherContexts(t *testing.T) {
	c, _ := newTestController(t)
	view, parse := c.ViewContext(), c.ParseContext()
	alice, bob := testutil.Key("alice"), testutil.Key("bob")

	perform(t, parse, func(s *Scope) error {
		require.NoError(t, s.SetFollows(alice, []model.Follow{{DestinationKey: bob}}))
		return s.Save()
	})
	perform(t, view, func(s *Scope) error {
		follows, err := s.Follows(alice)
		require.Len(t, follows, 1)
		return err
	})

	perform(t, parse, func(s *Scope) error {
		require.NoError(t, s.DeleteAuthor(alice))
		return s.Save()
	})
	require.NoError(t, view.Sync(testCtx(t)))

	perform(t, view, func(s *Scope) error {
		follows, err := s.Follows(alice)
		assert.Empty(t, follows)
		return err
	})
	n, err := view.Registered(testCtx(t))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMerge_PlaceholderInsertKeepsCommittedProfile(t *testing.T) {
	c, _ := newTestController(t)
	view, parse := c.ViewContext(), c.ParseContext()
	key := testutil.Key("x")

	perform(t, parse, func(s *Scope) error {
		_, err := s.FindOrCreateAuthor(key)
		return err
	})
	perform(t, view, func(s *Scope) error {
		changed, err := s.UpsertProfile(model.Author{PublicKey: key, Name: "alice", MetadataUpdatedAt: 10})
		require.True(t, changed)
		if err != nil {
			return err
		}
		return s.Save()
	})
	require.NoError(t, parse.Sync(testCtx(t)))

	a, _ := authorIn(t, parse, key)
	assert.Equal(t, "alice", a.Name, "placeholder picks up the committed profile")

	require.NoError(t, parse.Save(testCtx(t)))

	got := committed(t, c, key)
	assert.Equal(t, "alice", got.Name)
	assert.Equal(t, int64(10), got.MetadataUpdatedAt)
}

func TestMerge_ConcurrentInsertsKeepEachOthersColumns(t *testing.T) {
	c, _ := newTestController(t)
	view, parse := c.ViewContext(), c.ParseContext()
	key := testutil.Key("x")

	perform(t, parse, func(s *Scope) error {
		return s.Insert(store.EntityAuthor, key, store.Values{"about": "from parse"})
	})
	perform(t, view, func(s *Scope) error {
		return s.Insert(store.EntityAuthor, key, store.Values{"name": "from view"})
	})

	require.NoError(t, view.Save(testCtx(t)))
	require.NoError(t, parse.Save(testCtx(t)))

	got := committed(t, c, key)
	assert.Equal(t, "from view", got.Name)
	assert.Equal(t, "from parse", got.About)

	a, _ := authorIn(t, parse, key)
	assert.Equal(t, "from view", a.Name, "merged column visible to the later inserter")
}

func TestMerge_RemoteDeleteResetsUnwrittenColumnsOfLocalInsert(t *testing.T) {
	c, _ := newTestController(t)
	view, parse := c.ViewContext(), c.ParseContext()
	key := testutil.Key("x")

	perform(t, view, func(s *Scope) error {
		return s.Insert(store.EntityAuthor, key, store.Values{"about": "from view"})
	})
	seedAuthor(t, parse, model.Author{PublicKey: key, Name: "seeded"})
	require.NoError(t, view.Sync(testCtx(t)))
	perform(t, parse, func(s *Scope) error {
		require.NoError(t, s.DeleteAuthor(key))
		return s.Save()
	})
	require.NoError(t, view.Sync(testCtx(t)))

	a, ok := authorIn(t, view, key)
	require.True(t, ok, "local insert survives the remote delete")
	assert.Empty(t, a.Name)
	assert.Equal(t, "from view", a.About)

	require.NoError(t, view.Save(testCtx(t)))
	got := committed(t, c, key)
	assert.Empty(t, got.Name)
	assert.Equal(t, "from view", got.About)
}

func TestMerge_PanickingObserverDoesNotStopWorker(t *testing.T) {
	c, _ := newTestController(t)
	view, parse := c.ViewContext(), c.ParseContext()
	key := testutil.Key("x")
	seedAuthor(t, parse, model.Author{PublicKey: key, Name: "0"})
	authorIn(t, view, key)

	var mu sync.Mutex
	var seen []int64
	view.Observe(func(store.ChangeSet) { panic("observer failed") })
	view.Observe(func(cs store.ChangeSet) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, cs.Seq)
	})

	for _, name := range []string{"1", "2"} {
		rename(t, parse, key, func(a *model.Author) { a.Name = name })
		require.NoError(t, parse.Save(testCtx(t)))
	}
	require.NoError(t, view.Sync(testCtx(t)))

	a, _ := authorIn(t, view, key)
	assert.Equal(t, "2", a.Name)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{2, 3}, seen, "later observers still run")
}
