package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nostrcache/internal/model"
)

func TestGet_RoundTripsEvent(t *testing.T) {
	s := createMemoryStore(t)
	ctx := context.Background()
	e := model.Event{
		ID:        "e1",
		Kind:      model.KindText,
		AuthorKey: "alice",
		CreatedAt: 1700000000,
		Content:   "gm",
		Tags:      []model.Tag{{"p", "bob"}},
		SeenOn:    "wss://relay.example",
	}
	commit(t, s, insertEvent(t, e)...)

	v, ok, err := s.Get(ctx, EntityEvent, "e1")
	require.NoError(t, err)
	require.True(t, ok)

	got, err := EventFromValues("e1", v)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestGet_Missing(t *testing.T) {
	s := createMemoryStore(t)
	_, ok, err := s.Get(context.Background(), EntityAuthor, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGet_UnknownEntity(t *testing.T) {
	s := createMemoryStore(t)
	_, _, err := s.Get(context.Background(), "Relay", "x")
	assert.Error(t, err)
}

func TestProject_DistinctSorted(t *testing.T) {
	s := createMemoryStore(t)
	commit(t, s,
		insertAuthor("alice", "Alice"),
		insertAuthor("bob", "Bob"),
		insertFollow("alice", "zed"),
		insertFollow("alice", "carol"),
		insertFollow("bob", "carol"),
	)

	dests, err := s.Project(context.Background(), EntityFollow, "destination_key", "source_key", []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{"carol", "zed"}, dests)
}

func TestProject_ChunksLargeInputs(t *testing.T) {
	s := createMemoryStore(t)
	var changes []Change
	var keys []string
	for i := 0; i < maxParams+25; i++ {
		k := fmt.Sprintf("author-%04d", i)
		keys = append(keys, k)
		changes = append(changes, insertAuthor(k, k))
	}
	commit(t, s, changes...)

	got, err := s.KeysWhere(context.Background(), EntityAuthor, "public_key", keys)
	require.NoError(t, err)
	assert.Equal(t, keys, got)
}

func TestProject_RejectsIntColumns(t *testing.T) {
	s := createMemoryStore(t)
	_, err := s.Project(context.Background(), EntityEvent, "kind", "id", []string{"x"})
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	s := createMemoryStore(t)
	commit(t, s, insertAuthor("bob", "Bob"), insertAuthor("alice", "Alice"))

	keys, err := s.Keys(context.Background(), EntityAuthor)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, keys)
}

func TestEntities_SortedByName(t *testing.T) {
	var names []string
	for _, e := range Entities() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{EntityAuthor, EntityEvent, EntityEventReference, EntityFollow}, names)
}
