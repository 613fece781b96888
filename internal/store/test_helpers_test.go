package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/nostrcache/internal/model"
)

// createTestStore opens a file-backed store in a temp dir with an up-to-date marker.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(Options{Path: path, Marker: NewMemoryMarker(RequiredVersion)})
	require.NoError(t, err, "Open() failed")
	t.Cleanup(func() { s.Close() })
	return s
}

// createMemoryStore opens an ephemeral store.
func createMemoryStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err, "Open() failed")
	t.Cleanup(func() { s.Close() })
	return s
}

func insertAuthor(key, name string) Change {
	return Change{Entity: EntityAuthor, Key: key, Op: OpUpsert, Inserted: true, Values: AuthorValues(model.Author{PublicKey: key, Name: name})}
}

func insertEvent(t *testing.T, e model.Event) []Change {
	t.Helper()
	v, err := EventValues(e)
	require.NoError(t, err)
	changes := []Change{{Entity: EntityEvent, Key: e.ID, Op: OpUpsert, Inserted: true, Values: v}}
	for _, r := range model.ReferencesFromTags(e.ID, e.Tags) {
		changes = append(changes, Change{Entity: EntityEventReference, Key: r.Key(), Op: OpUpsert, Inserted: true, Values: ReferenceValues(r)})
	}
	return changes
}

func insertFollow(src, dst string) Change {
	f := model.Follow{SourceKey: src, DestinationKey: dst}
	return Change{Entity: EntityFollow, Key: f.Key(), Op: OpUpsert, Inserted: true, Values: FollowValues(f)}
}

func commit(t *testing.T, s *Store, changes ...Change) ChangeSet {
	t.Helper()
	cs, err := s.Commit(context.Background(), ChangeSet{ID: "test", Origin: "test", Changes: changes}, nil)
	require.NoError(t, err)
	return cs
}

func count(t *testing.T, s *Store, entity string) int {
	t.Helper()
	n, err := s.Count(context.Background(), entity)
	require.NoError(t, err)
	return n
}
