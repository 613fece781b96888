package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nostrcache/internal/model"
)

func TestKey_StableAndHex(t *testing.T) {
	assert.Equal(t, Key("alice"), Key("alice"))
	assert.NotEqual(t, Key("alice"), Key("bob"))
	assert.Len(t, Key("alice"), 64)
}

func TestEventFactory_BuildsValidEvents(t *testing.T) {
	f := NewEventFactory()
	note := f.Note(Key("alice"), "hello")
	reply := f.Reply(Key("bob"), "hi", note.ID, "")

	require.NoError(t, model.VerifyID(note))
	require.NoError(t, model.VerifyID(reply))
	assert.Less(t, note.CreatedAt, reply.CreatedAt)
	require.Len(t, reply.References, 1)
	assert.Equal(t, model.MarkerRoot, reply.References[0].Marker)
	assert.Equal(t, reply.ID, reply.References[0].ReferencingID)
}

func TestEventFactory_ContactList(t *testing.T) {
	f := NewEventFactory()
	e := f.ContactList(Key("alice"), Key("bob"), Key("carol"))

	follows := model.FollowsFromContactList(e)
	require.Len(t, follows, 2)
	assert.Equal(t, Key("bob"), follows[0].DestinationKey)
}

func TestEventFactory_Metadata(t *testing.T) {
	f := NewEventFactory()
	a, err := model.AuthorFromMetadata(f.Metadata(Key("alice"), "alice", "Alice"))
	require.NoError(t, err)
	assert.Equal(t, "Alice", a.DisplayName)
}
