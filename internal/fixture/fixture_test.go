package fixture

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nostrcache/internal/model"
)

func TestSample_Parses(t *testing.T) {
	fx := Sample()

	assert.Equal(t, "sample", fx.Name)
	assert.Len(t, fx.Events, 6)
	assert.Len(t, fx.Authors, 3)
	assert.Len(t, fx.AuthorKeys(), 4)
	assert.Equal(t, "wss://relay.example.com", fx.Source)
	for _, e := range fx.Events {
		assert.NoError(t, model.VerifyID(e))
	}
}

func TestSample_ContactList(t *testing.T) {
	fx := Sample()

	var contacts model.Event
	for _, e := range fx.Events {
		if e.Kind == model.KindContactList {
			contacts = e
		}
	}
	follows := model.FollowsFromContactList(contacts)
	require.Len(t, follows, 2)
	assert.Equal(t, "bobby", follows[0].Petname)
}

func TestParse_ComputesMissingIDs(t *testing.T) {
	fx, err := Parse([]byte(`
name: computed
events:
  - pubkey: aa
    created_at: 1
    kind: 1
    tags: []
    content: hi
`))
	require.NoError(t, err)
	require.Len(t, fx.Events, 1)
	assert.Equal(t, model.ComputeEventID(fx.Events[0]), fx.Events[0].ID)
}

func TestParse_AcceptsJSON(t *testing.T) {
	fx, err := Parse([]byte(`{"name": "json", "authors": [{"pubkey": "aa", "name": "amy"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "amy", fx.Authors[0].Name)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"missing name", "authors: []", "name is required"},
		{"unknown field", "name: x\nauthor: []", "field author not found"},
		{"wrong id", "name: x\nevents:\n  - {id: abc, pubkey: aa, created_at: 1, kind: 1, tags: [], content: hi}", "event id mismatch"},
		{"missing pubkey", "name: x\nevents:\n  - {created_at: 1, kind: 1, tags: [], content: hi}", "pubkey is required"},
		{"bad follow", "name: x\nfollows:\n  - {source: aa}", "source and destination are required"},
		{"duplicate event", "name: x\nevents:\n  - {pubkey: aa, created_at: 1, kind: 1, tags: [], content: hi}\n  - {pubkey: aa, created_at: 1, kind: 1, tags: [], content: hi}", "duplicate id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fx.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: file\nsource: wss://r\n"), 0o644))

	fx, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wss://r", fx.Source)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFollowsBySource(t *testing.T) {
	fx := Sample()
	by := fx.FollowsBySource()
	require.Len(t, by, 1)
	for src, follows := range by {
		assert.Len(t, follows, 1)
		assert.Equal(t, src, follows[0].SourceKey)
	}
}
