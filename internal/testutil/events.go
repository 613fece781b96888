package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/roach88/nostrcache/internal/model"
)

// Key derives a stable 64 hex character public key from a readable name.
func Key(name string) string {
	h := sha256.Sum256([]byte("pubkey:" + name))
	return hex.EncodeToString(h[:])
}

// EventFactory builds events with valid ids and increasing timestamps.
type EventFactory struct {
	Clock *DeterministicClock
}

// NewEventFactory creates a factory with a fresh deterministic clock.
func NewEventFactory() *EventFactory {
	return &EventFactory{Clock: NewDeterministicClock()}
}

// Event builds an event of any kind and fills in its id and references.
func (f *EventFactory) Event(kind model.Kind, author, content string, tags ...model.Tag) model.Event {
	if tags == nil {
		tags = []model.Tag{}
	}
	e := model.Event{
		Kind:      kind,
		AuthorKey: author,
		CreatedAt: f.Clock.Next(),
		Content:   content,
		Tags:      tags,
	}
	e.ID = model.ComputeEventID(e)
	e.References = model.ReferencesFromTags(e.ID, e.Tags)
	return e
}

// Note builds a kind 1 text note.
func (f *EventFactory) Note(author, content string, tags ...model.Tag) model.Event {
	return f.Event(model.KindText, author, content, tags...)
}

// Reply builds a note marking root and parent. An empty parent makes it a
// direct reply to root.
func (f *EventFactory) Reply(author, content, root, parent string) model.Event {
	tags := []model.Tag{{"e", root, "", string(model.MarkerRoot)}}
	if parent != "" && parent != root {
		tags = append(tags, model.Tag{"e", parent, "", string(model.MarkerReply)})
	}
	return f.Note(author, content, tags...)
}

// Metadata builds a kind 0 profile event.
func (f *EventFactory) Metadata(author, name, displayName string) model.Event {
	content, _ := json.Marshal(map[string]string{"name": name, "display_name": displayName})
	return f.Event(model.KindMetadata, author, string(content))
}

// ContactList builds a kind 3 event following every key in follows.
func (f *EventFactory) ContactList(author string, follows ...string) model.Event {
	tags := make([]model.Tag, len(follows))
	for i, k := range follows {
		tags[i] = model.Tag{"p", k}
	}
	return f.Event(model.KindContactList, author, "", tags...)
}
