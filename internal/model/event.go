package model

import (
	"strconv"
	"strings"
)

// Marker classifies an EventReference (NIP-10).
type Marker string

const (
	// MarkerNone is a legacy positional reference without an explicit marker.
	MarkerNone    Marker = ""
	MarkerRoot    Marker = "root"
	MarkerReply   Marker = "reply"
	MarkerMention Marker = "mention"
)

// ParseMarker maps a tag marker to a Marker. Unknown markers degrade to MarkerNone.
func ParseMarker(s string) Marker {
	switch Marker(strings.ToLower(strings.TrimSpace(s))) {
	case MarkerRoot:
		return MarkerRoot
	case MarkerReply:
		return MarkerReply
	case MarkerMention:
		return MarkerMention
	default:
		return MarkerNone
	}
}

// Tag is one tag payload, e.g. ["e", "<id>", "<relay>", "root"].
type Tag []string

// Event is a cached protocol message.
type Event struct {
	ID        string `json:"id" yaml:"id"`
	Kind      Kind   `json:"kind" yaml:"kind"`
	AuthorKey string `json:"pubkey" yaml:"pubkey"`
	CreatedAt int64  `json:"created_at" yaml:"created_at"`
	Content   string `json:"content" yaml:"content"`
	Signature string `json:"sig,omitempty" yaml:"sig,omitempty"`
	Tags      []Tag  `json:"tags" yaml:"tags"`

	// References is derived from the "e" tags, in tag order.
	References []EventReference `json:"-" yaml:"-"`

	// Locally derived fields. Not part of the signed payload.
	RootID    string `json:"-" yaml:"-"`
	ReplyToID string `json:"-" yaml:"-"`
	SeenOn    string `json:"-" yaml:"-"`
}

// NormalizeKeys returns e with its id, author key and reference ids in
// canonical form. Tags are part of the signed payload and stay as received.
func (e Event) NormalizeKeys() Event {
	e.ID = NormalizeKey(e.ID)
	e.AuthorKey = NormalizeKey(e.AuthorKey)
	if e.References != nil {
		refs := make([]EventReference, len(e.References))
		for i, r := range e.References {
			r.ReferencingID = NormalizeKey(r.ReferencingID)
			r.EventID = NormalizeKey(r.EventID)
			refs[i] = r
		}
		e.References = refs
	}
	return e
}

// EventReference is a typed edge from an event to another event id.
// EventID need not resolve to a stored event.
type EventReference struct {
	ReferencingID string
	EventID       string
	Marker        Marker
	RelayURL      string
	Position      int
}

// ReferenceKey is the identity of a reference: the owning event id plus the
// reference's position in that event's tag list.
func ReferenceKey(referencingID string, position int) string {
	return referencingID + ":" + strconv.Itoa(position)
}

// Key returns the identity of the reference.
func (r EventReference) Key() string {
	return ReferenceKey(r.ReferencingID, r.Position)
}

// ReferencesFromTags extracts event references from "e" tags. Referenced ids
// are normalized. Positions count only "e" tags, starting at 0.
func ReferencesFromTags(eventID string, tags []Tag) []EventReference {
	var refs []EventReference
	for _, tag := range tags {
		if len(tag) < 2 || tag[0] != "e" || NormalizeKey(tag[1]) == "" {
			continue
		}
		ref := EventReference{
			ReferencingID: eventID,
			EventID:       NormalizeKey(tag[1]),
			Position:      len(refs),
		}
		if len(tag) > 2 {
			ref.RelayURL = tag[2]
		}
		if len(tag) > 3 {
			ref.Marker = ParseMarker(tag[3])
		}
		refs = append(refs, ref)
	}
	return refs
}

// PubkeysFromTags returns the normalized values of "p" tags in order,
// skipping duplicates.
func PubkeysFromTags(tags []Tag) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, tag := range tags {
		if len(tag) < 2 || tag[0] != "p" {
			continue
		}
		key := NormalizeKey(tag[1])
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}
