// Package thread classifies notes within a conversation and ranks the
// people involved in it.
package thread

import (
	"sort"

	"github.com/roach88/nostrcache/internal/model"
)

// Policy controls which reference styles count when classifying replies.
type Policy struct {
	// Positional accepts the deprecated style where the last unmarked
	// reference is the replied-to note and the first is the root.
	Positional bool
}

// DefaultPolicy accepts both marked and positional references.
func DefaultPolicy() Policy { return Policy{Positional: true} }

type markers struct {
	root, reply bool
}

func scan(refs []model.EventReference) markers {
	var m markers
	for _, r := range refs {
		switch r.Marker {
		case model.MarkerRoot:
			m.root = true
		case model.MarkerReply:
			m.reply = true
		}
	}
	return m
}

// IsDirectReply reports whether reply answers noteID directly rather than
// some other note further down the thread.
//
// A reply is direct when it marks noteID as root and carries no reply
// marker, when it marks noteID as reply, or, with p.Positional, when it
// carries no markers at all and its last reference is noteID.
func IsDirectReply(reply model.Event, noteID string, p Policy) bool {
	refs := reply.References
	if len(refs) == 0 || noteID == "" {
		return false
	}
	m := scan(refs)

	for _, r := range refs {
		if r.EventID != noteID {
			continue
		}
		if r.Marker == model.MarkerRoot && !m.reply {
			return true
		}
		if r.Marker == model.MarkerReply {
			return true
		}
	}

	if p.Positional && !m.root && !m.reply {
		return refs[len(refs)-1].EventID == noteID
	}
	return false
}

// DirectReplies filters candidates down to direct replies of noteID,
// oldest first.
func DirectReplies(noteID string, candidates []model.Event, p Policy) []model.Event {
	var out []model.Event
	for _, e := range candidates {
		if IsDirectReply(e, noteID, p) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// RootNoteID returns the id of the thread root refs point at, or "" for a
// note that starts a thread.
func RootNoteID(refs []model.EventReference, p Policy) string {
	for _, r := range refs {
		if r.Marker == model.MarkerRoot {
			return r.EventID
		}
	}
	m := scan(refs)
	if p.Positional && !m.reply && len(refs) > 0 {
		return refs[0].EventID
	}
	return ""
}

// ReplyToID returns the id of the note refs answer, or "".
// A note that only marks a root is a reply to the root.
func ReplyToID(refs []model.EventReference, p Policy) string {
	m := scan(refs)
	for _, r := range refs {
		if r.Marker == model.MarkerReply {
			return r.EventID
		}
	}
	if m.root {
		return RootNoteID(refs, p)
	}
	if p.Positional && len(refs) > 0 {
		return refs[len(refs)-1].EventID
	}
	return ""
}
