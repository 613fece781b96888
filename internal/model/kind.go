package model

import "fmt"

// Kind is the protocol message type of an event.
type Kind int64

// Event kinds the store treats specially. Any other kind is stored as-is.
const (
	KindMetadata    Kind = 0
	KindText        Kind = 1
	KindContactList Kind = 3
	KindDelete      Kind = 5
	KindRepost      Kind = 6
	KindReaction    Kind = 7
	KindLongForm    Kind = 30023
)

var kindNames = map[Kind]string{
	KindMetadata:    "metadata",
	KindText:        "text",
	KindContactList: "contact_list",
	KindDelete:      "delete",
	KindRepost:      "repost",
	KindReaction:    "reaction",
	KindLongForm:    "long_form",
}

// String returns a readable name for well-known kinds and "kind:<n>" otherwise.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind:%d", int64(k))
}
