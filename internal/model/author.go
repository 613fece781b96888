package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Author is a public identity with its profile metadata.
type Author struct {
	PublicKey   string `json:"pubkey" yaml:"pubkey"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	About       string `json:"about,omitempty" yaml:"about,omitempty"`
	PictureURL  string `json:"picture,omitempty" yaml:"picture,omitempty"`
	NIP05       string `json:"nip05,omitempty" yaml:"nip05,omitempty"`

	// MetadataUpdatedAt is the created_at of the kind 0 event the profile came from.
	MetadataUpdatedAt int64 `json:"-" yaml:"metadata_updated_at,omitempty"`
}

// SafeName returns the best human-readable name available, falling back to a
// shortened public key.
func (a Author) SafeName() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	if a.Name != "" {
		return a.Name
	}
	if len(a.PublicKey) > 10 {
		return a.PublicKey[:10]
	}
	return a.PublicKey
}

// NormalizeKey returns the canonical form of a hex public key or event id:
// trimmed and lowercase.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Normalize trims and NFC-normalizes the free-text profile fields so that
// lookups and comparisons behave the same regardless of how a client encoded them.
func (a Author) Normalize() Author {
	a.PublicKey = NormalizeKey(a.PublicKey)
	a.Name = norm.NFC.String(strings.TrimSpace(a.Name))
	a.DisplayName = norm.NFC.String(strings.TrimSpace(a.DisplayName))
	a.NIP05 = strings.TrimSpace(a.NIP05)
	return a
}

// profileContent is the JSON payload of a kind 0 metadata event.
type profileContent struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	About       string `json:"about"`
	Picture     string `json:"picture"`
	NIP05       string `json:"nip05"`
}

// AuthorFromMetadata builds an Author from a kind 0 event.
func AuthorFromMetadata(e Event) (Author, error) {
	if e.Kind != KindMetadata {
		return Author{}, fmt.Errorf("author from metadata: event %s has kind %s", e.ID, e.Kind)
	}
	var pc profileContent
	if err := json.Unmarshal([]byte(e.Content), &pc); err != nil {
		return Author{}, fmt.Errorf("author from metadata: %w", err)
	}
	return Author{
		PublicKey:         e.AuthorKey,
		Name:              pc.Name,
		DisplayName:       pc.DisplayName,
		About:             pc.About,
		PictureURL:        pc.Picture,
		NIP05:             pc.NIP05,
		MetadataUpdatedAt: e.CreatedAt,
	}.Normalize(), nil
}

// Follow is a directed edge from Source to Destination.
// At most one edge exists per (Source, Destination) pair.
type Follow struct {
	SourceKey      string `yaml:"source"`
	DestinationKey string `yaml:"destination"`
	Petname        string `yaml:"petname,omitempty"`
	RelayURL       string `yaml:"relay,omitempty"`
}

// FollowKey is the identity of a follow edge.
func FollowKey(source, destination string) string {
	return source + ">" + destination
}

// Key returns the identity of the edge.
func (f Follow) Key() string {
	return FollowKey(f.SourceKey, f.DestinationKey)
}

// FollowsFromContactList extracts the follow edges of a kind 3 event.
// Keys are normalized. Duplicate "p" tags collapse into a single edge; the
// first one wins.
func FollowsFromContactList(e Event) []Follow {
	source := NormalizeKey(e.AuthorKey)
	seen := make(map[string]bool)
	var follows []Follow
	for _, tag := range e.Tags {
		if len(tag) < 2 || tag[0] != "p" {
			continue
		}
		dst := NormalizeKey(tag[1])
		if dst == "" || seen[dst] {
			continue
		}
		seen[dst] = true
		f := Follow{SourceKey: source, DestinationKey: dst}
		if len(tag) > 2 {
			f.RelayURL = tag[2]
		}
		if len(tag) > 3 {
			f.Petname = tag[3]
		}
		follows = append(follows, f)
	}
	return follows
}
