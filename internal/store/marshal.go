package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/nostrcache/internal/model"
)

func str(v Values, key string) string {
	s, _ := v[key].(string)
	return s
}

func i64(v Values, key string) int64 {
	switch n := v[key].(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

// AuthorValues converts an author to column values.
func AuthorValues(a model.Author) Values {
	return Values{
		"name":                a.Name,
		"display_name":        a.DisplayName,
		"about":               a.About,
		"picture_url":         a.PictureURL,
		"nip05":               a.NIP05,
		"metadata_updated_at": a.MetadataUpdatedAt,
	}
}

// AuthorFromValues converts a row back to an author.
func AuthorFromValues(key string, v Values) model.Author {
	return model.Author{
		PublicKey:         key,
		Name:              str(v, "name"),
		DisplayName:       str(v, "display_name"),
		About:             str(v, "about"),
		PictureURL:        str(v, "picture_url"),
		NIP05:             str(v, "nip05"),
		MetadataUpdatedAt: i64(v, "metadata_updated_at"),
	}
}

// EventValues converts an event to column values. References are stored
// as separate EventReference rows and are not part of the result.
func EventValues(e model.Event) (Values, error) {
	tags := e.Tags
	if tags == nil {
		tags = []model.Tag{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags of %s: %w", e.ID, err)
	}
	return Values{
		"kind":        int64(e.Kind),
		"author_key":  e.AuthorKey,
		"created_at":  e.CreatedAt,
		"content":     e.Content,
		"signature":   e.Signature,
		"tags":        string(data),
		"root_id":     e.RootID,
		"reply_to_id": e.ReplyToID,
		"seen_on":     e.SeenOn,
	}, nil
}

// EventFromValues converts a row back to an event without references.
func EventFromValues(key string, v Values) (model.Event, error) {
	var tags []model.Tag
	if raw := str(v, "tags"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			return model.Event{}, fmt.Errorf("unmarshal tags of %s: %w", key, err)
		}
	}
	return model.Event{
		ID:        key,
		Kind:      model.Kind(i64(v, "kind")),
		AuthorKey: str(v, "author_key"),
		CreatedAt: i64(v, "created_at"),
		Content:   str(v, "content"),
		Signature: str(v, "signature"),
		Tags:      tags,
		RootID:    str(v, "root_id"),
		ReplyToID: str(v, "reply_to_id"),
		SeenOn:    str(v, "seen_on"),
	}, nil
}

// ReferenceValues converts an event reference to column values.
func ReferenceValues(r model.EventReference) Values {
	return Values{
		"referencing_id": r.ReferencingID,
		"event_id":       r.EventID,
		"marker":         string(r.Marker),
		"relay_url":      r.RelayURL,
		"position":       int64(r.Position),
	}
}

// ReferenceFromValues converts a row back to an event reference.
func ReferenceFromValues(v Values) model.EventReference {
	return model.EventReference{
		ReferencingID: str(v, "referencing_id"),
		EventID:       str(v, "event_id"),
		Marker:        model.Marker(str(v, "marker")),
		RelayURL:      str(v, "relay_url"),
		Position:      int(i64(v, "position")),
	}
}

// FollowValues converts a follow edge to column values.
func FollowValues(f model.Follow) Values {
	return Values{
		"source_key":      f.SourceKey,
		"destination_key": f.DestinationKey,
		"petname":         f.Petname,
		"relay_url":       f.RelayURL,
	}
}

// FollowFromValues converts a row back to a follow edge.
func FollowFromValues(v Values) model.Follow {
	return model.Follow{
		SourceKey:      str(v, "source_key"),
		DestinationKey: str(v, "destination_key"),
		Petname:        str(v, "petname"),
		RelayURL:       str(v, "relay_url"),
	}
}
