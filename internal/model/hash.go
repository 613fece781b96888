package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// ComputeEventID returns the NIP-01 identifier of an event:
// sha256 over the JSON array [0, pubkey, created_at, kind, tags, content].
func ComputeEventID(e Event) string {
	h := sha256.Sum256(SerializeForID(e))
	return hex.EncodeToString(h[:])
}

// VerifyID reports whether e.ID matches the computed identifier.
func VerifyID(e Event) error {
	want := ComputeEventID(e)
	if e.ID != want {
		return fmt.Errorf("event id mismatch: have %q, computed %q", e.ID, want)
	}
	return nil
}

// SerializeForID produces the exact byte sequence hashed for an event id.
// NIP-01 mandates a narrower escape set than encoding/json, so strings are
// escaped by hand.
func SerializeForID(e Event) []byte {
	var buf bytes.Buffer
	buf.WriteString(`[0,`)
	writeString(&buf, e.AuthorKey)
	buf.WriteByte(',')
	buf.WriteString(strconv.FormatInt(e.CreatedAt, 10))
	buf.WriteByte(',')
	buf.WriteString(strconv.FormatInt(int64(e.Kind), 10))
	buf.WriteString(`,[`)
	for i, tag := range e.Tags {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('[')
		for j, v := range tag {
			if j > 0 {
				buf.WriteByte(',')
			}
			writeString(&buf, v)
		}
		buf.WriteByte(']')
	}
	buf.WriteString(`],`)
	writeString(&buf, e.Content)
	buf.WriteByte(']')
	return buf.Bytes()
}

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte('"')
}
