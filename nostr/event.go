package nostr

import (
	"crypto/sha256"
	"encoding/json"
	"strconv"
	"time"
)

const (
	KindMetadata = 0
	KindTextNote = 1
)

type Tag []string

// Key returns the tag name, or "" for an empty tag.
func (t Tag) Key() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the first tag argument, or "".
func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

type Tags []Tag

// Find returns every tag with the given name, in order.
func (tags Tags) Find(key string) Tags {
	var out Tags
	for _, t := range tags {
		if t.Key() == key {
			out = append(out, t)
		}
	}
	return out
}

// Event is a signed message as it travels between relays.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// UnsignedEvent is an event that has not been given an id or signature yet.
// The author key is filled in when it is signed.
type UnsignedEvent struct {
	CreatedAt int64
	Kind      int
	Tags      Tags
	Content   string
}

func NewTextNote(content string, tags Tags) UnsignedEvent {
	return UnsignedEvent{
		CreatedAt: time.Now().Unix(),
		Kind:      KindTextNote,
		Tags:      tags,
		Content:   content,
	}
}

func (e Event) Time() time.Time {
	return time.Unix(e.CreatedAt, 0)
}

// Marshal encodes the event as a JSON object.
func (e Event) Marshal() ([]byte, error) {
	if e.Tags == nil {
		e.Tags = Tags{}
	}
	return json.Marshal(e)
}

// ComputeID hashes the canonical serialization of the event fields.
func ComputeID(pubkey string, createdAt int64, kind int, tags Tags, content string) [32]byte {
	return sha256.Sum256(serialize(pubkey, createdAt, kind, tags, content))
}

// serialize builds [0,pubkey,created_at,kind,tags,content] without the html
// escaping encoding/json applies, so the bytes match what other clients hash.
func serialize(pubkey string, createdAt int64, kind int, tags Tags, content string) []byte {
	b := make([]byte, 0, 128+len(content))
	b = append(b, `[0,`...)
	b = appendString(b, pubkey)
	b = append(b, ',')
	b = strconv.AppendInt(b, createdAt, 10)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(kind), 10)
	b = append(b, ",["...)
	for i, tag := range tags {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '[')
		for j, s := range tag {
			if j > 0 {
				b = append(b, ',')
			}
			b = appendString(b, s)
		}
		b = append(b, ']')
	}
	b = append(b, "],"...)
	b = appendString(b, content)
	b = append(b, ']')
	return b
}

const hexDigits = "0123456789abcdef"

func appendString(b []byte, s string) []byte {
	b = append(b, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b = append(b, '\\', '"')
		case '\\':
			b = append(b, '\\', '\\')
		case '\n':
			b = append(b, '\\', 'n')
		case '\r':
			b = append(b, '\\', 'r')
		case '\t':
			b = append(b, '\\', 't')
		case '\b':
			b = append(b, '\\', 'b')
		case '\f':
			b = append(b, '\\', 'f')
		default:
			if c < 0x20 {
				b = append(b, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
				continue
			}
			b = append(b, c)
		}
	}
	return append(b, '"')
}
