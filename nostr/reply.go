package nostr

import (
	"encoding/json"
	"time"
)

// BuildReply addresses content as a reply to orig. The thread root is carried
// over when orig already belongs to a thread.
func BuildReply(orig Event, content string) UnsignedEvent {
	var tags Tags
	for _, t := range orig.Tags.Find("e") {
		if len(t) >= 4 && t[3] == "root" {
			tags = append(tags, Tag{"e", t.Value(), relayHint(t), "root"})
			break
		}
	}
	tags = append(tags,
		Tag{"e", orig.ID, "", "reply"},
		Tag{"p", orig.PubKey},
	)
	return UnsignedEvent{
		CreatedAt: time.Now().Unix(),
		Kind:      KindTextNote,
		Tags:      tags,
		Content:   content,
	}
}

func relayHint(t Tag) string {
	if len(t) < 3 {
		return ""
	}
	return t[2]
}

// RepliesTo reports whether ev carries an e tag pointing at id.
func (e Event) RepliesTo(id string) bool {
	for _, t := range e.Tags.Find("e") {
		if t.Value() == id {
			return true
		}
	}
	return false
}

type Metadata struct {
	Name    string `json:"name,omitempty"`
	About   string `json:"about,omitempty"`
	Picture string `json:"picture,omitempty"`
}

func (m Metadata) IsZero() bool {
	return m == Metadata{}
}

// MetadataEvent builds the kind 0 profile event for m.
func MetadataEvent(m Metadata) (UnsignedEvent, error) {
	content, err := json.Marshal(m)
	if err != nil {
		return UnsignedEvent{}, err
	}
	return UnsignedEvent{
		CreatedAt: time.Now().Unix(),
		Kind:      KindMetadata,
		Tags:      Tags{},
		Content:   string(content),
	}, nil
}
