package nostr

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrBadIdentifier = errors.New("event id does not match its contents")
	ErrBadSignature  = errors.New("invalid event signature")
)

// ParseError reports input that could not be decoded at all.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse: %s: %v", e.Reason, e.Err)
	}
	return "parse: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseEvent decodes a JSON event object without checking id or signature.
func ParseEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, &ParseError{Reason: "invalid event json", Err: err}
	}
	if len(ev.ID) != 64 || len(ev.PubKey) != 64 || len(ev.Sig) != 128 {
		return Event{}, &ParseError{Reason: "missing or malformed id, pubkey or sig"}
	}
	if ev.Tags == nil {
		ev.Tags = Tags{}
	}
	return ev, nil
}

// Validate parses raw and verifies that its id and signature were derived
// from the other fields.
func Validate(raw []byte) (Event, error) {
	ev, err := ParseEvent(raw)
	if err != nil {
		return Event{}, err
	}
	if err := Verify(ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Verify checks an already decoded event.
func Verify(ev Event) error {
	id := ComputeID(ev.PubKey, ev.CreatedAt, ev.Kind, ev.Tags, ev.Content)
	if hex.EncodeToString(id[:]) != ev.ID {
		return ErrBadIdentifier
	}
	return VerifySignature(ev.PubKey, id[:], ev.Sig)
}
