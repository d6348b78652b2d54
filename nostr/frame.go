package nostr

import (
	"encoding/json"
	"fmt"
)

// Frame labels as they appear in the first array slot of a relay message.
const (
	FrameEvent  = "EVENT"
	FrameReq    = "REQ"
	FrameClose  = "CLOSE"
	FrameOK     = "OK"
	FrameEOSE   = "EOSE"
	FrameClosed = "CLOSED"
	FrameNotice = "NOTICE"
	FrameAuth   = "AUTH"
)

// Frame is one decoded relay message. Which fields are set depends on Type.
// Event stays raw so it can be validated separately.
type Frame struct {
	Type           string
	SubscriptionID string
	Event          json.RawMessage
	Filters        []Filter
	EventID        string
	OK             bool
	Message        string
}

// ParseFrame decodes a message in either direction (client to relay or
// relay to client).
func ParseFrame(data []byte) (Frame, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return Frame{}, &ParseError{Reason: "frame is not a json array", Err: err}
	}
	if len(parts) == 0 {
		return Frame{}, &ParseError{Reason: "empty frame"}
	}

	var f Frame
	if err := json.Unmarshal(parts[0], &f.Type); err != nil {
		return Frame{}, &ParseError{Reason: "frame label", Err: err}
	}
	args := parts[1:]

	var err error
	switch f.Type {
	case FrameEvent:
		switch len(args) {
		case 1:
			f.Event = args[0]
		case 2:
			err = json.Unmarshal(args[0], &f.SubscriptionID)
			f.Event = args[1]
		default:
			return Frame{}, arity(f.Type, len(args))
		}
	case FrameReq:
		if len(args) < 1 {
			return Frame{}, arity(f.Type, len(args))
		}
		err = json.Unmarshal(args[0], &f.SubscriptionID)
		for _, raw := range args[1:] {
			if err != nil {
				break
			}
			var filter Filter
			err = json.Unmarshal(raw, &filter)
			f.Filters = append(f.Filters, filter)
		}
	case FrameClose, FrameEOSE:
		if len(args) != 1 {
			return Frame{}, arity(f.Type, len(args))
		}
		err = json.Unmarshal(args[0], &f.SubscriptionID)
	case FrameClosed:
		if len(args) < 1 {
			return Frame{}, arity(f.Type, len(args))
		}
		err = json.Unmarshal(args[0], &f.SubscriptionID)
		if err == nil && len(args) > 1 {
			err = json.Unmarshal(args[1], &f.Message)
		}
	case FrameOK:
		if len(args) < 2 {
			return Frame{}, arity(f.Type, len(args))
		}
		err = json.Unmarshal(args[0], &f.EventID)
		if err == nil {
			err = json.Unmarshal(args[1], &f.OK)
		}
		if err == nil && len(args) > 2 {
			err = json.Unmarshal(args[2], &f.Message)
		}
	case FrameNotice:
		if len(args) < 1 {
			return Frame{}, arity(f.Type, len(args))
		}
		err = json.Unmarshal(args[0], &f.Message)
	case FrameAuth:
		if len(args) < 1 {
			return Frame{}, arity(f.Type, len(args))
		}
		// a string challenge from a relay, an event from a client
		if json.Unmarshal(args[0], &f.Message) != nil {
			f.Event = args[0]
		}
	default:
		return Frame{}, &ParseError{Reason: fmt.Sprintf("unknown frame %q", f.Type)}
	}
	if err != nil {
		return Frame{}, &ParseError{Reason: "malformed " + f.Type + " frame", Err: err}
	}
	return f, nil
}

func arity(label string, n int) error {
	return &ParseError{Reason: fmt.Sprintf("%s frame with %d arguments", label, n)}
}

func withTags(ev Event) Event {
	if ev.Tags == nil {
		ev.Tags = Tags{}
	}
	return ev
}

// EventFrame is a client publishing ev.
func EventFrame(ev Event) ([]byte, error) {
	return json.Marshal([]any{FrameEvent, withTags(ev)})
}

// SubscriptionEventFrame is a relay delivering ev for a subscription.
func SubscriptionEventFrame(subID string, ev Event) ([]byte, error) {
	return json.Marshal([]any{FrameEvent, subID, withTags(ev)})
}

func ReqFrame(subID string, filters ...Filter) ([]byte, error) {
	msg := []any{FrameReq, subID}
	for _, f := range filters {
		msg = append(msg, f)
	}
	return json.Marshal(msg)
}

func CloseFrame(subID string) ([]byte, error) {
	return json.Marshal([]any{FrameClose, subID})
}

func OKFrame(eventID string, ok bool, message string) ([]byte, error) {
	return json.Marshal([]any{FrameOK, eventID, ok, message})
}

func EOSEFrame(subID string) ([]byte, error) {
	return json.Marshal([]any{FrameEOSE, subID})
}

func ClosedFrame(subID, message string) ([]byte, error) {
	return json.Marshal([]any{FrameClosed, subID, message})
}

func NoticeFrame(message string) ([]byte, error) {
	return json.Marshal([]any{FrameNotice, message})
}
