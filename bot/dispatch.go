package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nicebartender/nostrbot/nostr"
	"github.com/nicebartender/nostrbot/observability"
)

// Replier publishes reply events.
type Replier interface {
	Send(ctx context.Context, u nostr.UnsignedEvent) (nostr.Event, error)
}

// HandlerError reports a command handler that failed or panicked.
type HandlerError struct {
	Trigger string
	EventID string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("command %q on event %s: %v", e.Trigger, e.EventID, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

type DispatcherOptions struct {
	// Self is the bot's own public key; its events are never dispatched.
	Self           string
	Dedup          Deduper
	HandlerTimeout time.Duration
	Logger         *slog.Logger
}

// Dispatcher routes validated events to commands, one handler at a time.
type Dispatcher[S any] struct {
	commands *Commands[S]
	state    *State[S]
	replier  Replier
	opts     DispatcherOptions
	logger   *slog.Logger
}

func NewDispatcher[S any](commands *Commands[S], state *State[S], replier Replier, opts DispatcherOptions) *Dispatcher[S] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher[S]{
		commands: commands,
		state:    state,
		replier:  replier,
		opts:     opts,
		logger:   logger,
	}
}

// HandleFrame processes one raw frame read from relayURL. Nothing in here
// escapes as an error; problems are logged and the frame is dropped.
func (d *Dispatcher[S]) HandleFrame(ctx context.Context, relayURL string, data []byte) {
	f, err := nostr.ParseFrame(data)
	if err != nil {
		observability.RecordRejected("malformed_frame")
		d.logger.Warn("dropping malformed frame", "relay", relayURL, "err", err)
		return
	}
	observability.RecordFrame(relayURL, f.Type)

	switch f.Type {
	case nostr.FrameEvent:
		d.handleEvent(ctx, relayURL, f.Event)
	case nostr.FrameNotice:
		d.logger.Warn("relay notice", "relay", relayURL, "message", f.Message)
	case nostr.FrameClosed:
		d.logger.Warn("subscription closed by relay", "relay", relayURL, "sub", f.SubscriptionID, "message", f.Message)
	case nostr.FrameOK:
		if !f.OK {
			d.logger.Warn("relay rejected event", "relay", relayURL, "id", f.EventID, "message", f.Message)
			return
		}
		d.logger.Debug("relay accepted event", "relay", relayURL, "id", f.EventID)
	default:
		d.logger.Debug("relay frame", "relay", relayURL, "type", f.Type)
	}
}

func (d *Dispatcher[S]) handleEvent(ctx context.Context, relayURL string, raw []byte) {
	ev, err := nostr.Validate(raw)
	if err != nil {
		observability.RecordRejected(rejectReason(err))
		d.logger.Warn("dropping invalid event", "relay", relayURL, "err", err)
		return
	}
	if d.opts.Self != "" && ev.PubKey == d.opts.Self {
		return
	}
	cmd, args, ok := d.commands.Match(ev.Content)
	if !ok {
		return
	}
	if d.opts.Dedup != nil {
		seen, err := d.opts.Dedup.Seen(ctx, ev.ID)
		if err != nil {
			d.logger.Error("dedup lookup failed", "id", ev.ID, "err", err)
		} else if seen {
			observability.RecordRejected("duplicate")
			return
		}
	}

	reply, err := d.run(ctx, ev, cmd, args)
	if err != nil {
		d.logger.Error("command failed", "relay", relayURL, "err", err)
		if d.opts.Dedup != nil {
			if ferr := d.opts.Dedup.Forget(ctx, ev.ID); ferr != nil {
				d.logger.Error("dedup forget failed", "id", ev.ID, "err", ferr)
			}
		}
		return
	}
	if reply == nil {
		return
	}
	sent, err := d.replier.Send(ctx, *reply)
	if err != nil {
		d.logger.Error("reply not sent", "id", ev.ID, "err", err)
		return
	}
	d.logger.Info("replied", "to", ev.ID, "reply", sent.ID)
}

func rejectReason(err error) string {
	var perr *nostr.ParseError
	switch {
	case errors.As(err, &perr):
		return "malformed_event"
	case errors.Is(err, nostr.ErrBadIdentifier):
		return "bad_identifier"
	case errors.Is(err, nostr.ErrBadSignature):
		return "bad_signature"
	default:
		return "invalid"
	}
}

// Dispatch runs the first command whose trigger prefixes ev.Content while
// holding the state. Events that match nothing return (nil, nil).
func (d *Dispatcher[S]) Dispatch(ctx context.Context, ev nostr.Event) (*nostr.UnsignedEvent, error) {
	cmd, args, ok := d.commands.Match(ev.Content)
	if !ok {
		return nil, nil
	}
	return d.run(ctx, ev, cmd, args)
}

func (d *Dispatcher[S]) run(ctx context.Context, ev nostr.Event, cmd Command[S], args string) (*nostr.UnsignedEvent, error) {
	if d.opts.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.HandlerTimeout)
		defer cancel()
	}

	start := time.Now()
	var reply *nostr.UnsignedEvent
	err := d.state.With(ctx, func(s *S) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		reply, err = cmd.invoke(ctx, ev, s, args)
		return err
	})

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case reply == nil:
		outcome = "no_reply"
	}
	observability.RecordCommand(cmd.Trigger, outcome, time.Since(start))

	if err != nil {
		return nil, &HandlerError{Trigger: cmd.Trigger, EventID: ev.ID, Err: err}
	}
	d.logger.Debug("command handled", "trigger", cmd.Trigger, "id", ev.ID, "author", ev.PubKey, "created", ev.Time())
	return reply, nil
}
