package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nicebartender/nostrbot/nostr"
	"github.com/nicebartender/nostrbot/observability"
	"github.com/nicebartender/nostrbot/relay"
)

var (
	ErrNoSinks       = errors.New("no relay sinks to send to")
	ErrNotSubscribed = errors.New("subscription reached no relay")
)

// SendError reports a failed write to one relay.
type SendError struct {
	URL string
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.URL, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// SinkSet is anything that can hand out the current relay sinks.
type SinkSet interface {
	Sinks() []relay.Sink
}

// Sender signs outbound events and writes them to every relay.
type Sender struct {
	sinks  SinkSet
	signer nostr.Signer
	logger *slog.Logger
}

func NewSender(sinks SinkSet, signer nostr.Signer, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{sinks: sinks, signer: signer, logger: logger}
}

// Send signs u and broadcasts it. Failed writes are logged per relay and do
// not stop delivery to the others; only an empty sink set is an error.
func (s *Sender) Send(ctx context.Context, u nostr.UnsignedEvent) (nostr.Event, error) {
	ev, err := nostr.Sign(u, s.signer)
	if err != nil {
		return nostr.Event{}, err
	}
	frame, err := nostr.EventFrame(ev)
	if err != nil {
		return nostr.Event{}, fmt.Errorf("encode event: %w", err)
	}
	if _, err := s.Broadcast(ctx, frame); err != nil {
		return nostr.Event{}, err
	}
	s.logger.Debug("event sent", "id", ev.ID, "kind", ev.Kind)
	return ev, nil
}

// Subscribe sends a REQ for filter to every sink. It succeeds if at least
// one relay accepted the write.
func (s *Sender) Subscribe(ctx context.Context, subID string, filter nostr.Filter) error {
	req, err := nostr.ReqFrame(subID, filter)
	if err != nil {
		return fmt.Errorf("encode subscription: %w", err)
	}
	sinks := len(s.sinks.Sinks())
	failed, err := s.Broadcast(ctx, req)
	if err != nil {
		return err
	}
	if len(failed) >= sinks {
		errs := []error{ErrNotSubscribed}
		for _, f := range failed {
			errs = append(errs, f)
		}
		return errors.Join(errs...)
	}
	if len(failed) > 0 {
		s.logger.Warn("subscription missing on some relays", "sub", subID, "failed", len(failed), "relays", sinks)
	}
	return nil
}

// Broadcast writes a raw frame to every sink concurrently and returns the
// per-sink failures.
func (s *Sender) Broadcast(ctx context.Context, frame []byte) ([]*SendError, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sinks := s.sinks.Sinks()
	if len(sinks) == 0 {
		return nil, ErrNoSinks
	}

	var (
		mu     sync.Mutex
		failed []*SendError
		wg     sync.WaitGroup
	)
	for _, sink := range sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := sink.WriteFrame(frame)
			observability.RecordSinkWrite(sink.URL(), err == nil)
			if err == nil {
				return
			}
			serr := &SendError{URL: sink.URL(), Err: err}
			s.logger.Warn("relay write failed", "url", sink.URL(), "err", err)
			mu.Lock()
			failed = append(failed, serr)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return failed, nil
}
