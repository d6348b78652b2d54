package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nicebartender/nostrbot/nostr"
	"github.com/nicebartender/nostrbot/observability"
	"github.com/nicebartender/nostrbot/relay"
)

var ErrRelaysLost = errors.New("all relay streams ended")

const maxReconnectDelay = time.Minute

type Status int32

const (
	StatusUnconnected Status = iota
	StatusConnected
	StatusRunning
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	default:
		return "unconnected"
	}
}

// Task is long-running work started alongside the receive loop.
type Task func(ctx context.Context)

// Profile is published once when the bot starts running.
type Profile struct {
	Name         string
	About        string
	Picture      string
	IntroMessage string
}

type Options struct {
	Relays  []string
	Dialer  relay.Dialer
	Profile Profile
	Logger  *slog.Logger

	// Dedup drops events whose id was already handled. Without it an event
	// delivered by several relays is handled once per relay.
	Dedup          Deduper
	HandlerTimeout time.Duration
	// ReconnectDelay > 0 redials relays whose stream ends, backing off up
	// to a minute between attempts.
	ReconnectDelay time.Duration
	// MentionsOnly subscribes to notes tagging the bot instead of all notes.
	MentionsOnly bool
	// Filter replaces the default subscription filter.
	Filter *nostr.Filter
}

// Bot wires relay connections, the command table and the shared state.
type Bot[S any] struct {
	signer   nostr.Signer
	opts     Options
	logger   *slog.Logger
	commands *Commands[S]
	sender   *Sender
	tasks    []Task
	status   atomic.Int32

	mu    sync.RWMutex
	pool  *relay.Pool
	subID string
}

func New[S any](signer nostr.Signer, opts Options) *Bot[S] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bot[S]{
		signer:   signer,
		opts:     opts,
		logger:   logger,
		commands: NewCommands[S](),
		subID:    uuid.NewString(),
	}
	b.sender = NewSender(b, signer, logger)
	return b
}

func (b *Bot[S]) Command(c Command[S]) error {
	return b.commands.Add(c)
}

// Help registers the !help command.
func (b *Bot[S]) Help() error {
	return b.commands.Add(HelpCommand(b.commands))
}

// Spawn registers a task started when Run begins. Tasks receive Run's
// context and are not waited for.
func (b *Bot[S]) Spawn(task Task) {
	b.tasks = append(b.tasks, task)
}

// Sender publishes signed events to the bot's relays.
func (b *Bot[S]) Sender() *Sender {
	return b.sender
}

func (b *Bot[S]) PublicKey() string {
	return b.signer.PublicKey()
}

func (b *Bot[S]) Status() Status {
	return Status(b.status.Load())
}

// Sinks implements SinkSet over the current connections.
func (b *Bot[S]) Sinks() []relay.Sink {
	b.mu.RLock()
	pool := b.pool
	b.mu.RUnlock()
	if pool == nil {
		return nil
	}
	return pool.Sinks()
}

// Connect opens connections to the configured relays. It fails only if none
// of them can be reached.
func (b *Bot[S]) Connect(ctx context.Context) error {
	if b.Status() != StatusUnconnected {
		return fmt.Errorf("connect: bot is %s", b.Status())
	}
	b.logger.Debug("connecting to relays", "count", len(b.opts.Relays), "network", b.opts.Dialer.Network)
	pool, err := relay.Connect(ctx, b.opts.Relays, b.opts.Dialer, b.logger)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.pool = pool
	b.mu.Unlock()
	b.status.Store(int32(StatusConnected))
	observability.SetRelaysConnected(pool.Len())
	return nil
}

// Run connects if needed, publishes the profile, subscribes and handles
// events until ctx ends or every relay stream is gone.
func (b *Bot[S]) Run(ctx context.Context, state *State[S]) error {
	if b.Status() == StatusUnconnected {
		if err := b.Connect(ctx); err != nil {
			return err
		}
	}
	if !b.status.CompareAndSwap(int32(StatusConnected), int32(StatusRunning)) {
		return fmt.Errorf("run: bot is %s", b.Status())
	}

	b.mu.RLock()
	pool := b.pool
	b.mu.RUnlock()
	defer func() {
		pool.Close()
		observability.SetRelaysConnected(0)
		b.status.Store(int32(StatusStopped))
		b.logger.Info("bot stopped")
	}()

	b.publishProfile(ctx)

	filter := b.subscriptionFilter(time.Now())
	if err := b.subscribe(ctx, filter); err != nil {
		return err
	}

	for _, task := range b.tasks {
		go task(ctx)
	}

	dispatcher := NewDispatcher(b.commands, state, b.sender, DispatcherOptions{
		Self:           b.signer.PublicKey(),
		Dedup:          b.opts.Dedup,
		HandlerTimeout: b.opts.HandlerTimeout,
		Logger:         b.logger,
	})

	b.logger.Info("bot running", "pubkey", b.signer.PublicKey(), "relays", pool.Len())
	var wg sync.WaitGroup
	for _, stream := range pool.Streams() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.consume(ctx, stream, dispatcher, filter)
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil
	}
	return ErrRelaysLost
}

// consume feeds one relay's frames to the dispatcher in arrival order. A
// frame already being handled finishes even if ctx ends meanwhile.
func (b *Bot[S]) consume(ctx context.Context, stream relay.Stream, d *Dispatcher[S], filter nostr.Filter) {
	handleCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-stream.Frames():
			if ok {
				d.HandleFrame(handleCtx, stream.URL(), data)
				continue
			}
		}

		if ctx.Err() != nil {
			return
		}
		b.logger.Warn("relay stream ended", "url", stream.URL())
		observability.SetRelaysConnected(len(b.Sinks()))
		if b.opts.ReconnectDelay <= 0 {
			return
		}
		since := time.Now().Unix()
		filter.Since = &since
		next, err := b.reconnect(ctx, stream.URL(), filter)
		if err != nil {
			return
		}
		stream = next
	}
}

func (b *Bot[S]) reconnect(ctx context.Context, url string, filter nostr.Filter) (relay.Stream, error) {
	delay := b.opts.ReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		c, err := b.pool.Reconnect(ctx, url)
		if err != nil {
			b.logger.Warn("relay reconnect failed", "url", url, "retry_in", delay, "err", err)
			delay = min(delay*2, maxReconnectDelay)
			continue
		}
		observability.SetRelaysConnected(len(b.Sinks()))
		req, err := nostr.ReqFrame(b.subID, filter)
		if err == nil {
			err = c.WriteFrame(req)
		}
		if err != nil {
			b.logger.Warn("resubscribe failed", "url", url, "err", err)
		}
		return c, nil
	}
}

func (b *Bot[S]) subscriptionFilter(now time.Time) nostr.Filter {
	if b.opts.Filter != nil {
		return *b.opts.Filter
	}
	since := now.Unix()
	f := nostr.Filter{Kinds: []int{nostr.KindTextNote}, Since: &since}
	if b.opts.MentionsOnly {
		f.PTags = []string{b.signer.PublicKey()}
	}
	return f
}

func (b *Bot[S]) subscribe(ctx context.Context, filter nostr.Filter) error {
	if err := b.sender.Subscribe(ctx, b.subID, filter); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	b.logger.Debug("subscribed", "sub", b.subID)
	return nil
}

func (b *Bot[S]) publishProfile(ctx context.Context) {
	p := b.opts.Profile
	meta := nostr.Metadata{Name: p.Name, About: p.About, Picture: p.Picture}
	if !meta.IsZero() {
		u, err := nostr.MetadataEvent(meta)
		if err == nil {
			_, err = b.sender.Send(ctx, u)
		}
		if err != nil {
			b.logger.Error("profile not published", "err", err)
		}
	}
	if p.IntroMessage != "" {
		if _, err := b.sender.Send(ctx, nostr.NewTextNote(p.IntroMessage, nil)); err != nil {
			b.logger.Error("intro message not published", "err", err)
		}
	}
}
