// Package devrelay is a small in-memory relay for local development and
// tests. It keeps recent events, serves subscriptions and verifies every
// event it is handed.
package devrelay

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nicebartender/nostrbot/nostr"
)

const defaultMaxEvents = 1000

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Hub struct {
	cmu        sync.RWMutex
	clients    map[*conn]bool
	register   chan *conn
	unregister chan *conn
	drop       chan chan struct{}
	stopped    chan struct{}

	mu        sync.RWMutex
	events    []nostr.Event
	maxEvents int

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*conn]bool),
		register:   make(chan *conn),
		unregister: make(chan *conn),
		drop:       make(chan chan struct{}),
		stopped:    make(chan struct{}),
		maxEvents:  defaultMaxEvents,
		logger:     logger,
	}
}

// Run owns client registration until ctx ends. It must be called once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.removeAll()
			return

		case c := <-h.register:
			h.cmu.Lock()
			h.clients[c] = true
			h.cmu.Unlock()
			h.logger.Debug("client connected", "remote", c.ws.RemoteAddr())

		case c := <-h.unregister:
			h.remove(c)

		case ack := <-h.drop:
			h.removeAll()
			close(ack)
		}
	}
}

func (h *Hub) remove(c *conn) {
	h.cmu.Lock()
	defer h.cmu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.done)
		h.logger.Debug("client unregistered", "remote", c.ws.RemoteAddr())
	}
}

func (h *Hub) removeAll() {
	for _, c := range h.snapshot() {
		h.remove(c)
	}
}

func (h *Hub) snapshot() []*conn {
	h.cmu.RLock()
	defer h.cmu.RUnlock()
	out := make([]*conn, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.cmu.RLock()
	defer h.cmu.RUnlock()
	return len(h.clients)
}

// Subscriptions reports the number of open subscriptions across clients.
func (h *Hub) Subscriptions() int {
	n := 0
	for _, c := range h.snapshot() {
		c.mu.RLock()
		n += len(c.subs)
		c.mu.RUnlock()
	}
	return n
}

// DropClients closes every current connection.
func (h *Hub) DropClients() {
	ack := make(chan struct{})
	select {
	case h.drop <- ack:
		<-ack
	case <-h.stopped:
	}
}

// ServeHTTP upgrades the request and serves the relay protocol on it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	c := newConn(h, ws)
	select {
	case h.register <- c:
	case <-h.stopped:
		ws.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// Events returns a copy of the stored events, oldest first.
func (h *Hub) Events() []nostr.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.events)
}

// Publish stores ev and delivers it to matching subscriptions without
// verifying it.
func (h *Hub) Publish(ev nostr.Event) {
	h.store(ev)
	h.fanout(ev)
}

func (h *Hub) store(ev nostr.Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, have := range h.events {
		if have.ID == ev.ID {
			return false
		}
	}
	h.events = append(h.events, ev)
	if over := len(h.events) - h.maxEvents; over > 0 {
		h.events = slices.Delete(h.events, 0, over)
	}
	return true
}

func (h *Hub) fanout(ev nostr.Event) {
	for _, c := range h.snapshot() {
		for _, sub := range c.matching(ev) {
			c.sendFrame(nostr.SubscriptionEventFrame(sub, ev))
		}
	}
}

func (h *Hub) handleMessage(c *conn, data []byte) {
	f, err := nostr.ParseFrame(data)
	if err != nil {
		h.logger.Warn("invalid message", "err", err)
		c.sendFrame(nostr.NoticeFrame("invalid: " + err.Error()))
		return
	}

	switch f.Type {
	case nostr.FrameEvent:
		ev, err := nostr.Validate(f.Event)
		if err != nil {
			id := ""
			if parsed, perr := nostr.ParseEvent(f.Event); perr == nil {
				id = parsed.ID
			}
			c.sendFrame(nostr.OKFrame(id, false, "invalid: "+err.Error()))
			return
		}
		if !h.store(ev) {
			c.sendFrame(nostr.OKFrame(ev.ID, true, "duplicate: already have this event"))
			return
		}
		c.sendFrame(nostr.OKFrame(ev.ID, true, ""))
		h.fanout(ev)

	case nostr.FrameReq:
		c.subscribe(f.SubscriptionID, f.Filters)
		for _, ev := range h.backlog(f.Filters) {
			c.sendFrame(nostr.SubscriptionEventFrame(f.SubscriptionID, ev))
		}
		c.sendFrame(nostr.EOSEFrame(f.SubscriptionID))

	case nostr.FrameClose:
		c.unsubscribe(f.SubscriptionID)
		c.sendFrame(nostr.ClosedFrame(f.SubscriptionID, ""))

	default:
		c.sendFrame(nostr.NoticeFrame("unsupported: " + f.Type))
	}
}

// backlog returns stored events matching any filter, honoring the smallest
// positive limit by keeping the newest events.
func (h *Hub) backlog(filters []nostr.Filter) []nostr.Event {
	limit := 0
	for _, f := range filters {
		if f.Limit > 0 && (limit == 0 || f.Limit < limit) {
			limit = f.Limit
		}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []nostr.Event
	for _, ev := range h.events {
		if slices.ContainsFunc(filters, func(f nostr.Filter) bool { return f.Matches(ev) }) {
			out = append(out, ev)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// ListenAndServe serves the relay on addr until ctx ends.
func (h *Hub) ListenAndServe(ctx context.Context, addr string) error {
	go h.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	h.logger.Info("relay listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
