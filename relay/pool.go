package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

var ErrNoRelaysAvailable = errors.New("no relays available")

// ConnectionError reports a relay that could not be reached.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Pool holds one live connection per reachable relay.
type Pool struct {
	dialer Dialer
	logger *slog.Logger

	mu      sync.RWMutex
	clients []*Client
}

// Connect dials every endpoint concurrently. Endpoints that fail are logged
// and left out; only when all of them fail is ErrNoRelaysAvailable returned.
func Connect(ctx context.Context, endpoints []string, d Dialer, logger *slog.Logger) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	endpoints = normalize(endpoints)

	results := make([]*Client, len(endpoints))
	errs := make([]error, len(endpoints))
	var wg sync.WaitGroup
	for i, url := range endpoints {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = d.Dial(ctx, url)
		}()
	}
	wg.Wait()

	p := &Pool{dialer: d, logger: logger}
	for i, c := range results {
		if errs[i] != nil {
			logger.Warn("relay unreachable", "url", endpoints[i], "network", d.Network, "err", errs[i])
			continue
		}
		logger.Info("relay connected", "url", c.URL(), "network", d.Network)
		p.clients = append(p.clients, c)
	}

	if len(p.clients) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoRelaysAvailable, errors.Join(errs...))
	}
	return p, nil
}

func normalize(endpoints []string) []string {
	out := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		e = strings.TrimSpace(e)
		if e == "" || slices.Contains(out, e) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.clients)
}

// Clients returns a snapshot of the current connections.
func (p *Pool) Clients() []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.clients)
}

// Sinks returns the outbound halves of the live connections.
func (p *Pool) Sinks() []Sink {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Sink, 0, len(p.clients))
	for _, c := range p.clients {
		if c.Alive() {
			out = append(out, c)
		}
	}
	return out
}

// Streams returns the inbound halves, one per connection.
func (p *Pool) Streams() []Stream {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Stream, 0, len(p.clients))
	for _, c := range p.clients {
		out = append(out, c)
	}
	return out
}

// Reconnect dials url again and swaps the new connection in for the old one.
// The old connection is closed, never reused.
func (p *Pool) Reconnect(ctx context.Context, url string) (*Client, error) {
	c, err := p.dialer.Dial(ctx, url)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	var old *Client
	idx := slices.IndexFunc(p.clients, func(existing *Client) bool { return existing.URL() == url })
	if idx >= 0 {
		old = p.clients[idx]
		p.clients[idx] = c
	} else {
		p.clients = append(p.clients, c)
	}
	p.mu.Unlock()

	if old != nil {
		old.Close()
	}
	p.logger.Info("relay reconnected", "url", url)
	return c, nil
}

// Close shuts every connection down.
func (p *Pool) Close() {
	p.mu.Lock()
	clients := p.clients
	p.clients = nil
	p.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
