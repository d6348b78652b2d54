package relay

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"
)

// Network selects how connections to relays are made.
type Network int

const (
	Clearnet Network = iota
	Tor
)

const DefaultTorProxy = "127.0.0.1:9050"

func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "clearnet", "direct":
		return Clearnet, nil
	case "tor":
		return Tor, nil
	default:
		return Clearnet, fmt.Errorf("unknown network %q", s)
	}
}

func (n Network) String() string {
	switch n {
	case Tor:
		return "tor"
	default:
		return "clearnet"
	}
}

// Dialer opens relay connections over the configured network.
type Dialer struct {
	Network          Network
	TorProxy         string
	HandshakeTimeout time.Duration
}

func (d Dialer) websocketDialer() (*websocket.Dialer, error) {
	wd := &websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}
	if wd.HandshakeTimeout == 0 {
		wd.HandshakeTimeout = 15 * time.Second
	}
	if d.Network != Tor {
		return wd, nil
	}

	addr := d.TorProxy
	if addr == "" {
		addr = DefaultTorProxy
	}
	socks, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("tor proxy %s: %w", addr, err)
	}
	wd.NetDialContext = func(ctx context.Context, network, address string) (net.Conn, error) {
		if cd, ok := socks.(proxy.ContextDialer); ok {
			return cd.DialContext(ctx, network, address)
		}
		return socks.Dial(network, address)
	}
	return wd, nil
}

// Dial connects to a single relay.
func (d Dialer) Dial(ctx context.Context, url string) (*Client, error) {
	wd, err := d.websocketDialer()
	if err != nil {
		return nil, &ConnectionError{URL: url, Err: err}
	}
	conn, _, err := wd.DialContext(ctx, url, nil)
	if err != nil {
		return nil, &ConnectionError{URL: url, Err: err}
	}
	return newClient(url, conn), nil
}
