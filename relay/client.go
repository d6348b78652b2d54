package relay

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 90 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 1 << 20 // 1MB
)

// Sink is the outbound half of a relay connection.
type Sink interface {
	URL() string
	WriteFrame(data []byte) error
}

// Stream is the inbound half of a relay connection. Frames is closed when the
// connection ends.
type Stream interface {
	URL() string
	Frames() <-chan []byte
}

// Client is one websocket connection to a relay.
type Client struct {
	url  string
	conn *websocket.Conn

	writeMu sync.Mutex

	mu    sync.Mutex
	alive bool

	frames    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(url string, conn *websocket.Conn) *Client {
	c := &Client{
		url:    url,
		conn:   conn,
		alive:  true,
		frames: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	go c.pingLoop()
	return c
}

func (c *Client) URL() string {
	return c.url
}

// Frames delivers inbound messages in the order the relay sent them.
func (c *Client) Frames() <-chan []byte {
	return c.frames
}

func (c *Client) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

func (c *Client) WriteFrame(data []byte) error {
	if !c.Alive() {
		return fmt.Errorf("write %s: connection closed", c.url)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", c.url, err)
	}
	return nil
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.alive = false
		c.mu.Unlock()
		close(c.done)
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.conn.Close()
	})
}

func (c *Client) readLoop() {
	defer func() {
		close(c.frames)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.alive = false
			c.mu.Unlock()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("relay read loop ended", "url", c.url, "err", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		select {
		case c.frames <- message:
		case <-c.done:
			return
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
