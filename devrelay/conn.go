package devrelay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nicebartender/nostrbot/nostr"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 20 // 1MB
)

// conn is one client connected to the relay.
type conn struct {
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte
	done chan struct{} // closed on unregister

	mu   sync.RWMutex
	subs map[string][]nostr.Filter
}

func newConn(hub *Hub, ws *websocket.Conn) *conn {
	return &conn{
		hub:  hub,
		ws:   ws,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
		subs: make(map[string][]nostr.Filter),
	}
}

func (c *conn) sendFrame(data []byte, err error) {
	if err != nil {
		c.hub.logger.Error("encode frame", "err", err)
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		c.hub.logger.Warn("client send buffer full, dropping frame")
	}
}

func (c *conn) subscribe(id string, filters []nostr.Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[id] = filters
}

func (c *conn) unsubscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, id)
}

// matching returns the subscriptions ev should be delivered to.
func (c *conn) matching(ev nostr.Event) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var ids []string
	for id, filters := range c.subs {
		for _, f := range filters {
			if f.Matches(ev) {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids
}

func (c *conn) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopped:
		}
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMsgSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("client disconnected", "err", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.handleMessage(c, message)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
