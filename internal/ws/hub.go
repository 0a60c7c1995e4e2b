// Package ws serves the live-update WebSocket endpoint. Clients pick a site
// with a subscribe message and then receive every check completed for it.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/subscription"
)

const (
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong before treating the
	// connection as dead. pingPeriod must be less than it.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendBufSize  = 16
	maxFrameSize = 1024
)

type Hub struct {
	reg      *subscription.Registry
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// New returns a hub that records subscriptions in reg. An empty origins list
// accepts any Origin header.
func New(reg *subscription.Registry, log *zap.Logger, origins []string) *Hub {
	h := &Hub{
		reg:     reg,
		log:     log,
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(origins),
	}
	return h
}

func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		o := r.Header.Get("Origin")
		if o == "" {
			return true
		}
		_, ok := allowed[o]
		return ok
	}
}

// Run blocks until ctx is cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.reg.Unsubscribe(c)
		c.close()
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response
		h.log.Debug("ws_upgrade_failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufSize)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("ws_connected", zap.String("remote", r.RemoteAddr))

	defer func() {
		h.reg.Unsubscribe(c)
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		c.close()
		h.log.Debug("ws_disconnected", zap.String("remote", r.RemoteAddr))
	}()

	go c.writePump()
	h.readPump(c)
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		h.handle(c, msg)
	}
}

// handle applies one client message. Anything malformed is dropped and the
// connection stays open.
func (h *Hub) handle(c *client, msg []byte) {
	if !gjson.ValidBytes(msg) {
		h.log.Debug("ws_bad_message", zap.Int("bytes", len(msg)))
		return
	}
	switch gjson.GetBytes(msg, "type").String() {
	case "subscribe":
		raw := gjson.GetBytes(msg, "siteId").String()
		id, err := uuid.Parse(raw)
		if err != nil {
			h.log.Debug("ws_bad_site_id", zap.String("site_id", raw))
			return
		}
		// site ids are stored in canonical lowercase form
		h.reg.Subscribe(c, domain.SiteID(id.String()))
	case "unsubscribe":
		h.reg.Unsubscribe(c)
	default:
		h.log.Debug("ws_unknown_message", zap.String("type", gjson.GetBytes(msg, "type").String()))
	}
}

// client is one WebSocket connection. It satisfies subscription.Conn.
type client struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// Send queues p without blocking. A full buffer means the reader has stalled;
// the client is closed and ErrClosed returned.
func (c *client) Send(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return subscription.ErrClosed
	}
	select {
	case c.send <- p:
		return nil
	default:
		c.closed = true
		close(c.send)
		return subscription.ErrClosed
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump forwards queued messages and sends periodic pings. It owns all
// writes to the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
