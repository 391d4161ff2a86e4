// Package ws streams table room events to browsers over a websocket.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xraph/tablebill/realtime"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 1024
)

// Handler upgrades requests and relays one table room per connection.
type Handler struct {
	ch       realtime.Channel
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithCheckOrigin overrides the upgrader's origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Handler) { h.upgrader.CheckOrigin = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

func NewHandler(ch realtime.Channel, opts ...Option) *Handler {
	h := &Handler{
		ch: ch,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve upgrades the request and streams tableID's events until the client
// disconnects. A non-empty participantKey is announced in the room's
// presence list.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, tableID, participantKey, displayName string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "table_id", tableID, "error", err)
		return
	}
	c := &client{conn: conn, logger: h.logger}

	mux := realtime.NewMux()
	mux.OnAny(func(_ context.Context, ev realtime.Event) {
		if err := c.send(ev); err != nil {
			_ = conn.Close()
		}
	})

	var opts []realtime.SubscribeOption
	if participantKey != "" {
		opts = append(opts, realtime.WithPresence(participantKey, displayName))
	}
	sub, err := h.ch.Subscribe(tableID, mux, opts...)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	done := make(chan struct{})
	go c.pingLoop(done)

	// The client is told to re-fetch once it is subscribed, so nothing
	// published between its last read and now is missed.
	_ = c.send(realtime.NewEvent(tableID, realtime.FullRefresh{Reason: "connected"}))

	c.readLoop()

	close(done)
	_ = conn.Close()
	sub.Unsubscribe()
	h.logger.Debug("websocket closed", "table_id", tableID, "participant", participantKey)
}

type client struct {
	conn   *websocket.Conn
	logger *slog.Logger
	mu     sync.Mutex
}

func (c *client) send(ev realtime.Event) error {
	data, err := realtime.Encode(ev)
	if err != nil {
		c.logger.Warn("websocket encode failed", "kind", ev.Kind, "error", err)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop discards client messages and returns when the connection drops.
func (c *client) readLoop() {
	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
