package devserver

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"quad/internal/middleware"
	"quad/internal/models"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// FeedHub fans table change events out to every connected change-feed
// client. It is table-agnostic: clients filter on their side.
type FeedHub struct {
	mu      sync.RWMutex
	clients map[*feedClient]struct{}
	logger  *slog.Logger
}

// NewFeedHub creates an empty hub.
func NewFeedHub(logger *slog.Logger) *FeedHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedHub{
		clients: make(map[*feedClient]struct{}),
		logger:  logger,
	}
}

// Broadcast sends the event to every connected client. Slow clients drop the
// frame rather than stalling the others; dropped clients re-fetch on
// reconnect.
func (h *FeedHub) Broadcast(ev models.TableEvent) {
	raw, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("feed event marshal failed", slog.String("error", err.Error()))
		return
	}
	middleware.FeedEventsTotal.WithLabelValues(ev.Table, ev.Type).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		client.trySend(raw)
	}
}

func (h *FeedHub) register(c *feedClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	middleware.FeedConnections.Inc()
}

func (h *FeedHub) unregister(c *feedClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		middleware.FeedConnections.Dec()
		c.closeSend()
	}
}

// feedClient is the middleman between one websocket connection and the hub.
type feedClient struct {
	hub    *FeedHub
	conn   *websocket.Conn
	userID string
	send   chan []byte
	once   sync.Once
}

func newFeedClient(hub *FeedHub, conn *websocket.Conn, userID string) *feedClient {
	return &feedClient{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
	}
}

func (c *feedClient) trySend(message []byte) {
	defer func() {
		// Send on a closed channel races with unregister; dropping the
		// frame is the correct outcome either way.
		_ = recover()
	}()
	select {
	case c.send <- message:
	default:
		c.hub.logger.Warn("feed client buffer full, dropping event",
			slog.String("user_id", c.userID),
		)
	}
}

func (c *feedClient) closeSend() {
	c.once.Do(func() { close(c.send) })
}

// readPump consumes (and discards) client frames to keep the connection's
// control-frame handling alive.
func (c *feedClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump pumps hub events to the websocket connection.
func (c *feedClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
