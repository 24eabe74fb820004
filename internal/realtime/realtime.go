// Package realtime maintains the websocket change feed and dispatches table
// events to subscribers. A subscription is a scoped resource: Subscribe
// acquires it, Close releases it, and Close is safe to defer on every exit
// path. Handlers run sequentially on the feed's single read goroutine, so
// discrete cache writes they perform never interleave with each other.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"sync"

	"quad/internal/models"

	"github.com/gorilla/websocket"
)

// Handler consumes one realtime table event.
type Handler func(ev models.TableEvent)

// Filter limits a subscription to matching events.
type Filter func(ev models.TableEvent) bool

// ChatFilter matches message events belonging to one chat.
func ChatFilter(chatID string) Filter {
	return func(ev models.TableEvent) bool {
		msg, err := ev.Message()
		if err != nil {
			return false
		}
		return msg.ChatID == chatID
	}
}

// Client owns the websocket connection to the change feed.
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool

	done chan struct{}
}

// Dial connects to the change feed at wsURL (ws:// or wss://), authenticating
// with the session token, and starts the read loop.
func Dial(ctx context.Context, wsURL, token string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, models.NewValidationError("invalid realtime url: " + err.Error())
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, models.NewRemoteWriteError(err)
	}

	c := &Client{
		conn:   conn,
		logger: logger,
		subs:   make(map[*Subscription]struct{}),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Subscribe registers handlers for insert/update events on a table. filter
// may be nil to receive every event for the table. The returned subscription
// must be released with Close.
func (c *Client) Subscribe(table string, filter Filter, onInsert, onUpdate Handler) (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, models.NewValidationError("realtime client is closed")
	}
	sub := &Subscription{
		client:   c,
		table:    table,
		filter:   filter,
		onInsert: onInsert,
		onUpdate: onUpdate,
	}
	c.subs[sub] = struct{}{}
	return sub, nil
}

// Close tears down the connection and releases every open subscription.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.subs = make(map[*Subscription]struct{})
	c.mu.Unlock()

	_ = c.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	err := c.conn.Close()
	<-c.done
	return err
}

// Done is closed when the read loop has exited (connection lost or closed).
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.logger.Warn("realtime feed disconnected", slog.String("error", err.Error()))
			}
			return
		}
		var ev models.TableEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.logger.Warn("dropping undecodable realtime frame", slog.String("error", err.Error()))
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Client) dispatch(ev models.TableEvent) {
	c.mu.Lock()
	targets := make([]*Subscription, 0, len(c.subs))
	for sub := range c.subs {
		if sub.table == ev.Table {
			targets = append(targets, sub)
		}
	}
	c.mu.Unlock()

	for _, sub := range targets {
		sub.deliver(ev)
	}
}

// Subscription is one registered listener on the change feed.
type Subscription struct {
	client   *Client
	table    string
	filter   Filter
	onInsert Handler
	onUpdate Handler
	once     sync.Once
}

func (s *Subscription) deliver(ev models.TableEvent) {
	if s.filter != nil && !s.filter(ev) {
		return
	}
	switch ev.Type {
	case models.EventInsert:
		if s.onInsert != nil {
			s.onInsert(ev)
		}
	case models.EventUpdate:
		if s.onUpdate != nil {
			s.onUpdate(ev)
		}
	}
}

// Close unregisters the subscription. Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.client.mu.Lock()
		delete(s.client.subs, s)
		s.client.mu.Unlock()
	})
}
