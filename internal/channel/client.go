package channel

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufSize    = 128

	baseReconnectDelay = time.Second
	maxReconnectDelay  = 30 * time.Second
)

// ErrClosed is returned by operations on a client that was shut down.
var ErrClosed = errors.New("channel: client closed")

// ClientConfig carries everything needed to reach the event endpoint.
type ClientConfig struct {
	// URL is the websocket endpoint, e.g. ws://localhost:4040/ws.
	URL string
	// UserID identifies the viewer; it rides along on the dial and signs
	// channel auth tokens.
	UserID string
	// Secret signs subscribe tokens for presence- and user-scoped channels.
	Secret []byte
}

// Client is the websocket event channel. One client serves the whole app:
// thread channels, the viewer's notification channel and the presence
// channel all multiplex over the single connection.
type Client struct {
	cfg    ClientConfig
	log    *zap.Logger
	disp   *dispatcher
	egress chan Envelope

	mu         sync.Mutex
	conn       *websocket.Conn
	subscribed map[string]struct{}
	closed     bool

	done chan struct{}
	once sync.Once
}

// NewClient constructs a disconnected client. Call Connect to start it.
func NewClient(cfg ClientConfig, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		log:        log,
		disp:       newDispatcher(),
		egress:     make(chan Envelope, sendBufSize),
		subscribed: make(map[string]struct{}),
		done:       make(chan struct{}),
	}
}

// Connect dials the endpoint and starts the read/write loops. The client
// keeps itself connected until Close: on a dropped connection it redials with
// exponential backoff and replays every active subscription, relying on the
// reconciliation layer to absorb any replayed events.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.start(conn)
	go c.reconnectLoop(ctx)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	url := c.cfg.URL
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	url += sep + "user_id=" + c.cfg.UserID

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) start(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.mu.Lock()
	c.conn = conn
	keys := make([]string, 0, len(c.subscribed))
	for key := range c.subscribed {
		keys = append(keys, key)
	}
	c.mu.Unlock()

	lost := make(chan struct{})
	go c.readLoop(conn, lost)
	go c.writeLoop(conn, lost)

	for _, key := range keys {
		if err := c.sendSubscribe(key); err != nil {
			c.log.Warn("resubscribe failed", zap.String("channel", key), zap.Error(err))
		}
	}
}

// reconnectLoop redials after the connection drops, backing off exponentially
// until the dial succeeds or the client is closed.
func (c *Client) reconnectLoop(ctx context.Context) {
	delay := baseReconnectDelay
	for {
		c.mu.Lock()
		conn := c.conn
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		if conn != nil {
			select {
			case <-c.done:
				return
			case <-ctx.Done():
				c.Close()
				return
			case <-time.After(time.Second):
			}
			continue
		}

		next, err := c.dial(ctx)
		if err != nil {
			c.log.Warn("reconnect dial failed", zap.Error(err), zap.Duration("retry_in", delay))
			select {
			case <-c.done:
				return
			case <-ctx.Done():
				c.Close()
				return
			case <-time.After(delay):
			}
			if delay *= 2; delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}

		delay = baseReconnectDelay
		c.log.Info("reconnected to event channel")
		c.start(next)
	}
}

func (c *Client) readLoop(conn *websocket.Conn, lost chan struct{}) {
	defer c.dropConn(conn, lost)

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("event channel read error", zap.Error(err))
			}
			return
		}

		c.disp.dispatch(Event{
			Kind:    KindFromName(env.Event),
			Channel: env.Channel,
			Data:    env.Data,
		})
	}
}

func (c *Client) writeLoop(conn *websocket.Conn, lost chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.dropConn(conn, lost)

	for {
		select {
		case <-lost:
			return
		case <-c.done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case env := <-c.egress:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				c.log.Warn("event channel write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dropConn clears the active connection so the reconnect loop takes over.
// Both loops call it; only the first has any effect.
func (c *Client) dropConn(conn *websocket.Conn, lost chan struct{}) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		close(lost)
	}
	c.mu.Unlock()
	_ = conn.Close()
}

// Subscribe joins a channel key and remembers it for replay after reconnects.
func (c *Client) Subscribe(key string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.subscribed[key] = struct{}{}
	connected := c.conn != nil
	c.mu.Unlock()

	if !connected {
		return nil // will be subscribed on (re)connect
	}
	return c.sendSubscribe(key)
}

func (c *Client) sendSubscribe(key string) error {
	env := Envelope{Event: "subscribe", Channel: key}

	if needsAuth(key) {
		token, err := SignChannelToken(c.cfg.Secret, c.cfg.UserID, key)
		if err != nil {
			return err
		}
		env.Auth = token
	}
	return c.enqueue(env)
}

// Unsubscribe leaves a channel key and stops replaying it on reconnect.
func (c *Client) Unsubscribe(key string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	delete(c.subscribed, key)
	connected := c.conn != nil
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.enqueue(Envelope{Event: "unsubscribe", Channel: key})
}

// Bind registers a handler for an event kind.
func (c *Client) Bind(kind EventKind, h Handler) *Binding {
	return c.disp.bind(kind, h)
}

// Publish sends a client event. Only client- prefixed kinds are accepted;
// everything else originates server-side.
func (c *Client) Publish(key string, kind EventKind, data interface{}) error {
	if kind != EventTyping {
		return errors.New("channel: only client events may be published")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.enqueue(Envelope{Event: kind.Name(), Channel: key, Data: raw})
}

func (c *Client) enqueue(env Envelope) error {
	select {
	case <-c.done:
		return ErrClosed
	case c.egress <- env:
		return nil
	default:
		return errors.New("channel: send buffer full")
	}
}

// Close shuts the client down for good; it never reconnects afterwards.
func (c *Client) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		close(c.done)
		if conn != nil {
			_ = conn.Close()
		}
	})
}

func needsAuth(key string) bool {
	return strings.HasPrefix(key, "presence-") || strings.HasPrefix(key, userKeyPrefix)
}
