// Package transport maintains the duplex WebSocket channel to the
// game-server plugin: framed reads feeding the dispatcher, a single
// write goroutine, and reconnect with exponential backoff once a
// session has been established.
package transport

import (
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/cadlive/livemap/internal/channel"
	"github.com/cadlive/livemap/internal/dispatcher"
	"github.com/cadlive/livemap/internal/queue"
	"github.com/cadlive/livemap/pkg/wire"
)

const (
	sendChSize       = 10_000
	eventChSize      = 16
	defaultReconnect = 10
	maxBackoff       = 30 * time.Second
	writeWait        = 10 * time.Second
)

// LifecycleEvent reports a channel state transition. Kind is one of the
// wire lifecycle pseudo-topics.
type LifecycleEvent struct {
	Kind     string
	Endpoint string
	Attempt  int
	Err      error
}

// Sink receives every decoded inbound envelope.
type Sink interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// Stats is a point-in-time snapshot of channel counters.
type Stats struct {
	Received   uint64
	Sent       uint64
	Malformed  uint64
	Reconnects uint64
	Pending    int
}

// Config holds channel tuning.
type Config struct {
	// ReconnectAttempts bounds the backoff loop after an established
	// connection drops. Zero means the default.
	ReconnectAttempts int
}

// Channel manages a WebSocket connection with a single write goroutine.
// A failed initial dial is returned to the caller as-is; reconnect with
// backoff only begins once a connection was established and then lost.
type Channel struct {
	mu           sync.Mutex
	conn         *ws.Conn
	sendCh       chan []byte
	done         chan struct{} // closed on shutdown
	closed       bool
	reconnecting bool

	wsURL  string
	secret string

	maxReconnect int

	// Outbound messages buffered while disconnected, replayed in order
	// after the next successful (re)connect.
	pending *queue.Queue[[]byte]

	events channel.Channel[LifecycleEvent]
	sink   Sink

	received   atomic.Uint64
	sent       atomic.Uint64
	malformed  atomic.Uint64
	reconnects atomic.Uint64

	logger *slog.Logger
}

// New creates a disconnected channel feeding the given sink.
func New(cfg Config, sink Sink, logger *slog.Logger) *Channel {
	attempts := cfg.ReconnectAttempts
	if attempts <= 0 {
		attempts = defaultReconnect
	}
	return &Channel{
		sendCh:       make(chan []byte, sendChSize),
		done:         make(chan struct{}),
		maxReconnect: attempts,
		pending:      queue.New[[]byte](),
		events:       channel.New[LifecycleEvent](eventChSize),
		sink:         sink,
		logger:       logger,
	}
}

// Dial connects to the WebSocket endpoint and starts the read/write
// loops. A dial failure here is final: no retry is attempted and the
// error is surfaced to the caller.
func (c *Channel) Dial(rawURL, secret string) error {
	c.wsURL = rawURL
	c.secret = secret

	conn, err := c.dialOnce()
	if err != nil {
		c.emit(LifecycleEvent{Kind: wire.EventConnectError, Endpoint: rawURL, Err: err})
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.emit(LifecycleEvent{Kind: wire.EventConnect, Endpoint: rawURL})
	c.flushPending()

	go c.writeLoop()
	go c.readLoop()

	return nil
}

// dialOnce performs a single WebSocket dial with the secret query param.
func (c *Channel) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if c.secret != "" {
		q := u.Query()
		q.Set("secret", c.secret)
		u.RawQuery = q.Encode()
	}

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// Send marshals the payload into an envelope and hands it to the write
// loop. While disconnected the message is queued for replay.
func (c *Channel) Send(topic string, payload any) error {
	data, err := wire.Encode(topic, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	connected := c.conn != nil
	c.mu.Unlock()

	if !connected {
		c.pending.Push(data)
		return nil
	}

	select {
	case c.sendCh <- data:
	default:
		c.logger.Warn("Send channel full, dropping message", "topic", topic)
	}
	return nil
}

// Events exposes the lifecycle event stream. Each state transition is
// reported at most once.
func (c *Channel) Events() channel.Receiver[LifecycleEvent] {
	return c.events
}

// Connected reports whether a live connection is held.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Endpoint returns the URL of the current or last dialed endpoint.
func (c *Channel) Endpoint() string {
	return c.wsURL
}

// Stats returns current counters.
func (c *Channel) Stats() Stats {
	return Stats{
		Received:   c.received.Load(),
		Sent:       c.sent.Load(),
		Malformed:  c.malformed.Load(),
		Reconnects: c.reconnects.Load(),
		Pending:    c.pending.Len(),
	}
}

// writeLoop drains sendCh and writes messages to the WebSocket.
// Only one writeLoop runs at a time; it returns on error or shutdown.
func (c *Channel) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()

			if conn == nil {
				c.pending.Push(data)
				continue
			}

			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				c.pending.Push(data)
				go c.reconnect(err)
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				c.pending.Push(data)
				go c.reconnect(err)
				return
			}
			c.sent.Add(1)
		}
	}
}

// readLoop decodes inbound envelopes and routes them to the sink.
func (c *Channel) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("WebSocket read error", "error", err)
			go c.reconnect(err)
			return
		}

		env, err := wire.Decode(message)
		if err != nil {
			c.malformed.Add(1)
			c.logger.Debug("Malformed message received", "error", err, "raw", string(message))
			continue
		}

		c.received.Add(1)
		if _, err := c.sink.Dispatch(dispatcher.Event{
			Topic:     env.Type,
			Payload:   env.Payload,
			Timestamp: time.Now(),
		}); err != nil {
			c.logger.Debug("Unhandled message", "topic", env.Type, "error", err)
		}
	}
}

// reconnect attempts to re-establish the WebSocket connection with
// exponential backoff. On success it replays queued outbound messages
// and restarts the read/write loops.
func (c *Channel) reconnect(cause error) {
	c.mu.Lock()
	if c.closed || c.reconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.emit(LifecycleEvent{Kind: wire.EventDisconnect, Endpoint: c.wsURL, Err: cause})

	backoff := time.Second
	for attempt := 1; attempt <= c.maxReconnect; attempt++ {
		select {
		case <-c.done:
			return
		default:
		}

		c.logger.Info("Reconnecting to endpoint", "attempt", attempt, "backoff", backoff)
		time.Sleep(backoff)

		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.reconnecting = false
		c.mu.Unlock()

		c.reconnects.Add(1)
		c.logger.Info("Endpoint reconnected", "attempt", attempt)
		c.emit(LifecycleEvent{Kind: wire.EventConnect, Endpoint: c.wsURL, Attempt: attempt})
		c.flushPending()

		go c.writeLoop()
		go c.readLoop()
		return
	}

	c.mu.Lock()
	c.reconnecting = false
	c.mu.Unlock()

	c.logger.Error("Reconnect failed after max attempts", "maxAttempts", c.maxReconnect)
	c.emit(LifecycleEvent{
		Kind:     wire.EventConnectError,
		Endpoint: c.wsURL,
		Attempt:  c.maxReconnect,
		Err:      fmt.Errorf("reconnect gave up after %d attempts: %w", c.maxReconnect, cause),
	})
}

// flushPending replays queued outbound messages into the write loop.
func (c *Channel) flushPending() {
	c.pending.Drain(func(data []byte) {
		select {
		case c.sendCh <- data:
		default:
			c.logger.Warn("Send channel full during replay, dropping message")
		}
	})
}

func (c *Channel) emit(e LifecycleEvent) {
	if !c.events.TrySend(e) {
		c.logger.Debug("Lifecycle event channel full, dropping", "kind", e.Kind)
	}
}

// Close sends a WebSocket close frame and shuts down all goroutines.
// Safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		)
		return conn.Close()
	}
	return nil
}
