// Package supervisor owns the connection lifecycle: endpoint selection,
// connect and disconnect, failure classification, and the full state
// flush when one channel is replaced by another.
package supervisor

import (
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/cadlive/livemap/internal/channel"
	"github.com/cadlive/livemap/internal/transport"
	"github.com/cadlive/livemap/pkg/core"
	"github.com/cadlive/livemap/pkg/wire"
)

// ConfigurationError blocks a connection attempt before any dial is
// made, e.g. when no endpoint has been selected.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// ConnectionError wraps a transport or security failure for a specific
// endpoint. The operator remediation is to select a different endpoint.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error for %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Status is a snapshot of the supervised connection.
type Status struct {
	State    core.ConnectionState
	Endpoint string
	Since    time.Time
	LastErr  error
}

// StatusFunc is invoked on every state transition.
type StatusFunc func(Status)

// Channel is the slice of the transport layer the supervisor drives.
type Channel interface {
	Dial(rawURL, secret string) error
	Send(topic string, payload any) error
	Events() channel.Receiver[transport.LifecycleEvent]
	Connected() bool
	Stats() transport.Stats
	Close() error
}

// Config holds supervisor settings.
type Config struct {
	// Endpoints is the candidate list; selection picks one of these.
	Endpoints []string
	// RequireSecure rejects ws endpoints the way a secure browsing
	// context rejects mixed content.
	RequireSecure bool
	// Secret is passed to the endpoint on dial.
	Secret string
}

// Supervisor keeps exactly one channel object live at any time. A new
// endpoint selection or an explicit disconnect destroys the current
// channel and flushes all session state; it is never reused.
type Supervisor struct {
	mu        sync.Mutex
	cfg       Config
	newCh     func() Channel
	ch        Channel
	watchDone chan struct{}

	// connecting guards the dial window so two Connect calls cannot
	// both pass the nil-channel check and leave one channel leaked.
	connecting bool

	endpoint string
	state    core.ConnectionState
	since    time.Time
	lastErr  error

	// insecureWarned is per-connection, reset on every dial.
	insecureWarned bool

	onStatus StatusFunc
	onFlush  []func()

	logger *slog.Logger
}

// New creates a supervisor. newChannel builds a fresh disconnected
// channel for each connection attempt.
func New(cfg Config, newChannel func() Channel, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		cfg:    cfg,
		newCh:  newChannel,
		state:  core.StateDisconnected,
		since:  time.Now(),
		logger: logger,
	}
}

// OnStatus registers the status callback. Call before Connect.
func (s *Supervisor) OnStatus(fn StatusFunc) {
	s.mu.Lock()
	s.onStatus = fn
	s.mu.Unlock()
}

// OnFlush registers a function run whenever the live channel is
// replaced, e.g. registry and signage resets. Call before Connect.
func (s *Supervisor) OnFlush(fns ...func()) {
	s.mu.Lock()
	s.onFlush = append(s.onFlush, fns...)
	s.mu.Unlock()
}

// SelectEndpoint picks the endpoint for subsequent connects. Selecting
// while connected tears down the live channel and flushes all state;
// nothing carries over between endpoints.
func (s *Supervisor) SelectEndpoint(rawURL string) error {
	if !s.candidate(rawURL) {
		return &ConfigurationError{Reason: fmt.Sprintf("endpoint %s is not a configured candidate", rawURL)}
	}
	if err := s.validateEndpoint(rawURL); err != nil {
		return err
	}

	s.mu.Lock()
	live := s.ch
	s.ch = nil
	watchDone := s.watchDone
	s.watchDone = nil
	s.endpoint = rawURL
	s.mu.Unlock()

	if live != nil {
		s.teardown(live, watchDone)
	}

	s.setState(core.StateDisconnected, nil)
	return nil
}

// Connect dials the selected endpoint with a fresh channel. A dial
// failure is classified, surfaced and NOT retried; the supervisor waits
// for an explicit re-selection or another Connect call.
func (s *Supervisor) Connect() error {
	s.mu.Lock()
	endpoint := s.endpoint
	if endpoint == "" {
		s.mu.Unlock()
		err := &ConfigurationError{Reason: "no endpoint selected"}
		s.setState(core.StateErrored, err)
		return err
	}
	if s.ch != nil || s.connecting {
		s.mu.Unlock()
		return nil
	}
	s.connecting = true
	s.insecureWarned = false
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
	}()

	if err := s.validateEndpoint(endpoint); err != nil {
		s.setState(core.StateErrored, err)
		return err
	}

	s.warnInsecure(endpoint)
	s.setState(core.StateConnecting, nil)

	ch := s.newCh()
	if err := ch.Dial(endpoint, s.cfg.Secret); err != nil {
		_ = ch.Close()
		cerr := &ConnectionError{Endpoint: endpoint, Err: err}
		s.setState(core.StateErrored, cerr)
		return cerr
	}

	done := make(chan struct{})
	s.mu.Lock()
	if s.endpoint != endpoint {
		// endpoint re-selected during the dial; the selection wins and
		// this channel never goes live
		s.mu.Unlock()
		_ = ch.Close()
		return nil
	}
	s.ch = ch
	s.watchDone = done
	s.mu.Unlock()

	go s.watch(ch, done)

	s.setState(core.StateConnected, nil)
	return nil
}

// Disconnect closes the live channel and flushes all session state.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	live := s.ch
	s.ch = nil
	watchDone := s.watchDone
	s.watchDone = nil
	s.mu.Unlock()

	if live != nil {
		s.teardown(live, watchDone)
	}
	s.setState(core.StateDisconnected, nil)
}

// Status returns the current connection status.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:    s.state,
		Endpoint: s.endpoint,
		Since:    s.since,
		LastErr:  s.lastErr,
	}
}

// Send proxies an outbound message to the live channel. While no
// channel is live the message is rejected.
func (s *Supervisor) Send(topic string, payload any) error {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()

	if ch == nil {
		return &ConfigurationError{Reason: "not connected"}
	}
	return ch.Send(topic, payload)
}

// ChannelStats returns transport counters for the live channel, or
// zero values when disconnected.
func (s *Supervisor) ChannelStats() transport.Stats {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()

	if ch == nil {
		return transport.Stats{}
	}
	return ch.Stats()
}

// watch tracks lifecycle events of one channel instance and mirrors
// them into supervisor status. The transport handles backoff reconnect
// for established connections; the supervisor only reflects state.
func (s *Supervisor) watch(ch Channel, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case e := <-ch.Events().Receive():
			switch e.Kind {
			case wire.EventConnect:
				s.setState(core.StateConnected, nil)
			case wire.EventDisconnect:
				s.setState(core.StateConnecting, nil)
			case wire.EventConnectError:
				// Transport gave up; this channel is dead.
				s.mu.Lock()
				if s.ch == ch {
					s.ch = nil
					s.watchDone = nil
				}
				s.mu.Unlock()
				s.teardown(ch, nil)
				s.setState(core.StateErrored, &ConnectionError{Endpoint: e.Endpoint, Err: e.Err})
				return
			}
		}
	}
}

// teardown closes a channel and runs the registered flush hooks.
func (s *Supervisor) teardown(ch Channel, watchDone chan struct{}) {
	if watchDone != nil {
		close(watchDone)
	}
	if err := ch.Close(); err != nil {
		s.logger.Warn("Channel close failed", "error", err)
	}

	s.mu.Lock()
	hooks := make([]func(), len(s.onFlush))
	copy(hooks, s.onFlush)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// candidate reports whether rawURL may be selected. An empty candidate
// list accepts any endpoint.
func (s *Supervisor) candidate(rawURL string) bool {
	if len(s.cfg.Endpoints) == 0 {
		return true
	}
	for _, e := range s.cfg.Endpoints {
		if e == rawURL {
			return true
		}
	}
	return false
}

func (s *Supervisor) validateEndpoint(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &ConnectionError{Endpoint: rawURL, Err: fmt.Errorf("invalid endpoint URL: %w", err)}
	}
	switch u.Scheme {
	case "wss":
	case "ws":
		if s.cfg.RequireSecure {
			return &ConnectionError{
				Endpoint: rawURL,
				Err:      fmt.Errorf("insecure endpoint rejected, secure context requires wss"),
			}
		}
	default:
		return &ConnectionError{Endpoint: rawURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	return nil
}

// warnInsecure logs once per connection attempt for ws endpoints.
func (s *Supervisor) warnInsecure(endpoint string) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme != "ws" {
		return
	}

	s.mu.Lock()
	warned := s.insecureWarned
	s.insecureWarned = true
	s.mu.Unlock()

	if !warned {
		s.logger.Warn("Connecting over insecure websocket", "endpoint", endpoint)
	}
}

func (s *Supervisor) setState(state core.ConnectionState, err error) {
	s.mu.Lock()
	changed := s.state != state || err != nil
	s.state = state
	if changed {
		s.since = time.Now()
	}
	s.lastErr = err
	fn := s.onStatus
	status := Status{
		State:    s.state,
		Endpoint: s.endpoint,
		Since:    s.since,
		LastErr:  s.lastErr,
	}
	s.mu.Unlock()

	if changed && fn != nil {
		fn(status)
	}
}
