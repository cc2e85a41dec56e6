package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conduit-mq/conduit-go/pkg/event"
	"github.com/conduit-mq/conduit-go/pkg/log"
	"github.com/conduit-mq/conduit-go/pkg/transport"
)

// Lifecycle errors.
var (
	ErrLifecycleClosed = errors.New("connection: lifecycle closed")
	ErrNilFactory      = errors.New("connection: transport factory required")
	ErrNilSource       = errors.New("connection: subscription source required")
	ErrNilCallback     = errors.New("connection: message callback required")
)

// DefaultConnectTimeout bounds a single dial attempt.
const DefaultConnectTimeout = 30 * time.Second

// State represents the subscriber connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection and none desired.
	StateDisconnected State = iota

	// StateConnecting indicates a dial attempt is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateError indicates the last dial attempt failed or the
	// connection was lost.
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// SubscriptionSource provides the current desired subscription set.
// Reconnection reads it to restore exactly what was active before a failure.
type SubscriptionSource interface {
	ExactChannels() []string
	Patterns() []string
	HasSubscriptions() bool
}

// Config configures a Lifecycle.
type Config struct {
	// Factory dials subscriber connections. Required.
	Factory transport.SubscriberFactory

	// Source provides the desired subscription set for reconnects. Required.
	Source SubscriptionSource

	// OnMessage is handed to every dialed connection. Required.
	OnMessage transport.MessageFunc

	// Sink receives lifecycle events. Optional.
	Sink event.Sink

	// Logger receives state-change log events. Optional.
	Logger log.Logger

	// Backoff customizes reconnection backoff.
	Backoff BackoffConfig

	// ConnectTimeout bounds each dial attempt (default 30s).
	ConnectTimeout time.Duration
}

// Lifecycle owns the single subscriber transport connection and replaces it
// whenever the desired subscription set changes.
type Lifecycle struct {
	mu sync.Mutex

	state  State
	conn   transport.SubscriberConn
	connID string

	factory        transport.SubscriberFactory
	source         SubscriptionSource
	onMessage      transport.MessageFunc
	sink           event.Sink
	logger         log.Logger
	backoff        *Backoff
	connectTimeout time.Duration

	reconnectTimer *time.Timer
	retryDelay     time.Duration
	closed         bool
}

// noopSink discards events when no sink is configured.
type noopSink struct{}

func (noopSink) Emit(event.Event) {}

// New creates a lifecycle manager. No connection is dialed until the first
// UpdateSubscriptions call with a non-empty set.
func New(cfg Config) (*Lifecycle, error) {
	if cfg.Factory == nil {
		return nil, ErrNilFactory
	}
	if cfg.Source == nil {
		return nil, ErrNilSource
	}
	if cfg.OnMessage == nil {
		return nil, ErrNilCallback
	}
	if cfg.Sink == nil {
		cfg.Sink = noopSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NoopLogger{}
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	return &Lifecycle{
		state:          StateDisconnected,
		factory:        cfg.Factory,
		source:         cfg.Source,
		onMessage:      cfg.OnMessage,
		sink:           cfg.Sink,
		logger:         cfg.Logger,
		backoff:        NewBackoffWithConfig(cfg.Backoff),
		connectTimeout: cfg.ConnectTimeout,
	}, nil
}

// UpdateSubscriptions replaces the current connection with one subscribed
// to exactly the given sets. An empty target set releases the connection
// and transitions to Disconnected; this is never an error, even when no
// connection existed.
//
// The close of the previous connection always completes before the new dial
// starts, so no traffic is ever processed against a half-closed connection.
func (l *Lifecycle) UpdateSubscriptions(ctx context.Context, channels, patterns []string) error {
	l.mu.Lock()

	if l.closed {
		l.mu.Unlock()
		return ErrLifecycleClosed
	}

	// An explicit update supersedes any pending retry.
	l.stopReconnectTimerLocked()

	var pending []event.Event

	// Close always precedes create.
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}

	if len(channels) == 0 && len(patterns) == 0 {
		l.setStateLocked(StateDisconnected, "subscription set empty")
		l.mu.Unlock()
		l.emit(pending)
		return nil
	}

	l.setStateLocked(StateConnecting, "subscription set changed")
	pending = append(pending, event.Event{
		Type:    event.TypeReconnecting,
		Attempt: l.backoff.Attempts(),
		Delay:   l.retryDelay,
	})
	l.retryDelay = 0

	// The loss hook is bound to this dial. A notification from an
	// already-replaced connection must not touch its successor.
	connID := uuid.NewString()

	dialCtx, cancel := context.WithTimeout(ctx, l.connectTimeout)
	conn, err := l.factory.Dial(dialCtx, transport.Config{
		Channels:  channels,
		Patterns:  patterns,
		OnMessage: l.onMessage,
		OnClose:   func(err error) { l.handleConnectionLost(connID, err) },
	})
	cancel()

	if err != nil {
		l.setStateLocked(StateError, err.Error())
		pending = append(pending, event.Event{Type: event.TypeError, Err: err})
		l.logger.Log(log.NewErrorEvent(l.connID, err))
		if l.source.HasSubscriptions() && !l.backoff.Exhausted() {
			l.scheduleReconnectLocked()
		}
		l.mu.Unlock()
		l.emit(pending)
		return fmt.Errorf("failed to create subscriber connection: %w", err)
	}

	l.conn = conn
	l.connID = connID
	l.backoff.Reset()
	l.setStateLocked(StateConnected, "")
	pending = append(pending,
		event.Event{Type: event.TypeConnect},
		event.Event{Type: event.TypeReady},
	)

	l.mu.Unlock()
	l.emit(pending)
	return nil
}

// handleConnectionLost runs when the transport reports an unexpected loss.
// The hook carries the ID of the connection it was dialed for; a late
// notification from a connection that has since been replaced is ignored,
// so the replacement stays live.
func (l *Lifecycle) handleConnectionLost(connID string, err error) {
	l.mu.Lock()

	if l.closed || l.conn == nil || connID != l.connID {
		l.mu.Unlock()
		return
	}

	// The transport already tore the connection down.
	l.conn = nil

	var pending []event.Event
	reason := "connection lost"
	if err != nil {
		reason = err.Error()
	}
	l.setStateLocked(StateError, reason)
	pending = append(pending, event.Event{Type: event.TypeError, Err: err})
	l.logger.Log(log.NewErrorEvent(l.connID, err))

	if l.source.HasSubscriptions() && !l.backoff.Exhausted() {
		l.scheduleReconnectLocked()
	}

	l.mu.Unlock()
	l.emit(pending)
}

// scheduleReconnectLocked arms a one-shot retry that restores the source's
// current desired set. Caller must hold l.mu.
func (l *Lifecycle) scheduleReconnectLocked() {
	delay := l.backoff.Next()
	l.retryDelay = delay

	l.reconnectTimer = time.AfterFunc(delay, func() {
		l.mu.Lock()
		if l.closed || l.state == StateConnecting || l.state == StateConnected {
			// A newer attempt superseded this retry.
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()

		channels := l.source.ExactChannels()
		patterns := l.source.Patterns()
		if len(channels) == 0 && len(patterns) == 0 {
			return
		}
		_ = l.UpdateSubscriptions(context.Background(), channels, patterns)
	})
}

// stopReconnectTimerLocked cancels a pending retry. Caller must hold l.mu.
// The retry delay is cleared only if the timer had not fired yet, so a
// retry already in flight still reports the delay it waited out.
func (l *Lifecycle) stopReconnectTimerLocked() {
	if l.reconnectTimer != nil {
		if l.reconnectTimer.Stop() {
			l.retryDelay = 0
		}
		l.reconnectTimer = nil
	}
}

// setStateLocked transitions the state and records the change.
// Caller must hold l.mu.
func (l *Lifecycle) setStateLocked(newState State, reason string) {
	if l.state == newState {
		return
	}
	oldState := l.state
	l.state = newState
	l.logger.Log(log.NewStateChangeEvent(l.connID, oldState.String(), newState.String(), reason))
}

// emit delivers pending events outside the lock, in order.
func (l *Lifecycle) emit(events []event.Event) {
	for _, e := range events {
		l.sink.Emit(e)
	}
}

// State returns the current connection state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// IsConnected reports whether a subscriber connection is currently live.
func (l *Lifecycle) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == StateConnected
}

// Client returns the live subscriber connection, or nil. Read-only: the
// publish path uses it to observe whether pub/sub traffic is active.
func (l *Lifecycle) Client() transport.SubscriberConn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}

// ConnectionID returns the UUID of the current connection, or empty.
func (l *Lifecycle) ConnectionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return ""
	}
	return l.connID
}

// BackoffAttempts returns the current number of reconnection attempts.
func (l *Lifecycle) BackoffAttempts() int {
	return l.backoff.Attempts()
}

// Close releases the connection and stops all retries. The lifecycle
// cannot be reused afterwards.
func (l *Lifecycle) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.stopReconnectTimerLocked()

	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
	l.setStateLocked(StateDisconnected, "closed")
	l.mu.Unlock()
	return nil
}
