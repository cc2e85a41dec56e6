package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultFirehoseChannel is the shared channel every publish is mirrored to.
// Pattern subscribers listen here and filter client-side, since LISTEN has
// no pattern support.
const DefaultFirehoseChannel = "conduit_firehose"

// maxNotifyPayload is PostgreSQL's NOTIFY payload limit.
const maxNotifyPayload = 8000

// pgTeardownTimeout bounds registry cleanup when a connection closes.
const pgTeardownTimeout = 5 * time.Second

// ErrPayloadTooLarge is returned when a message exceeds the NOTIFY limit.
var ErrPayloadTooLarge = errors.New("transport: payload exceeds PostgreSQL NOTIFY limit of 8000 bytes")

const registrySchema = `
CREATE TABLE IF NOT EXISTS conduit_subscriptions (
	conn_id UUID NOT NULL,
	kind    TEXT NOT NULL CHECK (kind IN ('channel', 'pattern')),
	value   TEXT NOT NULL,
	PRIMARY KEY (conn_id, kind, value)
)`

// envelope is the JSON payload carried inside every notification. The
// channel travels inside the envelope because LISTEN identifiers are
// case-folded and length-limited, while pub/sub channel names are not.
type envelope struct {
	Channel string `json:"c"`
	Data    []byte `json:"d"`
}

// PGFactory is a pub/sub backend over PostgreSQL LISTEN/NOTIFY.
//
// Exact channels LISTEN directly on a dedicated connection; patterns are
// served from the firehose channel with client-side glob filtering.
// Receiver counts come from a registry table with one row per live
// subscription, inserted at dial and removed at close.
//
// The pool must remain open for the lifetime of the factory.
type PGFactory struct {
	pool     *pgxpool.Pool
	firehose string

	schemaOnce sync.Once
	schemaErr  error
}

// NewPGFactory creates a factory using the provided connection pool.
func NewPGFactory(pool *pgxpool.Pool) *PGFactory {
	return &PGFactory{
		pool:     pool,
		firehose: DefaultFirehoseChannel,
	}
}

// ensureSchema creates the subscription registry table once.
func (f *PGFactory) ensureSchema(ctx context.Context) error {
	f.schemaOnce.Do(func() {
		_, f.schemaErr = f.pool.Exec(ctx, registrySchema)
	})
	return f.schemaErr
}

// Dial creates a subscriber connection with a fixed subscription set.
// It pins one pool connection for LISTEN/WaitForNotification.
func (f *PGFactory) Dial(ctx context.Context, cfg Config) (SubscriberConn, error) {
	if cfg.OnMessage == nil {
		return nil, ErrNoCallback
	}
	if err := f.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to create subscription registry: %w", err)
	}

	poolConn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	connID := uuid.NewString()

	// LISTEN on every exact channel, plus the firehose for patterns.
	for _, ch := range cfg.Channels {
		if _, err := poolConn.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
			poolConn.Release()
			return nil, fmt.Errorf("failed to listen on %q: %w", ch, err)
		}
	}
	if len(cfg.Patterns) > 0 {
		if _, err := poolConn.Exec(ctx, "LISTEN "+pgx.Identifier{f.firehose}.Sanitize()); err != nil {
			poolConn.Release()
			return nil, fmt.Errorf("failed to listen on firehose: %w", err)
		}
	}

	// Register the subscription set so publishers can count receivers.
	batch := &pgx.Batch{}
	for _, ch := range cfg.Channels {
		batch.Queue("INSERT INTO conduit_subscriptions (conn_id, kind, value) VALUES ($1, 'channel', $2) ON CONFLICT DO NOTHING", connID, ch)
	}
	for _, p := range cfg.Patterns {
		batch.Queue("INSERT INTO conduit_subscriptions (conn_id, kind, value) VALUES ($1, 'pattern', $2) ON CONFLICT DO NOTHING", connID, p)
	}
	if batch.Len() > 0 {
		if err := f.pool.SendBatch(ctx, batch).Close(); err != nil {
			poolConn.Release()
			return nil, fmt.Errorf("failed to register subscriptions: %w", err)
		}
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	conn := &PGConn{
		id:       connID,
		factory:  f,
		poolConn: poolConn,
		cancel:   cancel,
		patterns: append([]string(nil), cfg.Patterns...),
	}

	go conn.listen(listenCtx, cfg)

	return conn, nil
}

// DialPublisher creates a publisher connection backed by the pool.
func (f *PGFactory) DialPublisher(ctx context.Context) (PublisherConn, error) {
	if err := f.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to create subscription registry: %w", err)
	}
	return &PGPublisher{factory: f}, nil
}

// PGConn is a subscriber connection pinned to one pool connection.
type PGConn struct {
	id       string
	factory  *PGFactory
	poolConn *pgxpool.Conn
	cancel   context.CancelFunc
	patterns []string

	closeOnce sync.Once
}

// listen dispatches notifications until the connection is closed or lost.
func (c *PGConn) listen(ctx context.Context, cfg Config) {
	for {
		notification, err := c.poolConn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Local close
				return
			}
			c.teardown()
			if cfg.OnClose != nil {
				cfg.OnClose(fmt.Errorf("%w: %v", ErrConnectionLost, err))
			}
			return
		}

		env, err := decodeEnvelope(notification.Payload)
		if err != nil {
			// Foreign traffic on a listened channel; ignore it
			continue
		}

		if notification.Channel == c.factory.firehose {
			for _, pattern := range c.patterns {
				if MatchPattern(pattern, env.Channel) {
					cfg.OnMessage(Message{Payload: env.Data, Channel: env.Channel, Pattern: pattern})
				}
			}
			continue
		}

		cfg.OnMessage(Message{Payload: env.Data, Channel: env.Channel})
	}
}

// Close releases the connection and removes its registry rows.
func (c *PGConn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.teardown()
	})
	return nil
}

// teardown deregisters the subscription set and releases the pinned
// connection. Registry cleanup is best effort.
//
// TODO: expire registry rows left behind by crashed subscribers
// (needs a heartbeat column and a sweep on Dial).
func (c *PGConn) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), pgTeardownTimeout)
	defer cancel()

	_, _ = c.factory.pool.Exec(ctx, "DELETE FROM conduit_subscriptions WHERE conn_id = $1", c.id)
	c.poolConn.Release()
}

// PGPublisher publishes via pg_notify using the factory's pool.
type PGPublisher struct {
	factory *PGFactory

	mu     sync.Mutex
	closed bool
}

// Publish sends a payload to a channel. The notification goes to the exact
// channel and is mirrored to the firehose for pattern subscribers. The
// returned count is the number of live registered subscriptions (exact rows
// matching the channel plus pattern rows whose glob matches).
func (p *PGPublisher) Publish(ctx context.Context, channel string, payload []byte) (int, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0, ErrConnClosed
	}

	env, err := encodeEnvelope(channel, payload)
	if err != nil {
		return 0, err
	}

	batch := &pgx.Batch{}
	batch.Queue("SELECT pg_notify($1, $2)", channel, env)
	batch.Queue("SELECT pg_notify($1, $2)", p.factory.firehose, env)
	if err := p.factory.pool.SendBatch(ctx, batch).Close(); err != nil {
		return 0, err
	}

	return p.countReceivers(ctx, channel)
}

// countReceivers counts registered subscriptions reached by a publish.
func (p *PGPublisher) countReceivers(ctx context.Context, channel string) (int, error) {
	count := 0
	if err := p.factory.pool.QueryRow(ctx,
		"SELECT count(*) FROM conduit_subscriptions WHERE kind = 'channel' AND value = $1",
		channel).Scan(&count); err != nil {
		return 0, err
	}

	rows, err := p.factory.pool.Query(ctx, "SELECT value FROM conduit_subscriptions WHERE kind = 'pattern'")
	if err != nil {
		return count, err
	}
	defer rows.Close()

	for rows.Next() {
		var pattern string
		if err := rows.Scan(&pattern); err != nil {
			return count, err
		}
		if MatchPattern(pattern, channel) {
			count++
		}
	}
	return count, rows.Err()
}

// Close releases the publisher. The underlying pool stays open.
func (p *PGPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// encodeEnvelope wraps a message for transport inside a notification,
// enforcing the NOTIFY payload limit.
func encodeEnvelope(channel string, payload []byte) (string, error) {
	data, err := json.Marshal(envelope{Channel: channel, Data: payload})
	if err != nil {
		return "", err
	}
	if len(data) > maxNotifyPayload {
		return "", ErrPayloadTooLarge
	}
	return string(data), nil
}

// decodeEnvelope unwraps a notification payload.
func decodeEnvelope(payload string) (envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return envelope{}, err
	}
	if env.Channel == "" {
		return envelope{}, errors.New("transport: notification missing channel")
	}
	return env, nil
}

// Compile-time interface satisfaction checks.
var (
	_ SubscriberFactory = (*PGFactory)(nil)
	_ PublisherFactory  = (*PGFactory)(nil)
	_ SubscriberConn    = (*PGConn)(nil)
	_ PublisherConn     = (*PGPublisher)(nil)
)
