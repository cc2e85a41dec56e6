package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/conduit-mq/conduit-go/pkg/batch"
	"github.com/conduit-mq/conduit-go/pkg/connection"
	"github.com/conduit-mq/conduit-go/pkg/event"
	"github.com/conduit-mq/conduit-go/pkg/guard"
	"github.com/conduit-mq/conduit-go/pkg/log"
	"github.com/conduit-mq/conduit-go/pkg/router"
	"github.com/conduit-mq/conduit-go/pkg/subscription"
	"github.com/conduit-mq/conduit-go/pkg/transport"
)

// Bridge errors.
var (
	ErrNoChannels          = errors.New("bridge: at least one channel required")
	ErrNoPatterns          = errors.New("bridge: at least one pattern required")
	ErrBridgeClosed        = errors.New("bridge: closed")
	ErrPayloadTooLarge     = errors.New("bridge: payload exceeds maximum size")
	ErrNilSubscriberDialer = errors.New("bridge: subscriber factory required")
	ErrNilPublisherDialer  = errors.New("bridge: publisher factory required")
)

// Bridge emulates dynamic pub/sub subscriptions on top of a transport whose
// subscription set is fixed at dial time.
type Bridge struct {
	cfg        Config
	state      *subscription.Manager
	dispatcher *event.Dispatcher
	lifecycle  *connection.Lifecycle
	batcher    *batch.Batcher
	guard      *guard.CommandGuard
	logger     log.Logger

	// Publisher connection, lazily dialed and owned exclusively here.
	// It is never replaced by subscription changes.
	pubMu      sync.Mutex
	pubFactory transport.PublisherFactory
	publisher  transport.PublisherConn
	closed     bool
}

// New creates a bridge. No transport connection is dialed until the first
// subscribe call (subscriber side) or the first Publish call (publisher side).
func New(cfg Config, subscribers transport.SubscriberFactory, publishers transport.PublisherFactory, logger log.Logger) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if subscribers == nil {
		return nil, ErrNilSubscriberDialer
	}
	if publishers == nil {
		return nil, ErrNilPublisherDialer
	}
	if logger == nil {
		logger = log.NoopLogger{}
	}

	state := subscription.NewManagerWithHistory(cfg.HistorySize)
	dispatcher := event.NewDispatcher()
	rt := router.New(dispatcher, logger)

	lifecycle, err := connection.New(connection.Config{
		Factory:   subscribers,
		Source:    state,
		OnMessage: rt.HandleMessage,
		Sink:      dispatcher,
		Logger:    logger,
		Backoff: connection.BackoffConfig{
			Initial:     cfg.Backoff.Initial.Std(),
			Max:         cfg.Backoff.Max.Std(),
			Multiplier:  cfg.Backoff.Multiplier,
			MaxAttempts: cfg.Backoff.MaxAttempts,
		},
		ConnectTimeout: cfg.ConnectTimeout.Std(),
	})
	if err != nil {
		return nil, err
	}

	batcher, err := batch.New(batch.Config{
		State:    state,
		Conn:     lifecycle,
		Sink:     dispatcher,
		Logger:   logger,
		Debounce: cfg.Debounce.Std(),
	})
	if err != nil {
		return nil, err
	}

	g := guard.New()
	state.OnChange(g.Update)

	return &Bridge{
		cfg:        cfg,
		state:      state,
		dispatcher: dispatcher,
		lifecycle:  lifecycle,
		batcher:    batcher,
		guard:      g,
		logger:     logger,
		pubFactory: publishers,
	}, nil
}

// Subscribe adds exact channel subscriptions and returns the total
// subscription count after the batch settles. At least one channel is
// required; that is checked synchronously before anything is queued.
func (b *Bridge) Subscribe(ctx context.Context, channels ...string) (int, error) {
	if len(channels) == 0 {
		return 0, ErrNoChannels
	}
	return b.await(ctx, b.batcher.Queue(
		subscription.NewOperation(subscription.OpSubscribe, channels)))
}

// Unsubscribe removes exact channel subscriptions. With no arguments it
// removes every exact channel subscribed at the moment of the call; the
// list is resolved here, not when the batch fires, so each removal gets
// its own confirmation event even if the set changes again before then.
func (b *Bridge) Unsubscribe(ctx context.Context, channels ...string) (int, error) {
	if len(channels) == 0 {
		channels = b.state.ExactChannels()
	}
	return b.await(ctx, b.batcher.Queue(
		subscription.NewOperation(subscription.OpUnsubscribe, channels)))
}

// PSubscribe adds pattern subscriptions. At least one pattern is required.
func (b *Bridge) PSubscribe(ctx context.Context, patterns ...string) (int, error) {
	if len(patterns) == 0 {
		return 0, ErrNoPatterns
	}
	return b.await(ctx, b.batcher.Queue(
		subscription.NewOperation(subscription.OpPSubscribe, patterns)))
}

// PUnsubscribe removes pattern subscriptions. With no arguments it removes
// every pattern subscribed at the moment of the call.
func (b *Bridge) PUnsubscribe(ctx context.Context, patterns ...string) (int, error) {
	if len(patterns) == 0 {
		patterns = b.state.Patterns()
	}
	return b.await(ctx, b.batcher.Queue(
		subscription.NewOperation(subscription.OpPUnsubscribe, patterns)))
}

// await blocks until the batch result arrives or the context is done.
func (b *Bridge) await(ctx context.Context, result <-chan batch.Result) (int, error) {
	select {
	case res := <-result:
		return res.Count, res.Err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Publish sends a payload to a channel over the bridge's dedicated publisher
// connection and returns the receiver count reported by the backend. The
// connection is dialed on first use and reused afterwards.
func (b *Bridge) Publish(ctx context.Context, channel string, payload []byte) (int, error) {
	if len(payload) > b.cfg.MaxPayloadSize.Bytes() {
		return 0, fmt.Errorf("%w: %d bytes (limit %d)",
			ErrPayloadTooLarge, len(payload), b.cfg.MaxPayloadSize.Bytes())
	}

	pub, err := b.publisherConn(ctx)
	if err != nil {
		return 0, err
	}

	count, err := pub.Publish(ctx, channel, payload)
	if err != nil {
		return 0, fmt.Errorf("publish to %q failed: %w", channel, err)
	}
	b.logger.Log(log.NewMessageEvent("", log.DirectionOut, channel, "", len(payload)))
	return count, nil
}

// publisherConn returns the publisher connection, dialing it on first use.
func (b *Bridge) publisherConn(ctx context.Context) (transport.PublisherConn, error) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	if b.closed {
		return nil, ErrBridgeClosed
	}
	if b.publisher != nil {
		return b.publisher, nil
	}

	pub, err := b.pubFactory.DialPublisher(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher connection: %w", err)
	}
	b.publisher = pub
	return pub, nil
}

// Events returns the dispatcher callers register their listeners on.
func (b *Bridge) Events() *event.Dispatcher {
	return b.dispatcher
}

// IsConnected reports whether the subscriber transport connection is live.
func (b *Bridge) IsConnected() bool {
	return b.lifecycle.IsConnected()
}

// ConnectionState returns the subscriber connection state.
func (b *Bridge) ConnectionState() connection.State {
	return b.lifecycle.State()
}

// SubscriptionCount returns the combined exact and pattern subscription count.
func (b *Bridge) SubscriptionCount() int {
	return b.state.TotalCount()
}

// SubscribedChannels returns the exact channels in subscription order.
func (b *Bridge) SubscribedChannels() []string {
	return b.state.ExactChannels()
}

// SubscribedPatterns returns the patterns in subscription order.
func (b *Bridge) SubscribedPatterns() []string {
	return b.state.Patterns()
}

// SubscriberMode reports whether command restrictions currently apply.
func (b *Bridge) SubscriberMode() bool {
	return b.guard.SubscriberMode()
}

// CheckCommand returns an error if the named command is not permitted while
// the bridge is in subscriber mode.
func (b *Bridge) CheckCommand(name string) error {
	return b.guard.CheckCommand(name)
}

// History returns the retained subscription state snapshots, oldest first.
func (b *Bridge) History() []subscription.Snapshot {
	return b.state.History()
}

// Close shuts the bridge down: waits for pending subscription operations,
// tears down the publisher connection, then releases the subscriber
// transport. The bridge cannot be reused afterwards.
func (b *Bridge) Close(ctx context.Context) error {
	b.pubMu.Lock()
	if b.closed {
		b.pubMu.Unlock()
		return nil
	}
	b.closed = true
	publisher := b.publisher
	b.publisher = nil
	b.pubMu.Unlock()

	waitErr := b.batcher.WaitForPending(ctx)
	_ = b.batcher.Close()

	if publisher != nil {
		_ = publisher.Close()
	}

	_ = b.lifecycle.UpdateSubscriptions(ctx, nil, nil)
	_ = b.lifecycle.Close()
	return waitErr
}
