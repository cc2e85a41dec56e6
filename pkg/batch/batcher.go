package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/conduit-mq/conduit-go/pkg/event"
	"github.com/conduit-mq/conduit-go/pkg/log"
	"github.com/conduit-mq/conduit-go/pkg/subscription"
)

// Batcher errors.
var (
	ErrBatcherClosed = errors.New("batch: batcher closed")
	ErrNilState      = errors.New("batch: subscription manager required")
	ErrNilUpdater    = errors.New("batch: connection updater required")
)

// DefaultDebounce is the window during which operations fold into one batch.
const DefaultDebounce = 10 * time.Millisecond

// ConnectionUpdater replaces the subscriber transport with one subscribed to
// exactly the given sets.
type ConnectionUpdater interface {
	UpdateSubscriptions(ctx context.Context, channels, patterns []string) error
}

// Result is the outcome of one queued operation. Count is the total
// subscription count the caller observes after its operation took effect.
type Result struct {
	Count int
	Err   error
}

// Config configures a Batcher.
type Config struct {
	// State is the authoritative subscription record. Required.
	State *subscription.Manager

	// Conn is driven once per batch with the post-batch sets. Required.
	Conn ConnectionUpdater

	// Sink receives confirmation and error events. Optional.
	Sink event.Sink

	// Logger receives error log events. Optional.
	Logger log.Logger

	// Debounce overrides the batching window (default 10ms).
	Debounce time.Duration
}

type pendingOp struct {
	op     subscription.Operation
	result chan Result
}

// Batcher is the serialized processing queue for subscription operations.
type Batcher struct {
	mu sync.Mutex

	pending []pendingOp
	timer   *time.Timer
	busy    bool
	closed  bool

	// Waiters released when the queue drains and no batch is in flight
	waiters []chan struct{}

	state    *subscription.Manager
	conn     ConnectionUpdater
	sink     event.Sink
	logger   log.Logger
	debounce time.Duration
}

type noopSink struct{}

func (noopSink) Emit(event.Event) {}

// New creates a batcher.
func New(cfg Config) (*Batcher, error) {
	if cfg.State == nil {
		return nil, ErrNilState
	}
	if cfg.Conn == nil {
		return nil, ErrNilUpdater
	}
	if cfg.Sink == nil {
		cfg.Sink = noopSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NoopLogger{}
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	return &Batcher{
		state:    cfg.State,
		conn:     cfg.Conn,
		sink:     cfg.Sink,
		logger:   cfg.Logger,
		debounce: cfg.Debounce,
	}, nil
}

// Queue appends an operation to the pending batch and restarts the debounce
// timer. The returned channel receives exactly one Result once the
// operation's batch settles.
func (b *Batcher) Queue(op subscription.Operation) <-chan Result {
	result := make(chan Result, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		result <- Result{Err: ErrBatcherClosed}
		return result
	}

	b.pending = append(b.pending, pendingOp{op: op, result: result})
	if !b.busy {
		b.restartTimerLocked()
	}
	b.mu.Unlock()

	return result
}

// restartTimerLocked (re)arms the debounce timer. Caller must hold b.mu.
func (b *Batcher) restartTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.debounce, b.flush)
}

// flush claims the whole pending queue and processes it as one batch.
func (b *Batcher) flush() {
	b.mu.Lock()
	if b.busy || b.closed || len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	b.busy = true
	batch := b.pending
	b.pending = nil
	b.timer = nil
	b.mu.Unlock()

	b.process(batch)

	b.mu.Lock()
	b.busy = false
	if len(b.pending) > 0 {
		// Operations arrived during the flush; start a new cycle.
		b.restartTimerLocked()
	} else {
		b.releaseWaitersLocked()
	}
	b.mu.Unlock()
}

// process applies one claimed batch: state diff, one transport replacement,
// confirmation events in queue order, then per-operation resolution.
func (b *Batcher) process(batch []pendingOp) {
	ops := make([]subscription.Operation, len(batch))
	for i, p := range batch {
		ops[i] = p.op
	}

	finalCount, changes := b.state.BulkUpdate(ops)

	err := b.conn.UpdateSubscriptions(context.Background(),
		b.state.ExactChannels(), b.state.Patterns())
	if err != nil {
		// The whole batch shares the failure; no partial silent success.
		b.logger.Log(log.NewErrorEvent("", err))
		b.sink.Emit(event.Event{Type: event.TypeError, Err: err})
		for _, p := range batch {
			p.result <- Result{Err: err}
		}
		return
	}

	for _, change := range changes {
		b.sink.Emit(confirmationEvent(change))
	}

	for _, p := range batch {
		p.result <- Result{Count: resolveCount(p.op.ID, changes, finalCount)}
	}
}

// confirmationEvent translates one state change into its public event.
func confirmationEvent(change subscription.ChangeEvent) event.Event {
	e := event.Event{Count: change.Count}
	switch change.Type {
	case subscription.OpSubscribe:
		e.Type = event.TypeSubscribe
		e.Channel = change.Channel
	case subscription.OpUnsubscribe:
		e.Type = event.TypeUnsubscribe
		e.Channel = change.Channel
	case subscription.OpPSubscribe:
		e.Type = event.TypePSubscribe
		e.Pattern = change.Channel
	case subscription.OpPUnsubscribe:
		e.Type = event.TypePUnsubscribe
		e.Pattern = change.Channel
	}
	return e
}

// resolveCount picks the count an operation's caller sees: the count from
// the operation's last change, or the batch's final count when it changed
// nothing.
func resolveCount(opID string, changes []subscription.ChangeEvent, finalCount int) int {
	count := finalCount
	for _, change := range changes {
		if change.OperationID == opID {
			count = change.Count
		}
	}
	return count
}

// WaitForPending blocks until the queue is empty and no batch is in flight,
// or the context is done.
func (b *Batcher) WaitForPending(ctx context.Context) error {
	b.mu.Lock()
	if len(b.pending) == 0 && !b.busy {
		b.mu.Unlock()
		return nil
	}
	done := make(chan struct{})
	b.waiters = append(b.waiters, done)
	b.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// releaseWaitersLocked signals all WaitForPending callers. Caller must hold b.mu.
func (b *Batcher) releaseWaitersLocked() {
	for _, done := range b.waiters {
		close(done)
	}
	b.waiters = nil
}

// PendingCount returns the number of operations waiting for the next batch.
func (b *Batcher) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close rejects all queued operations and stops the debounce timer. Queue
// calls after Close resolve immediately with ErrBatcherClosed.
func (b *Batcher) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	rejected := b.pending
	b.pending = nil
	b.releaseWaitersLocked()
	b.mu.Unlock()

	for _, p := range rejected {
		p.result <- Result{Err: ErrBatcherClosed}
	}
	return nil
}
