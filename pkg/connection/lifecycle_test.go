package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/conduit-mq/conduit-go/pkg/event"
	"github.com/conduit-mq/conduit-go/pkg/subscription"
	"github.com/conduit-mq/conduit-go/pkg/transport"
)

// fakeConn records close calls and exposes the OnClose hook it was dialed with.
type fakeConn struct {
	factory *fakeFactory
	onClose func(error)

	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.factory.record("close")
	return nil
}

// lose simulates the transport losing the connection.
func (c *fakeConn) lose(err error) {
	if c.onClose != nil {
		c.onClose(err)
	}
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type dialRecord struct {
	channels []string
	patterns []string
}

// fakeFactory is an in-package SubscriberFactory test double.
type fakeFactory struct {
	mu       sync.Mutex
	dials    []dialRecord
	conns    []*fakeConn
	failNext int
	ops      []string // interleaved "dial"/"close" sequence
}

func (f *fakeFactory) Dial(ctx context.Context, cfg transport.Config) (transport.SubscriberConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ops = append(f.ops, "dial")
	f.dials = append(f.dials, dialRecord{
		channels: append([]string(nil), cfg.Channels...),
		patterns: append([]string(nil), cfg.Patterns...),
	})

	if f.failNext > 0 {
		f.failNext--
		return nil, fmt.Errorf("dial refused")
	}

	conn := &fakeConn{factory: f, onClose: cfg.OnClose}
	f.conns = append(f.conns, conn)
	return conn, nil
}

func (f *fakeFactory) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
}

func (f *fakeFactory) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dials)
}

func (f *fakeFactory) lastDial() dialRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials[len(f.dials)-1]
}

func (f *fakeFactory) lastConn() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[len(f.conns)-1]
}

func (f *fakeFactory) opSequence() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

// recordingSink collects emitted event types in order.
type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *recordingSink) Emit(e event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) snapshot() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.events...)
}

func (s *recordingSink) types() []event.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]event.Type, len(s.events))
	for i, e := range s.events {
		types[i] = e.Type
	}
	return types
}

func newTestLifecycle(t *testing.T, factory *fakeFactory, source *subscription.Manager, sink event.Sink) *Lifecycle {
	t.Helper()
	l, err := New(Config{
		Factory:   factory,
		Source:    source,
		OnMessage: func(transport.Message) {},
		Sink:      sink,
		Backoff: BackoffConfig{
			Initial:     2 * time.Millisecond,
			Max:         10 * time.Millisecond,
			MaxAttempts: 5,
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func waitForState(t *testing.T, l *Lifecycle, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if l.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %v, at %v", want, l.State())
}

func TestEmptySetDisconnects(t *testing.T) {
	factory := &fakeFactory{}
	l := newTestLifecycle(t, factory, subscription.NewManager(), &recordingSink{})

	// No connection exists; releasing is still not an error
	if err := l.UpdateSubscriptions(context.Background(), nil, nil); err != nil {
		t.Fatalf("UpdateSubscriptions(empty) = %v, want nil", err)
	}
	if l.State() != StateDisconnected {
		t.Errorf("State() = %v, want DISCONNECTED", l.State())
	}
	if factory.dialCount() != 0 {
		t.Errorf("dials = %d, want 0", factory.dialCount())
	}
}

func TestUpdateDialsWithExactSets(t *testing.T) {
	factory := &fakeFactory{}
	source := subscription.NewManager()
	sink := &recordingSink{}
	l := newTestLifecycle(t, factory, source, sink)

	source.AddExact("a")
	source.AddExact("b")
	source.AddPattern("p*")

	err := l.UpdateSubscriptions(context.Background(), source.ExactChannels(), source.Patterns())
	if err != nil {
		t.Fatalf("UpdateSubscriptions: %v", err)
	}

	if !l.IsConnected() {
		t.Error("IsConnected() = false after successful update")
	}
	if l.Client() == nil {
		t.Error("Client() = nil after successful update")
	}
	if l.ConnectionID() == "" {
		t.Error("ConnectionID() empty after successful update")
	}

	dial := factory.lastDial()
	if len(dial.channels) != 2 || dial.channels[0] != "a" || dial.channels[1] != "b" {
		t.Errorf("dial channels = %v, want [a b]", dial.channels)
	}
	if len(dial.patterns) != 1 || dial.patterns[0] != "p*" {
		t.Errorf("dial patterns = %v, want [p*]", dial.patterns)
	}

	// Lifecycle events arrive in order: reconnecting, connect, ready
	types := sink.types()
	want := []event.Type{event.TypeReconnecting, event.TypeConnect, event.TypeReady}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, types[i], want[i])
		}
	}
}

func TestClosePrecedesCreate(t *testing.T) {
	factory := &fakeFactory{}
	source := subscription.NewManager()
	l := newTestLifecycle(t, factory, source, &recordingSink{})

	source.AddExact("a")
	if err := l.UpdateSubscriptions(context.Background(), source.ExactChannels(), nil); err != nil {
		t.Fatalf("first update: %v", err)
	}

	source.AddExact("b")
	if err := l.UpdateSubscriptions(context.Background(), source.ExactChannels(), nil); err != nil {
		t.Fatalf("second update: %v", err)
	}

	want := []string{"dial", "close", "dial"}
	got := factory.opSequence()
	if len(got) != len(want) {
		t.Fatalf("op sequence = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("op %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDialFailureSchedulesReconnect(t *testing.T) {
	factory := &fakeFactory{failNext: 1}
	source := subscription.NewManager()
	sink := &recordingSink{}
	l := newTestLifecycle(t, factory, source, sink)

	source.AddExact("a")
	err := l.UpdateSubscriptions(context.Background(), source.ExactChannels(), nil)
	if err == nil {
		t.Fatal("UpdateSubscriptions = nil error, want dial failure")
	}
	if l.State() != StateError {
		t.Errorf("State() = %v after failed dial, want ERROR", l.State())
	}

	// The scheduled retry restores the desired set
	waitForState(t, l, StateConnected)

	dial := factory.lastDial()
	if len(dial.channels) != 1 || dial.channels[0] != "a" {
		t.Errorf("reconnect dial channels = %v, want [a]", dial.channels)
	}

	// The failure surfaced via the error event, and the retry's
	// reconnecting event carries the backoff delay it waited out
	var foundErr, foundDelay bool
	for _, e := range sink.snapshot() {
		if e.Type == event.TypeError {
			foundErr = true
		}
		if e.Type == event.TypeReconnecting && e.Delay > 0 {
			foundDelay = true
		}
	}
	if !foundErr {
		t.Error("no error event emitted for failed dial")
	}
	if !foundDelay {
		t.Error("no reconnecting event carried a backoff delay")
	}
}

func TestConnectionLostReconnectsWithSameSet(t *testing.T) {
	factory := &fakeFactory{}
	source := subscription.NewManager()
	l := newTestLifecycle(t, factory, source, &recordingSink{})

	source.AddExact("a")
	source.AddExact("b")
	source.AddPattern("p*")
	if err := l.UpdateSubscriptions(context.Background(), source.ExactChannels(), source.Patterns()); err != nil {
		t.Fatalf("UpdateSubscriptions: %v", err)
	}

	firstID := l.ConnectionID()
	factory.lastConn().lose(errors.New("transport invalidated"))

	waitForState(t, l, StateConnected)

	if l.ConnectionID() == firstID {
		t.Error("connection ID unchanged after reconnect, expected a new connection")
	}
	dial := factory.lastDial()
	if len(dial.channels) != 2 || dial.channels[0] != "a" || dial.channels[1] != "b" {
		t.Errorf("reconnect channels = %v, want [a b]", dial.channels)
	}
	if len(dial.patterns) != 1 || dial.patterns[0] != "p*" {
		t.Errorf("reconnect patterns = %v, want [p*]", dial.patterns)
	}
}

func TestStaleLossNotificationIgnored(t *testing.T) {
	factory := &fakeFactory{}
	source := subscription.NewManager()
	l := newTestLifecycle(t, factory, source, &recordingSink{})

	source.AddExact("a")
	if err := l.UpdateSubscriptions(context.Background(), source.ExactChannels(), nil); err != nil {
		t.Fatalf("first update: %v", err)
	}
	first := factory.lastConn()

	source.AddExact("b")
	if err := l.UpdateSubscriptions(context.Background(), source.ExactChannels(), nil); err != nil {
		t.Fatalf("second update: %v", err)
	}
	second := factory.lastConn()
	currentID := l.ConnectionID()

	// The replaced connection's loss notification arrives after its
	// successor was dialed
	first.lose(errors.New("transport invalidated"))
	time.Sleep(20 * time.Millisecond)

	if l.State() != StateConnected {
		t.Errorf("State() = %v after stale loss, want CONNECTED", l.State())
	}
	if l.ConnectionID() != currentID {
		t.Error("live connection replaced by a stale loss notification")
	}
	if second.isClosed() {
		t.Error("live connection closed by a stale loss notification")
	}
	if n := factory.dialCount(); n != 2 {
		t.Errorf("dials = %d, want 2 (no reconnect for a stale loss)", n)
	}
}

func TestAttemptBudgetExhaustion(t *testing.T) {
	factory := &fakeFactory{failNext: 100}
	source := subscription.NewManager()
	l, err := New(Config{
		Factory:   factory,
		Source:    source,
		OnMessage: func(transport.Message) {},
		Backoff: BackoffConfig{
			Initial:     time.Millisecond,
			Max:         2 * time.Millisecond,
			MaxAttempts: 3,
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	source.AddExact("a")
	_ = l.UpdateSubscriptions(context.Background(), source.ExactChannels(), nil)

	// Give all retries time to run out
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if l.BackoffAttempts() >= 3 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	if l.State() != StateError {
		t.Errorf("State() = %v after budget exhaustion, want ERROR", l.State())
	}
	// Initial attempt plus at most MaxAttempts retries
	if n := factory.dialCount(); n > 4 {
		t.Errorf("dials = %d, want at most 4 (1 + 3 retries)", n)
	}
}

func TestUpdateAfterClose(t *testing.T) {
	factory := &fakeFactory{}
	l := newTestLifecycle(t, factory, subscription.NewManager(), &recordingSink{})

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	err := l.UpdateSubscriptions(context.Background(), []string{"a"}, nil)
	if !errors.Is(err, ErrLifecycleClosed) {
		t.Errorf("UpdateSubscriptions after Close = %v, want ErrLifecycleClosed", err)
	}
}
