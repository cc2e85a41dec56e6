package event

import (
	"fmt"
	"sync"
	"time"
)

// MessageHandler receives text messages from exact channel subscriptions.
type MessageHandler func(channel, payload string)

// MessageBufferHandler receives binary messages from exact channel subscriptions.
type MessageBufferHandler func(channel string, payload []byte)

// PMessageHandler receives text messages from pattern subscriptions.
type PMessageHandler func(pattern, channel, payload string)

// PMessageBufferHandler receives binary messages from pattern subscriptions.
type PMessageBufferHandler func(pattern, channel string, payload []byte)

// ConfirmationHandler receives subscription confirmations with the
// total subscription count after the change.
type ConfirmationHandler func(name string, count int)

// ReconnectingHandler receives reconnection notifications.
type ReconnectingHandler func(attempt int, delay time.Duration)

// ErrorHandler receives errors surfaced by the bridge.
type ErrorHandler func(err error)

// Dispatcher fans events out to registered typed handlers.
// It implements Sink and is safe for concurrent use.
type Dispatcher struct {
	mu sync.RWMutex

	message        []MessageHandler
	messageBuffer  []MessageBufferHandler
	pmessage       []PMessageHandler
	pmessageBuffer []PMessageBufferHandler

	subscribe    []ConfirmationHandler
	unsubscribe  []ConfirmationHandler
	psubscribe   []ConfirmationHandler
	punsubscribe []ConfirmationHandler

	connect      []func()
	ready        []func()
	reconnecting []ReconnectingHandler
	errHandlers  []ErrorHandler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// OnMessage registers a handler for text messages on exact channels.
func (d *Dispatcher) OnMessage(fn MessageHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.message = append(d.message, fn)
}

// OnMessageBuffer registers a handler for binary messages on exact channels.
func (d *Dispatcher) OnMessageBuffer(fn MessageBufferHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messageBuffer = append(d.messageBuffer, fn)
}

// OnPMessage registers a handler for text messages from pattern subscriptions.
func (d *Dispatcher) OnPMessage(fn PMessageHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pmessage = append(d.pmessage, fn)
}

// OnPMessageBuffer registers a handler for binary messages from pattern subscriptions.
func (d *Dispatcher) OnPMessageBuffer(fn PMessageBufferHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pmessageBuffer = append(d.pmessageBuffer, fn)
}

// OnSubscribe registers a handler for exact subscription confirmations.
func (d *Dispatcher) OnSubscribe(fn ConfirmationHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribe = append(d.subscribe, fn)
}

// OnUnsubscribe registers a handler for exact unsubscription confirmations.
func (d *Dispatcher) OnUnsubscribe(fn ConfirmationHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unsubscribe = append(d.unsubscribe, fn)
}

// OnPSubscribe registers a handler for pattern subscription confirmations.
func (d *Dispatcher) OnPSubscribe(fn ConfirmationHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.psubscribe = append(d.psubscribe, fn)
}

// OnPUnsubscribe registers a handler for pattern unsubscription confirmations.
func (d *Dispatcher) OnPUnsubscribe(fn ConfirmationHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.punsubscribe = append(d.punsubscribe, fn)
}

// OnConnect registers a handler for connection establishment.
func (d *Dispatcher) OnConnect(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connect = append(d.connect, fn)
}

// OnReady registers a handler for connection readiness.
func (d *Dispatcher) OnReady(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ready = append(d.ready, fn)
}

// OnReconnecting registers a handler for reconnection notifications.
func (d *Dispatcher) OnReconnecting(fn ReconnectingHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reconnecting = append(d.reconnecting, fn)
}

// OnError registers a handler for bridge errors.
func (d *Dispatcher) OnError(fn ErrorHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errHandlers = append(d.errHandlers, fn)
}

// HasBinaryListeners reports whether any binary-form message handler is
// registered. The router uses this to decide whether buffer events are
// worth producing.
func (d *Dispatcher) HasBinaryListeners() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.messageBuffer) > 0 || len(d.pmessageBuffer) > 0
}

// Emit dispatches the event to all matching handlers in registration order.
// A panic in a handler is recovered and redirected to the error handlers.
func (d *Dispatcher) Emit(e Event) {
	d.mu.RLock()
	var fns []func()
	switch e.Type {
	case TypeMessage:
		for _, h := range d.message {
			h := h
			fns = append(fns, func() { h(e.Channel, e.Payload) })
		}
	case TypeMessageBuffer:
		for _, h := range d.messageBuffer {
			h := h
			fns = append(fns, func() { h(e.Channel, e.Buffer) })
		}
	case TypePMessage:
		for _, h := range d.pmessage {
			h := h
			fns = append(fns, func() { h(e.Pattern, e.Channel, e.Payload) })
		}
	case TypePMessageBuffer:
		for _, h := range d.pmessageBuffer {
			h := h
			fns = append(fns, func() { h(e.Pattern, e.Channel, e.Buffer) })
		}
	case TypeSubscribe:
		for _, h := range d.subscribe {
			h := h
			fns = append(fns, func() { h(e.Channel, e.Count) })
		}
	case TypeUnsubscribe:
		for _, h := range d.unsubscribe {
			h := h
			fns = append(fns, func() { h(e.Channel, e.Count) })
		}
	case TypePSubscribe:
		for _, h := range d.psubscribe {
			h := h
			fns = append(fns, func() { h(e.Pattern, e.Count) })
		}
	case TypePUnsubscribe:
		for _, h := range d.punsubscribe {
			h := h
			fns = append(fns, func() { h(e.Pattern, e.Count) })
		}
	case TypeConnect:
		for _, h := range d.connect {
			fns = append(fns, h)
		}
	case TypeReady:
		for _, h := range d.ready {
			fns = append(fns, h)
		}
	case TypeReconnecting:
		for _, h := range d.reconnecting {
			h := h
			fns = append(fns, func() { h(e.Attempt, e.Delay) })
		}
	case TypeError:
		for _, h := range d.errHandlers {
			h := h
			fns = append(fns, func() { h(e.Err) })
		}
	}
	d.mu.RUnlock()

	for _, fn := range fns {
		d.callIsolated(fn, e.Type)
	}
}

// callIsolated invokes one handler, converting a panic into an error event.
// Panics from error handlers themselves are swallowed to avoid recursion.
func (d *Dispatcher) callIsolated(fn func(), t Type) {
	defer func() {
		if r := recover(); r != nil {
			if t == TypeError {
				return
			}
			d.Emit(Event{
				Type: TypeError,
				Err:  fmt.Errorf("listener panic during %s event: %v", t, r),
			})
		}
	}()
	fn()
}

// Compile-time interface satisfaction check.
var _ Sink = (*Dispatcher)(nil)
