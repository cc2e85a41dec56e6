package transport

import (
	"context"
	"sync"
)

// DefaultBufferSize is the per-connection delivery buffer size.
const DefaultBufferSize = 256

// Hub is an in-process pub/sub backend. It delivers messages to subscriber
// connections through per-connection buffered queues, preserving publish
// order per connection. Messages published to a channel with no matching
// subscription are dropped (fire-and-forget).
type Hub struct {
	mu         sync.RWMutex
	conns      map[*HubConn]struct{}
	bufferSize int
	closed     bool
}

// NewHub creates a hub with the default per-connection buffer size.
func NewHub() *Hub {
	return NewHubWithBuffer(DefaultBufferSize)
}

// NewHubWithBuffer creates a hub with a custom per-connection buffer size.
func NewHubWithBuffer(size int) *Hub {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Hub{
		conns:      make(map[*HubConn]struct{}),
		bufferSize: size,
	}
}

// HubConn is a subscriber connection to a Hub. Its subscription set is
// fixed at dial time.
type HubConn struct {
	hub      *Hub
	channels map[string]struct{}
	patterns []string
	onClose  func(error)

	deliver chan Message
	quit    chan struct{}

	mu     sync.Mutex
	closed bool
}

// Dial creates a subscriber connection with the given fixed subscription set.
func (h *Hub) Dial(ctx context.Context, cfg Config) (SubscriberConn, error) {
	if cfg.OnMessage == nil {
		return nil, ErrNoCallback
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn := &HubConn{
		hub:      h,
		channels: make(map[string]struct{}, len(cfg.Channels)),
		patterns: append([]string(nil), cfg.Patterns...),
		onClose:  cfg.OnClose,
		deliver:  make(chan Message, h.bufferSize),
		quit:     make(chan struct{}),
	}
	for _, ch := range cfg.Channels {
		conn.channels[ch] = struct{}{}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	go conn.pump(cfg.OnMessage)

	return conn, nil
}

// DialPublisher creates a publisher connection.
func (h *Hub) DialPublisher(ctx context.Context) (PublisherConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	return &HubPublisher{hub: h}, nil
}

// publish fans a message out to every matching subscription and returns the
// number of subscriptions it reached. A connection subscribed to both the
// exact channel and a matching pattern receives the message once per
// subscription, as separate deliveries.
func (h *Hub) publish(channel string, payload []byte) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return 0, ErrHubClosed
	}

	count := 0
	for conn := range h.conns {
		if _, ok := conn.channels[channel]; ok {
			conn.enqueue(Message{Payload: payload, Channel: channel})
			count++
		}
		for _, pattern := range conn.patterns {
			if MatchPattern(pattern, channel) {
				conn.enqueue(Message{Payload: payload, Channel: channel, Pattern: pattern})
				count++
			}
		}
	}
	return count, nil
}

// InvalidateAll force-closes every subscriber connection, simulating a
// backend failure. Each connection's OnClose hook fires with
// ErrConnectionLost, which drives the bridge's reconnect path.
func (h *Hub) InvalidateAll() {
	h.mu.Lock()
	conns := make([]*HubConn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.conns = make(map[*HubConn]struct{})
	h.mu.Unlock()

	for _, conn := range conns {
		conn.closeWith(ErrConnectionLost)
	}
}

// Close shuts the hub down. All subscriber connections are closed and
// further dials or publishes fail with ErrHubClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	conns := make([]*HubConn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.conns = make(map[*HubConn]struct{})
	h.mu.Unlock()

	for _, conn := range conns {
		conn.closeWith(ErrHubClosed)
	}
	return nil
}

// ConnectionCount returns the number of live subscriber connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// pump delivers queued messages to the callback in order.
func (c *HubConn) pump(onMessage MessageFunc) {
	for {
		select {
		case msg := <-c.deliver:
			onMessage(msg)
		case <-c.quit:
			return
		}
	}
}

// enqueue adds a message to the delivery queue, dropping it if the
// subscriber is too slow to keep up.
func (c *HubConn) enqueue(msg Message) {
	select {
	case c.deliver <- msg:
	case <-c.quit:
	default:
	}
}

// Close releases the connection. The OnClose hook does not fire for a
// local Close.
func (c *HubConn) Close() error {
	c.hub.mu.Lock()
	delete(c.hub.conns, c)
	c.hub.mu.Unlock()

	c.closeWith(nil)
	return nil
}

// closeWith terminates the connection. A non-nil err means the connection
// was lost rather than closed locally, and fires the OnClose hook.
func (c *HubConn) closeWith(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.quit)
	c.mu.Unlock()

	if err != nil && c.onClose != nil {
		c.onClose(err)
	}
}

// HubPublisher is a publisher connection to a Hub.
type HubPublisher struct {
	hub *Hub

	mu     sync.Mutex
	closed bool
}

// Publish sends a payload to a channel and returns the receiver count.
func (p *HubPublisher) Publish(ctx context.Context, channel string, payload []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0, ErrConnClosed
	}
	return p.hub.publish(channel, payload)
}

// Close releases the publisher connection.
func (p *HubPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Compile-time interface satisfaction checks.
var (
	_ SubscriberFactory = (*Hub)(nil)
	_ PublisherFactory  = (*Hub)(nil)
	_ SubscriberConn    = (*HubConn)(nil)
	_ PublisherConn     = (*HubPublisher)(nil)
)
