package transport

import (
	"context"
	"errors"
)

// Transport errors.
var (
	ErrHubClosed      = errors.New("transport: hub closed")
	ErrConnClosed     = errors.New("transport: connection closed")
	ErrConnectionLost = errors.New("transport: connection lost")
	ErrNoCallback     = errors.New("transport: message callback required")
)

// Message is one item delivered on a subscriber connection.
type Message struct {
	// Payload is the message body.
	Payload []byte

	// Channel is the channel the message was published to.
	Channel string

	// Pattern is the pattern subscription that matched the channel.
	// Empty when the message was delivered via an exact subscription.
	Pattern string
}

// MessageFunc receives every message delivered on a subscriber connection.
type MessageFunc func(Message)

// Config fixes a subscriber connection's subscription set at dial time.
// The sets cannot be changed afterwards; to change them the caller must
// close the connection and dial a new one.
type Config struct {
	// Channels are the exact channel names to subscribe to.
	Channels []string

	// Patterns are the glob patterns to subscribe to.
	Patterns []string

	// OnMessage receives every delivered message. Required.
	OnMessage MessageFunc

	// OnClose is invoked once if the connection is lost for any reason
	// other than a local Close call. Optional.
	OnClose func(error)
}

// SubscriberConn is a live subscriber connection.
type SubscriberConn interface {
	// Close releases the connection. Close is idempotent.
	Close() error
}

// SubscriberFactory dials subscriber connections with a fixed subscription set.
type SubscriberFactory interface {
	Dial(ctx context.Context, cfg Config) (SubscriberConn, error)
}

// PublisherConn is a connection dedicated to publishing.
type PublisherConn interface {
	// Publish sends a payload to a channel and returns the number of
	// subscriber connections that received it.
	Publish(ctx context.Context, channel string, payload []byte) (int, error)

	// Close releases the connection. Close is idempotent.
	Close() error
}

// PublisherFactory dials publisher connections.
type PublisherFactory interface {
	DialPublisher(ctx context.Context) (PublisherConn, error)
}
