package event

import "time"

// Type identifies the kind of event.
type Type uint8

const (
	// TypeMessage is a text message delivered on an exact channel subscription.
	TypeMessage Type = iota

	// TypeMessageBuffer is the binary form of TypeMessage.
	TypeMessageBuffer

	// TypePMessage is a text message delivered via a pattern subscription.
	TypePMessage

	// TypePMessageBuffer is the binary form of TypePMessage.
	TypePMessageBuffer

	// TypeSubscribe confirms an exact channel subscription.
	TypeSubscribe

	// TypeUnsubscribe confirms an exact channel removal.
	TypeUnsubscribe

	// TypePSubscribe confirms a pattern subscription.
	TypePSubscribe

	// TypePUnsubscribe confirms a pattern removal.
	TypePUnsubscribe

	// TypeConnect indicates the subscriber connection was established.
	TypeConnect

	// TypeReady indicates the subscriber connection is ready for traffic.
	TypeReady

	// TypeReconnecting indicates a connection (re)creation is starting.
	TypeReconnecting

	// TypeError reports an error to listeners.
	TypeError
)

// String returns a human-readable event type name.
func (t Type) String() string {
	switch t {
	case TypeMessage:
		return "message"
	case TypeMessageBuffer:
		return "messageBuffer"
	case TypePMessage:
		return "pmessage"
	case TypePMessageBuffer:
		return "pmessageBuffer"
	case TypeSubscribe:
		return "subscribe"
	case TypeUnsubscribe:
		return "unsubscribe"
	case TypePSubscribe:
		return "psubscribe"
	case TypePUnsubscribe:
		return "punsubscribe"
	case TypeConnect:
		return "connect"
	case TypeReady:
		return "ready"
	case TypeReconnecting:
		return "reconnecting"
	case TypeError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one fact emitted by the bridge. Which fields are meaningful
// depends on Type; unused fields are zero.
type Event struct {
	// Type identifies the event kind.
	Type Type

	// Channel is set for message and subscription-confirmation events.
	Channel string

	// Pattern is set for pattern message and pattern confirmation events.
	Pattern string

	// Payload is the message text (message/pmessage).
	Payload string

	// Buffer is the binary payload (messageBuffer/pmessageBuffer).
	Buffer []byte

	// Count is the total subscription count after a confirmation event.
	Count int

	// Attempt is the reconnection attempt number (reconnecting).
	Attempt int

	// Delay is the backoff delay before the attempt (reconnecting).
	Delay time.Duration

	// Err carries the error (error events).
	Err error
}

// Sink receives emitted events. Implementations must tolerate being
// called from multiple goroutines.
type Sink interface {
	Emit(Event)
}
