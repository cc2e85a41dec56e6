package log

import (
	"time"
)

// Event represents a bridge log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the subscriber connection (UUID).
	// Empty for events not tied to a particular connection.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// Type-specific payload (one of these will be set).
	Message     *MessageEvent     `cbor:"5,keyasint,omitempty"` // Pub/sub traffic
	StateChange *StateChangeEvent `cbor:"6,keyasint,omitempty"` // Connection state
	Error       *ErrorEventData   `cbor:"7,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates a message delivered to the bridge.
	DirectionIn Direction = 0
	// DirectionOut indicates a message published by the bridge.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates pub/sub traffic (delivered or published).
	CategoryMessage Category = 0
	// CategoryState indicates a connection state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MessageEvent describes one pub/sub message observed by the bridge.
type MessageEvent struct {
	// Channel the message was delivered on or published to.
	Channel string `cbor:"1,keyasint"`

	// Pattern is the matching pattern subscription, if any.
	Pattern string `cbor:"2,keyasint,omitempty"`

	// Size is the payload size in bytes.
	Size int `cbor:"3,keyasint"`
}

// StateChangeEvent describes a connection lifecycle transition.
type StateChangeEvent struct {
	// OldState is the state before the transition.
	OldState string `cbor:"1,keyasint"`

	// NewState is the state after the transition.
	NewState string `cbor:"2,keyasint"`

	// Reason describes why the transition happened, if known.
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ErrorEventData describes an error captured by the bridge.
type ErrorEventData struct {
	// Message is the error text.
	Message string `cbor:"1,keyasint"`
}

// NewMessageEvent builds a message event for traffic on the given connection.
func NewMessageEvent(connID string, dir Direction, channel, pattern string, size int) Event {
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Category:     CategoryMessage,
		Message: &MessageEvent{
			Channel: channel,
			Pattern: pattern,
			Size:    size,
		},
	}
}

// NewStateChangeEvent builds a state-change event.
func NewStateChangeEvent(connID, oldState, newState, reason string) Event {
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Category:     CategoryState,
		StateChange: &StateChangeEvent{
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	}
}

// NewErrorEvent builds an error event.
func NewErrorEvent(connID string, err error) Event {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Category:     CategoryError,
		Error:        &ErrorEventData{Message: msg},
	}
}
