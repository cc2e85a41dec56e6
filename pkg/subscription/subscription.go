package subscription

import (
	"time"

	"github.com/google/uuid"
)

// DefaultHistorySize is the number of state snapshots retained for diagnostics.
const DefaultHistorySize = 16

// Op identifies a subscription mutation.
type Op uint8

const (
	// OpSubscribe adds exact channels.
	OpSubscribe Op = iota

	// OpUnsubscribe removes exact channels (empty target list means all).
	OpUnsubscribe

	// OpPSubscribe adds patterns.
	OpPSubscribe

	// OpPUnsubscribe removes patterns (empty target list means all).
	OpPUnsubscribe
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpSubscribe:
		return "subscribe"
	case OpUnsubscribe:
		return "unsubscribe"
	case OpPSubscribe:
		return "psubscribe"
	case OpPUnsubscribe:
		return "punsubscribe"
	default:
		return "unknown"
	}
}

// IsPattern reports whether the operation targets patterns.
func (o Op) IsPattern() bool {
	return o == OpPSubscribe || o == OpPUnsubscribe
}

// Entry is the metadata kept per subscribed channel or pattern.
type Entry struct {
	// SubscribedAt is when the subscription was added.
	SubscribedAt time.Time

	// Order is the value of a monotonic counter at insertion time.
	// Listing queries return entries in this order.
	Order uint64

	// Active indicates the entry is live. Entries are removed rather
	// than deactivated; the flag exists for snapshot diagnostics.
	Active bool
}

// Operation is one queued subscription intent. Operations are created when
// a public bridge method is called and consumed exactly once when their
// batch is processed.
type Operation struct {
	// ID uniquely identifies the operation.
	ID string

	// Type is the mutation kind.
	Type Op

	// Channels are the target channel names or patterns, in caller order.
	// Empty means "all" for the unsubscribe variants.
	Channels []string

	// EnqueuedAt is when the operation was created.
	EnqueuedAt time.Time
}

// NewOperation creates an operation with a fresh unique ID.
func NewOperation(op Op, channels []string) Operation {
	return Operation{
		ID:         uuid.NewString(),
		Type:       op,
		Channels:   append([]string(nil), channels...),
		EnqueuedAt: time.Now(),
	}
}

// ChangeEvent records one mutation that actually changed state.
// Count is the total subscription count immediately after the change,
// never a predicted value.
type ChangeEvent struct {
	// OperationID ties the event back to the operation that caused it.
	OperationID string

	// Type is the mutation kind.
	Type Op

	// Channel is the affected channel or pattern.
	Channel string

	// Count is the post-mutation total.
	Count int
}

// Snapshot is an immutable view of the aggregate subscription state.
type Snapshot struct {
	// Channels are the exact channels, in subscription order.
	Channels []string

	// Patterns are the patterns, in subscription order.
	Patterns []string

	// Total is the combined subscription count.
	Total int

	// SubscriberMode is true while Total > 0.
	SubscriberMode bool

	// TakenAt is when the snapshot was captured.
	TakenAt time.Time
}
