// Package subscription tracks the bridge's desired subscription set.
//
// Manager is the single authoritative record of which exact channels and
// glob patterns are currently subscribed. Every mutation is idempotent:
// adding a channel that is already present, or removing one that is absent,
// changes nothing and produces no event.
//
// The batcher applies queued operations through BulkUpdate, which returns
// the ordered list of changes that actually took effect, each carrying the
// running total at the moment it applied. Those change events become the
// bridge's public subscribe/unsubscribe confirmations.
//
// A bounded ring of state snapshots is kept for diagnostics. It never
// participates in correctness.
package subscription
