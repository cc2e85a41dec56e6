// Package bridge is the public facade of the pub/sub compatibility layer.
//
// The backend transport fixes a connection's subscription set at dial time.
// Bridge presents the familiar dynamic surface on top of it:
// subscribe/unsubscribe/psubscribe/punsubscribe mutate a desired-state
// record, bursts of mutations are debounced into single transport
// replacements, and confirmation events carry the actual post-mutation
// counts. Publishing uses its own lazily-dialed connection that is never
// recreated by subscription churn.
//
// # Composition
//
// Bridge wires together one instance of each collaborator:
//
//   - subscription.Manager: authoritative desired-state record
//   - batch.Batcher: debounced, serialized operation processing
//   - connection.Lifecycle: subscriber transport ownership and reconnect
//   - router.Router: transport message to event translation
//   - guard.CommandGuard: subscriber-mode command restriction
//   - event.Dispatcher: typed listener registration surface
//
// All public mutation methods block until their batch settles or the
// context is done.
package bridge
