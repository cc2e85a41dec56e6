// Package batch coalesces bursts of subscription operations into a minimal
// number of transport replacements.
//
// Every queued operation restarts a short debounce timer, so a continuous
// stream of calls keeps folding into the same batch until the call rate
// drops below the debounce threshold. When the timer fires the whole queue
// is claimed atomically, applied to the subscription manager in order, and
// the connection lifecycle is driven exactly once with the resulting sets.
//
// Confirmation events are emitted in queue order with the actual
// post-mutation counts. Each caller's result channel then resolves with the
// count from its own last change, or with the batch's final count when the
// operation changed nothing. A failure while replacing the transport rejects
// every operation in the batch with the same error.
//
// Batches are strictly serialized. A busy flag prevents overlapping flushes;
// operations arriving during a flush start a new debounce cycle once the
// flush completes.
package batch
