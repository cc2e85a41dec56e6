// Package connection owns the bridge's subscriber transport connection.
//
// The backend transport cannot change a connection's subscription set after
// dial, so the Lifecycle treats the connection as a replaceable resource:
// whenever the desired set changes, the current connection is closed and a
// new one is dialed with the new set. Close always precedes create, and at
// most one connection is alive at any time.
//
// # Reconnection
//
// When a dial fails or a live connection is lost, the Lifecycle retries
// with exponential backoff while the subscription manager still reports a
// non-empty desired set:
//
//  1. Initial delay: 100ms
//  2. Exponential increase: 200ms, 400ms, 800ms, ...
//  3. Maximum delay: 5 seconds
//  4. Bounded attempt budget (default 10); once exhausted the bridge
//     stops retrying and leaves the failure surfaced via the error event
//  5. Reset on successful connection
//
// Jitter is applied to each delay to avoid synchronized retries from
// multiple bridges.
//
// Reconnect attempts are strictly sequential: a pending retry timer is
// cancelled by any explicit update, and a retry that fires while an attempt
// is in flight gives way to it.
package connection
