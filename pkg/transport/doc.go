// Package transport defines the backend pub/sub transport the bridge runs on.
//
// The backend model is deliberately static: a subscriber connection's
// channel and pattern sets are fixed when the connection is dialed and can
// never change afterwards. All messages arrive through a single callback.
// The bridge emulates dynamic subscribe/unsubscribe on top of this by
// replacing the connection whenever the desired set changes.
//
// Two backends are provided:
//   - Hub: an in-process broker, used by the CLI, the benchmark tool, and tests
//   - PGFactory: PostgreSQL LISTEN/NOTIFY, for cross-process delivery
//
// Publishing always uses a separate connection type (PublisherConn) so the
// publish path is never disturbed by subscriber connection replacement.
//
// # Pattern subscriptions
//
// Patterns are glob-style: '*' matches any sequence (including empty),
// '?' matches exactly one character, anything else matches literally.
// A message matching both an exact subscription and a pattern subscription
// on the same connection is delivered once per matching subscription.
package transport
