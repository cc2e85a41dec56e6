// Package log provides structured event logging for the conduit bridge.
//
// The bridge reports three classes of events:
//   - State changes (connection lifecycle transitions)
//   - Messages (pub/sub traffic observed by the bridge)
//   - Errors (transport failures, listener panics, batch failures)
//
// Applications receive events through the Logger interface. Several
// implementations are provided:
//   - NoopLogger: discards everything (the default)
//   - FileLogger: appends CBOR-encoded events to a file
//   - SlogAdapter: forwards events to a log/slog logger
//   - MultiLogger: fans out to several loggers at once
//
// Events written by FileLogger can be read back with Reader, optionally
// filtered by connection, category, direction, or time range.
package log
