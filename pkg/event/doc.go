// Package event defines the bridge's public event surface.
//
// Every fact the bridge reports to its callers is one Event value with a
// closed set of types: message delivery (text and binary forms, exact and
// pattern), subscription confirmations with running counts, connection
// lifecycle transitions, and errors.
//
// Events flow through the Sink interface. Dispatcher is the standard Sink:
// callers register typed handlers (OnMessage, OnSubscribe, ...) and the
// dispatcher fans each event out to the matching handlers. A panic in one
// handler is isolated and redirected to the error handlers, so delivery of
// one event never aborts delivery of the next.
//
// Binary-form message events (MessageBuffer, PMessageBuffer) are only
// produced by the router when at least one binary handler is registered;
// Dispatcher exposes HasBinaryListeners for that purpose.
package event
