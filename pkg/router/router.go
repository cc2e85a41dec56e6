// Package router translates raw transport messages into bridge events.
//
// Router is stateless and safe to share across connection recreations: the
// lifecycle manager hands its HandleMessage method to every new transport
// connection as the message callback.
package router

import (
	"fmt"

	"github.com/conduit-mq/conduit-go/pkg/event"
	"github.com/conduit-mq/conduit-go/pkg/log"
	"github.com/conduit-mq/conduit-go/pkg/transport"
)

// BinaryAware is the part of the event surface the router needs: somewhere
// to emit, and knowledge of whether binary-form events have an audience.
type BinaryAware interface {
	event.Sink
	HasBinaryListeners() bool
}

// Router converts one transport message into the correct bridge event.
type Router struct {
	sink   BinaryAware
	logger log.Logger
}

// New creates a router emitting into sink. A nil logger disables logging.
func New(sink BinaryAware, logger log.Logger) *Router {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Router{sink: sink, logger: logger}
}

// HandleMessage emits the event(s) for one delivered message. A message
// carrying a pattern produces a pattern-message event; otherwise an
// exact-message event. If any binary listener is registered the binary
// form of the same event is emitted as well.
//
// Any panic while emitting is redirected to an error event so that one bad
// message can never abort delivery of subsequent messages.
func (r *Router) HandleMessage(msg transport.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.sink.Emit(event.Event{
				Type: event.TypeError,
				Err:  fmt.Errorf("message handling failed on %q: %v", msg.Channel, rec),
			})
		}
	}()

	r.logger.Log(log.NewMessageEvent("", log.DirectionIn, msg.Channel, msg.Pattern, len(msg.Payload)))

	if msg.Pattern != "" {
		r.sink.Emit(event.Event{
			Type:    event.TypePMessage,
			Pattern: msg.Pattern,
			Channel: msg.Channel,
			Payload: string(msg.Payload),
		})
		if r.sink.HasBinaryListeners() {
			r.sink.Emit(event.Event{
				Type:    event.TypePMessageBuffer,
				Pattern: msg.Pattern,
				Channel: msg.Channel,
				Buffer:  msg.Payload,
			})
		}
		return
	}

	r.sink.Emit(event.Event{
		Type:    event.TypeMessage,
		Channel: msg.Channel,
		Payload: string(msg.Payload),
	})
	if r.sink.HasBinaryListeners() {
		r.sink.Emit(event.Event{
			Type:    event.TypeMessageBuffer,
			Channel: msg.Channel,
			Buffer:  msg.Payload,
		})
	}
}
