package router

import (
	"testing"

	"github.com/conduit-mq/conduit-go/pkg/event"
	"github.com/conduit-mq/conduit-go/pkg/transport"
)

func TestExactMessageRouting(t *testing.T) {
	d := event.NewDispatcher()

	var messages, pmessages int
	var gotChannel, gotPayload string
	d.OnMessage(func(channel, payload string) {
		messages++
		gotChannel = channel
		gotPayload = payload
	})
	d.OnPMessage(func(pattern, channel, payload string) {
		pmessages++
	})

	r := New(d, nil)
	r.HandleMessage(transport.Message{Payload: []byte("x"), Channel: "a"})

	if messages != 1 {
		t.Errorf("message events = %d, want 1", messages)
	}
	if pmessages != 0 {
		t.Errorf("pmessage events = %d, want 0", pmessages)
	}
	if gotChannel != "a" || gotPayload != "x" {
		t.Errorf("got (%q, %q), want (a, x)", gotChannel, gotPayload)
	}
}

func TestPatternMessageRouting(t *testing.T) {
	d := event.NewDispatcher()

	var messages, pmessages int
	var gotPattern, gotChannel, gotPayload string
	d.OnMessage(func(channel, payload string) { messages++ })
	d.OnPMessage(func(pattern, channel, payload string) {
		pmessages++
		gotPattern = pattern
		gotChannel = channel
		gotPayload = payload
	})

	r := New(d, nil)
	r.HandleMessage(transport.Message{Payload: []byte("x"), Channel: "a", Pattern: "a*"})

	if pmessages != 1 {
		t.Errorf("pmessage events = %d, want 1", pmessages)
	}
	if messages != 0 {
		t.Errorf("message events = %d, want 0", messages)
	}
	if gotPattern != "a*" || gotChannel != "a" || gotPayload != "x" {
		t.Errorf("got (%q, %q, %q), want (a*, a, x)", gotPattern, gotChannel, gotPayload)
	}
}

func TestBinaryEventsOnlyWithBinaryListeners(t *testing.T) {
	d := event.NewDispatcher()

	var buffers int
	d.OnMessage(func(string, string) {})

	r := New(d, nil)
	r.HandleMessage(transport.Message{Payload: []byte("x"), Channel: "a"})

	// No binary listener yet, no buffer event possible; register one now
	d.OnMessageBuffer(func(channel string, payload []byte) {
		buffers++
		if string(payload) != "y" {
			t.Errorf("buffer payload = %q, want y", payload)
		}
	})

	r.HandleMessage(transport.Message{Payload: []byte("y"), Channel: "a"})

	if buffers != 1 {
		t.Errorf("buffer events = %d, want 1", buffers)
	}
}

func TestListenerPanicDoesNotStopDelivery(t *testing.T) {
	d := event.NewDispatcher()

	var errs int
	var delivered []string
	d.OnError(func(error) { errs++ })
	d.OnMessage(func(channel, payload string) {
		if payload == "bad" {
			panic("listener exploded")
		}
		delivered = append(delivered, payload)
	})

	r := New(d, nil)
	r.HandleMessage(transport.Message{Payload: []byte("bad"), Channel: "a"})
	r.HandleMessage(transport.Message{Payload: []byte("good"), Channel: "a"})

	if errs != 1 {
		t.Errorf("error events = %d, want 1", errs)
	}
	if len(delivered) != 1 || delivered[0] != "good" {
		t.Errorf("delivered = %v, want [good]", delivered)
	}
}
