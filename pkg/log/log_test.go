package log

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	event := NewMessageEvent("conn-1", DirectionIn, "news", "n*", 42)

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}

	if decoded.ConnectionID != "conn-1" {
		t.Errorf("ConnectionID = %q, want %q", decoded.ConnectionID, "conn-1")
	}
	if decoded.Category != CategoryMessage {
		t.Errorf("Category = %v, want %v", decoded.Category, CategoryMessage)
	}
	if decoded.Message == nil {
		t.Fatal("Message payload missing after decode")
	}
	if decoded.Message.Channel != "news" || decoded.Message.Pattern != "n*" || decoded.Message.Size != 42 {
		t.Errorf("Message = %+v, want channel=news pattern=n* size=42", decoded.Message)
	}
}

func TestFileLoggerWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.cborlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	logger.Log(NewStateChangeEvent("conn-1", "CONNECTING", "CONNECTED", ""))
	logger.Log(NewMessageEvent("conn-1", DirectionIn, "a", "", 3))
	logger.Log(NewErrorEvent("conn-1", errors.New("boom")))

	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Log after close must be a silent no-op
	logger.Log(NewMessageEvent("conn-1", DirectionIn, "b", "", 1))

	events, err := ReadFile(path, nil)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	if events[0].StateChange == nil || events[0].StateChange.NewState != "CONNECTED" {
		t.Errorf("first event = %+v, want state change to CONNECTED", events[0])
	}
	if events[2].Error == nil || events[2].Error.Message != "boom" {
		t.Errorf("third event = %+v, want error 'boom'", events[2])
	}
}

func TestReadFileFiltered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.cborlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	logger.Log(NewMessageEvent("conn-1", DirectionIn, "a", "", 1))
	logger.Log(NewMessageEvent("conn-2", DirectionOut, "a", "", 1))
	logger.Log(NewErrorEvent("conn-1", errors.New("x")))
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	t.Run("ByConnection", func(t *testing.T) {
		events, err := ReadFile(path, &Filter{ConnectionID: "conn-1"})
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if len(events) != 2 {
			t.Errorf("len(events) = %d, want 2", len(events))
		}
	})

	t.Run("ByCategory", func(t *testing.T) {
		cat := CategoryError
		events, err := ReadFile(path, &Filter{Category: &cat})
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if len(events) != 1 {
			t.Errorf("len(events) = %d, want 1", len(events))
		}
	})

	t.Run("ByTimeRange", func(t *testing.T) {
		future := time.Now().Add(time.Hour)
		events, err := ReadFile(path, &Filter{TimeStart: &future})
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if len(events) != 0 {
			t.Errorf("len(events) = %d, want 0", len(events))
		}
	})
}

// recordingLogger captures events for assertions.
type recordingLogger struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingLogger) Log(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingLogger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestMultiLogger(t *testing.T) {
	a := &recordingLogger{}
	b := &recordingLogger{}

	multi := NewMultiLogger(a, b, NoopLogger{})
	multi.Log(NewMessageEvent("conn-1", DirectionIn, "a", "", 1))
	multi.Log(NewErrorEvent("conn-1", errors.New("x")))

	if a.count() != 2 {
		t.Errorf("logger a received %d events, want 2", a.count())
	}
	if b.count() != 2 {
		t.Errorf("logger b received %d events, want 2", b.count())
	}
}
