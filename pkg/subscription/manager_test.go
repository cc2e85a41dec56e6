package subscription

import (
	"testing"
)

func TestAddExactIdempotent(t *testing.T) {
	m := NewManager()

	if count := m.AddExact("a"); count != 1 {
		t.Errorf("AddExact(a) = %d, want 1", count)
	}
	// Adding again is a no-op
	if count := m.AddExact("a"); count != 1 {
		t.Errorf("second AddExact(a) = %d, want 1", count)
	}
	if count := m.AddExact("b"); count != 2 {
		t.Errorf("AddExact(b) = %d, want 2", count)
	}
}

func TestRemoveAbsentIsNoOp(t *testing.T) {
	m := NewManager()
	m.AddExact("a")

	if count := m.RemoveExact("nope"); count != 1 {
		t.Errorf("RemoveExact(nope) = %d, want 1", count)
	}
	if count := m.RemoveExact("a"); count != 0 {
		t.Errorf("RemoveExact(a) = %d, want 0", count)
	}
}

func TestPatternsCountSeparately(t *testing.T) {
	m := NewManager()
	m.AddExact("a")
	m.AddPattern("a")

	// Exact "a" and pattern "a" are distinct subscriptions
	if count := m.TotalCount(); count != 2 {
		t.Errorf("TotalCount() = %d, want 2", count)
	}
	if count := m.RemovePattern("a"); count != 1 {
		t.Errorf("RemovePattern(a) = %d, want 1", count)
	}
}

func TestSubscriberModeDerived(t *testing.T) {
	m := NewManager()

	if m.InSubscriberMode() {
		t.Error("InSubscriberMode() = true on empty manager")
	}
	m.AddPattern("p*")
	if !m.InSubscriberMode() {
		t.Error("InSubscriberMode() = false with one pattern")
	}
	m.RemovePattern("p*")
	if m.InSubscriberMode() {
		t.Error("InSubscriberMode() = true after removing everything")
	}
}

func TestListingPreservesSubscriptionOrder(t *testing.T) {
	m := NewManager()
	m.AddExact("c")
	m.AddExact("a")
	m.AddExact("b")

	got := m.ExactChannels()
	want := []string{"c", "a", "b"}
	if len(got) != len(want) {
		t.Fatalf("ExactChannels() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ExactChannels()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBulkUpdateEventsInOrder(t *testing.T) {
	m := NewManager()

	ops := []Operation{
		NewOperation(OpSubscribe, []string{"a", "b"}),
		NewOperation(OpPSubscribe, []string{"p*"}),
		NewOperation(OpUnsubscribe, []string{"a"}),
	}
	final, events := m.BulkUpdate(ops)

	if final != 2 {
		t.Errorf("final count = %d, want 2", final)
	}
	if len(events) != 4 {
		t.Fatalf("len(events) = %d, want 4", len(events))
	}

	wantCounts := []int{1, 2, 3, 2}
	wantChannels := []string{"a", "b", "p*", "a"}
	for i, ev := range events {
		if ev.Count != wantCounts[i] {
			t.Errorf("events[%d].Count = %d, want %d", i, ev.Count, wantCounts[i])
		}
		if ev.Channel != wantChannels[i] {
			t.Errorf("events[%d].Channel = %q, want %q", i, ev.Channel, wantChannels[i])
		}
	}

	// Events carry their operation's ID
	if events[0].OperationID != ops[0].ID || events[1].OperationID != ops[0].ID {
		t.Error("subscribe events missing originating operation ID")
	}
	if events[3].OperationID != ops[2].ID {
		t.Error("unsubscribe event missing originating operation ID")
	}
}

func TestBulkUpdateNoOpProducesNoEvent(t *testing.T) {
	m := NewManager()
	m.AddExact("a")

	_, events := m.BulkUpdate([]Operation{
		NewOperation(OpSubscribe, []string{"a"}),
	})
	if len(events) != 0 {
		t.Errorf("len(events) = %d for duplicate subscribe, want 0", len(events))
	}
}

func TestBulkUpdateCoalescesToNoOp(t *testing.T) {
	m := NewManager()

	final, events := m.BulkUpdate([]Operation{
		NewOperation(OpSubscribe, []string{"x"}),
		NewOperation(OpUnsubscribe, []string{"x"}),
	})
	if final != 0 {
		t.Errorf("final count = %d, want 0", final)
	}
	// Both operations changed state, so both emit events
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Type != OpSubscribe || events[0].Count != 1 {
		t.Errorf("events[0] = %+v, want subscribe with count 1", events[0])
	}
	if events[1].Type != OpUnsubscribe || events[1].Count != 0 {
		t.Errorf("events[1] = %+v, want unsubscribe with count 0", events[1])
	}
}

func TestBulkUpdateUnsubscribeAll(t *testing.T) {
	m := NewManager()
	m.AddExact("a")
	m.AddExact("b")
	m.AddExact("c")
	m.AddPattern("p*")

	final, events := m.BulkUpdate([]Operation{
		NewOperation(OpUnsubscribe, nil),
	})
	if final != 1 {
		t.Errorf("final count = %d, want 1 (pattern remains)", final)
	}
	if len(events) != 3 {
		t.Errorf("len(events) = %d, want 3", len(events))
	}

	final, _ = m.BulkUpdate([]Operation{
		NewOperation(OpPUnsubscribe, nil),
	})
	if final != 0 {
		t.Errorf("final count after punsubscribe all = %d, want 0", final)
	}
	if m.InSubscriberMode() {
		t.Error("InSubscriberMode() = true after unsubscribing everything")
	}
}

func TestOnChangeNotified(t *testing.T) {
	m := NewManager()

	var snaps []Snapshot
	m.OnChange(func(s Snapshot) {
		snaps = append(snaps, s)
	})

	m.AddExact("a")
	m.AddExact("a") // no-op, no notification
	m.RemoveExact("a")

	if len(snaps) != 2 {
		t.Fatalf("got %d notifications, want 2", len(snaps))
	}
	if !snaps[0].SubscriberMode || snaps[0].Total != 1 {
		t.Errorf("first snapshot = %+v, want total 1 in subscriber mode", snaps[0])
	}
	if snaps[1].SubscriberMode || snaps[1].Total != 0 {
		t.Errorf("second snapshot = %+v, want total 0 out of subscriber mode", snaps[1])
	}
}

func TestHistoryRingBounded(t *testing.T) {
	m := NewManagerWithHistory(4)

	for i := 0; i < 10; i++ {
		m.AddExact(string(rune('a' + i)))
	}

	history := m.History()
	if len(history) != 4 {
		t.Fatalf("len(history) = %d, want 4", len(history))
	}
	// Most recent snapshot reflects current state
	last := history[len(history)-1]
	if last.Total != 10 {
		t.Errorf("last snapshot total = %d, want 10", last.Total)
	}
}

func TestOperationIDsUnique(t *testing.T) {
	a := NewOperation(OpSubscribe, []string{"x"})
	b := NewOperation(OpSubscribe, []string{"x"})
	if a.ID == b.ID {
		t.Error("two operations share an ID")
	}
	if a.ID == "" {
		t.Error("operation ID empty")
	}
}
