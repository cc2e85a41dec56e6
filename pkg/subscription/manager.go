package subscription

import (
	"sort"
	"sync"
	"time"
)

// Manager is the authoritative in-memory record of the desired subscription
// set. All operations are total functions over their inputs; there are no
// error conditions.
type Manager struct {
	mu sync.RWMutex

	// Live subscriptions
	exact    map[string]*Entry
	patterns map[string]*Entry

	// Monotonic insertion counter
	order uint64

	// Last mutation timestamp
	lastUpdate time.Time

	// Diagnostics ring of past snapshots
	history    []Snapshot
	historyMax int

	// Change listeners, invoked with a fresh snapshot after any state change
	listeners []func(Snapshot)
}

// NewManager creates a manager with the default history size.
func NewManager() *Manager {
	return NewManagerWithHistory(DefaultHistorySize)
}

// NewManagerWithHistory creates a manager retaining up to size snapshots.
func NewManagerWithHistory(size int) *Manager {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &Manager{
		exact:      make(map[string]*Entry),
		patterns:   make(map[string]*Entry),
		historyMax: size,
	}
}

// AddExact subscribes an exact channel. Adding a channel that is already
// present is a no-op. Returns the post-operation total count.
func (m *Manager) AddExact(channel string) int {
	return m.applySingle(OpSubscribe, channel)
}

// RemoveExact unsubscribes an exact channel. Removing an absent channel is
// a no-op. Returns the post-operation total count.
func (m *Manager) RemoveExact(channel string) int {
	return m.applySingle(OpUnsubscribe, channel)
}

// AddPattern subscribes a pattern. Returns the post-operation total count.
func (m *Manager) AddPattern(pattern string) int {
	return m.applySingle(OpPSubscribe, pattern)
}

// RemovePattern unsubscribes a pattern. Returns the post-operation total count.
func (m *Manager) RemovePattern(pattern string) int {
	return m.applySingle(OpPUnsubscribe, pattern)
}

// applySingle applies one mutation and notifies listeners if it changed state.
func (m *Manager) applySingle(op Op, name string) int {
	m.mu.Lock()
	changed := m.applyLocked(op, name)
	total := len(m.exact) + len(m.patterns)
	var snap Snapshot
	if changed {
		snap = m.snapshotLocked()
		m.recordHistoryLocked(snap)
	}
	listeners := m.listeners
	m.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(snap)
		}
	}
	return total
}

// BulkUpdate applies operations in order and returns the final total count
// together with the ordered list of changes that actually took effect.
// Operations that made no change produce no event. An unsubscribe variant
// with no targets expands to every currently subscribed name of its kind.
func (m *Manager) BulkUpdate(ops []Operation) (int, []ChangeEvent) {
	m.mu.Lock()

	var events []ChangeEvent
	for _, op := range ops {
		targets := op.Channels
		if len(targets) == 0 {
			switch op.Type {
			case OpUnsubscribe:
				targets = m.listLocked(m.exact)
			case OpPUnsubscribe:
				targets = m.listLocked(m.patterns)
			}
		}
		for _, name := range targets {
			if m.applyLocked(op.Type, name) {
				events = append(events, ChangeEvent{
					OperationID: op.ID,
					Type:        op.Type,
					Channel:     name,
					Count:       len(m.exact) + len(m.patterns),
				})
			}
		}
	}

	total := len(m.exact) + len(m.patterns)
	var snap Snapshot
	if len(events) > 0 {
		snap = m.snapshotLocked()
		m.recordHistoryLocked(snap)
	}
	listeners := m.listeners
	m.mu.Unlock()

	if len(events) > 0 {
		for _, fn := range listeners {
			fn(snap)
		}
	}
	return total, events
}

// applyLocked mutates one entry. Returns true if state changed.
// Caller must hold m.mu.
func (m *Manager) applyLocked(op Op, name string) bool {
	target := m.exact
	if op.IsPattern() {
		target = m.patterns
	}

	switch op {
	case OpSubscribe, OpPSubscribe:
		if _, exists := target[name]; exists {
			return false
		}
		m.order++
		target[name] = &Entry{
			SubscribedAt: time.Now(),
			Order:        m.order,
			Active:       true,
		}
	case OpUnsubscribe, OpPUnsubscribe:
		if _, exists := target[name]; !exists {
			return false
		}
		delete(target, name)
	default:
		return false
	}

	m.lastUpdate = time.Now()
	return true
}

// ExactChannels returns the subscribed exact channels in subscription order.
func (m *Manager) ExactChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(m.exact)
}

// Patterns returns the subscribed patterns in subscription order.
func (m *Manager) Patterns() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(m.patterns)
}

// TotalCount returns the combined subscription count.
func (m *Manager) TotalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.exact) + len(m.patterns)
}

// InSubscriberMode reports whether any subscription is active.
func (m *Manager) InSubscriberMode() bool {
	return m.TotalCount() > 0
}

// HasSubscriptions reports whether any subscription is active.
func (m *Manager) HasSubscriptions() bool {
	return m.TotalCount() > 0
}

// Snapshot returns the current aggregate state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// History returns the retained snapshots, oldest first.
func (m *Manager) History() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Snapshot(nil), m.history...)
}

// OnChange registers a listener invoked with a fresh snapshot after every
// state change. Listeners are called outside the manager's lock.
func (m *Manager) OnChange(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// listLocked returns map keys ordered by insertion. Caller must hold m.mu.
func (m *Manager) listLocked(entries map[string]*Entry) []string {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return entries[names[i]].Order < entries[names[j]].Order
	})
	return names
}

// snapshotLocked captures the aggregate state. Caller must hold m.mu.
func (m *Manager) snapshotLocked() Snapshot {
	total := len(m.exact) + len(m.patterns)
	return Snapshot{
		Channels:       m.listLocked(m.exact),
		Patterns:       m.listLocked(m.patterns),
		Total:          total,
		SubscriberMode: total > 0,
		TakenAt:        time.Now(),
	}
}

// recordHistoryLocked appends a snapshot to the diagnostics ring.
// Caller must hold m.mu.
func (m *Manager) recordHistoryLocked(snap Snapshot) {
	m.history = append(m.history, snap)
	if len(m.history) > m.historyMax {
		m.history = m.history[len(m.history)-m.historyMax:]
	}
}
