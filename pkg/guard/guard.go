// Package guard enforces subscriber-mode command restrictions.
//
// The backend protocol only permits a small set of commands on a connection
// with active subscriptions. The bridge's regular commands travel over a
// different connection than its pub/sub traffic, so the restriction cannot
// be enforced server-side; CommandGuard reproduces it client-side.
package guard

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/conduit-mq/conduit-go/pkg/subscription"
)

// ErrSubscriberMode is wrapped by every rejection from CheckCommand.
var ErrSubscriberMode = errors.New("subscriber mode")

// allowedCommands are the commands the backend permits while subscribed.
var allowedCommands = map[string]struct{}{
	"subscribe":    {},
	"unsubscribe":  {},
	"psubscribe":   {},
	"punsubscribe": {},
	"ssubscribe":   {},
	"sunsubscribe": {},
	"ping":         {},
	"quit":         {},
	"reset":        {},
}

// CommandGuard tracks whether the bridge is in subscriber mode and rejects
// disallowed commands while it is.
type CommandGuard struct {
	mu             sync.RWMutex
	subscriberMode bool
}

// New creates a guard. Register Update with the subscription manager's
// OnChange hook to keep it current.
func New() *CommandGuard {
	return &CommandGuard{}
}

// Update refreshes the guard from a subscription state snapshot.
func (g *CommandGuard) Update(snap subscription.Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscriberMode = snap.SubscriberMode
}

// SubscriberMode reports whether the guard currently restricts commands.
func (g *CommandGuard) SubscriberMode() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.subscriberMode
}

// CheckCommand returns an error if the named command is not permitted in
// the current mode. Command names are matched case-insensitively. The error
// mirrors the backend protocol's own rejection text and wraps
// ErrSubscriberMode.
func (g *CommandGuard) CheckCommand(name string) error {
	g.mu.RLock()
	restricted := g.subscriberMode
	g.mu.RUnlock()

	if !restricted {
		return nil
	}
	if _, ok := allowedCommands[strings.ToLower(name)]; ok {
		return nil
	}
	return fmt.Errorf("%w: can't execute '%s': only (P|S)SUBSCRIBE / (P|S)UNSUBSCRIBE / PING / QUIT / RESET are allowed in this context",
		ErrSubscriberMode, strings.ToLower(name))
}
