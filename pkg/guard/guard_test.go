package guard

import (
	"errors"
	"strings"
	"testing"

	"github.com/conduit-mq/conduit-go/pkg/subscription"
)

func TestAllCommandsAllowedOutsideSubscriberMode(t *testing.T) {
	g := New()

	for _, cmd := range []string{"get", "set", "hgetall", "subscribe", "ping"} {
		if err := g.CheckCommand(cmd); err != nil {
			t.Errorf("CheckCommand(%q) = %v outside subscriber mode, want nil", cmd, err)
		}
	}
}

func TestSubscriberModeRejectsDisallowed(t *testing.T) {
	m := subscription.NewManager()
	g := New()
	m.OnChange(g.Update)

	m.AddExact("news")
	if !g.SubscriberMode() {
		t.Fatal("guard not in subscriber mode after subscribe")
	}

	err := g.CheckCommand("GET")
	if err == nil {
		t.Fatal("CheckCommand(GET) = nil in subscriber mode, want error")
	}
	if !errors.Is(err, ErrSubscriberMode) {
		t.Errorf("error does not wrap ErrSubscriberMode: %v", err)
	}
	if !strings.Contains(err.Error(), "'get'") {
		t.Errorf("error does not name the offending command: %v", err)
	}

	// Allowed commands still pass, case-insensitively
	for _, cmd := range []string{"subscribe", "UNSUBSCRIBE", "PSubscribe", "punsubscribe", "ssubscribe", "ping", "QUIT", "reset"} {
		if err := g.CheckCommand(cmd); err != nil {
			t.Errorf("CheckCommand(%q) = %v in subscriber mode, want nil", cmd, err)
		}
	}
}

func TestGuardReleasesWhenCountReachesZero(t *testing.T) {
	m := subscription.NewManager()
	g := New()
	m.OnChange(g.Update)

	m.AddExact("a")
	m.AddPattern("p*")
	if err := g.CheckCommand("set"); err == nil {
		t.Error("CheckCommand(set) = nil with active subscriptions, want error")
	}

	m.RemoveExact("a")
	if err := g.CheckCommand("set"); err == nil {
		t.Error("CheckCommand(set) = nil with a pattern still active, want error")
	}

	m.RemovePattern("p*")
	if err := g.CheckCommand("set"); err != nil {
		t.Errorf("CheckCommand(set) = %v after all subscriptions removed, want nil", err)
	}
}
