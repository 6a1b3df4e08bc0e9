package ws

import (
	"testing"
	"time"

	"chat-relay/internal/models"
)

func TestPresenceRegisterAndLookup(t *testing.T) {
	p := NewPresence()

	evt := p.Register("u1", "conn1")
	if evt.UserID != "u1" || evt.Status != models.StatusOnline {
		t.Fatalf("unexpected register event: %+v", evt)
	}

	connID, ok := p.Lookup("u1")
	if !ok || connID != "conn1" {
		t.Fatalf("expected conn1, got %q ok=%v", connID, ok)
	}

	if _, ok := p.Lookup("unknown"); ok {
		t.Fatalf("expected absent entry for unknown user")
	}
}

func TestPresenceLastWriterWins(t *testing.T) {
	p := NewPresence()
	p.Register("u1", "conn1")
	p.Register("u1", "conn2")

	connID, ok := p.Lookup("u1")
	if !ok || connID != "conn2" {
		t.Fatalf("expected conn2 after re-register, got %q ok=%v", connID, ok)
	}

	// The superseded connection no longer owns an entry, so its
	// disconnect must not knock the user offline.
	if _, ok := p.Unregister("conn1"); ok {
		t.Fatalf("expected no event for superseded connection")
	}
	if _, ok := p.Lookup("u1"); !ok {
		t.Fatalf("u1 should still be online on conn2")
	}
}

func TestPresenceUnregisterEmitsOffline(t *testing.T) {
	p := NewPresence()
	p.now = func() time.Time { return time.Unix(1700000000, 0) }
	p.Register("u1", "conn1")

	evt, ok := p.Unregister("conn1")
	if !ok {
		t.Fatalf("expected an offline event")
	}
	if evt.UserID != "u1" || evt.Status != models.StatusOffline || evt.LastSeen != 1700000000 {
		t.Fatalf("unexpected offline event: %+v", evt)
	}

	if _, ok := p.Lookup("u1"); ok {
		t.Fatalf("entry should be gone after unregister")
	}
}

func TestPresenceUnregisterUnknownConn(t *testing.T) {
	p := NewPresence()
	if _, ok := p.Unregister("ghost"); ok {
		t.Fatalf("expected no event for unknown connection")
	}
}

func TestPresenceSnapshotIsCopy(t *testing.T) {
	p := NewPresence()
	p.Register("u1", "conn1")

	snap := p.Snapshot()
	delete(snap, "u1")

	if _, ok := p.Lookup("u1"); !ok {
		t.Fatalf("mutating the snapshot must not touch the registry")
	}
}
