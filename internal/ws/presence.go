package ws

import (
	"sync"
	"time"

	"chat-relay/internal/models"
)

// PresenceEntry records the live connection and status of one user.
type PresenceEntry struct {
	ConnID   string
	Status   string
	LastSeen time.Time
}

// Presence tracks which users are online and on which connection.
// State is process-local and rebuilt from register events after a
// restart. At most one connection per user: a re-register overwrites
// the previous entry (last writer wins) without closing the old
// connection.
type Presence struct {
	mu      sync.RWMutex
	entries map[string]PresenceEntry
	now     func() time.Time
}

// NewPresence creates an empty presence registry.
func NewPresence() *Presence {
	return &Presence{
		entries: make(map[string]PresenceEntry),
		now:     time.Now,
	}
}

// Register marks the user online on the given connection, overwriting
// any previous entry. It returns the status event to broadcast.
func (p *Presence) Register(userID, connID string) models.UserStatusPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[userID] = PresenceEntry{ConnID: connID, Status: models.StatusOnline}
	return models.UserStatusPayload{UserID: userID, Status: models.StatusOnline}
}

// Lookup returns the connection id of a user's live connection.
func (p *Presence) Lookup(userID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.entries[userID]
	if !ok || entry.Status != models.StatusOnline {
		return "", false
	}
	return entry.ConnID, true
}

// Unregister removes the entry owning connID, if any, and returns the
// offline status event to broadcast. The registry is keyed by user, so
// this is a reverse scan by connection id. A connection that was
// superseded by a re-register owns no entry and produces no event.
func (p *Presence) Unregister(connID string) (models.UserStatusPayload, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for userID, entry := range p.entries {
		if entry.ConnID != connID {
			continue
		}
		lastSeen := p.now()
		delete(p.entries, userID)
		return models.UserStatusPayload{
			UserID:   userID,
			Status:   models.StatusOffline,
			LastSeen: lastSeen.Unix(),
		}, true
	}
	return models.UserStatusPayload{}, false
}

// Snapshot copies the registry for the debug endpoint.
func (p *Presence) Snapshot() map[string]PresenceEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]PresenceEntry, len(p.entries))
	for userID, entry := range p.entries {
		out[userID] = entry
	}
	return out
}
