package ws

import (
	"log"
	"strconv"
	"sync"

	"chat-relay/internal/models"
	"chat-relay/internal/observability"
)

// Hub owns the connection set and room membership. A single mutex
// serializes every mutation and every broadcast enqueue, which keeps
// per-room delivery order stable: two messages sent to the same room
// are queued to every member in the same order.
//
// Lock ordering: hub.mu may be held while taking presence.mu (inside
// Presence methods); never the other way around.
type Hub struct {
	mu       sync.Mutex
	clients  map[string]*Client
	rooms    *roomSet
	presence *Presence
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		rooms:    newRoomSet(),
		presence: NewPresence(),
	}
}

// Presence exposes the presence registry.
func (h *Hub) Presence() *Presence {
	return h.presence
}

// Register adds an accepted connection to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

// Disconnect removes the connection from the hub, drops all of its room
// memberships and announces the user offline. Once it returns, later
// join/leave/send calls for the same connection are ignored, so a
// dangling reference to the client can no longer receive broadcasts.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	h.rooms.leaveAll(c.ID)
	close(c.send)
	h.mu.Unlock()

	if evt, ok := h.presence.Unregister(c.ID); ok {
		h.broadcastAllEvent(models.EventUserStatus, evt)
	}
}

// RegisterUser binds the connection to a user and announces it online.
// The binding is set once; re-registering an already bound connection
// only refreshes the presence entry.
func (h *Hub) RegisterUser(c *Client, userID string) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	if c.userID == "" {
		c.userID = userID
	}
	h.mu.Unlock()

	evt := h.presence.Register(userID, c.ID)

	// The connection may have dropped between the unlock above and the
	// presence write; reap the entry rather than leave a ghost online.
	h.mu.Lock()
	_, connected := h.clients[c.ID]
	h.mu.Unlock()
	if !connected {
		h.presence.Unregister(c.ID)
		return
	}

	h.broadcastAllEvent(models.EventUserStatus, evt)
}

// JoinRoom subscribes the connection to a room. Idempotent; ignored for
// disconnected clients.
func (h *Hub) JoinRoom(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	h.rooms.join(c.ID, roomID)
}

// LeaveRoom unsubscribes the connection from a room. No-op when absent.
func (h *Hub) LeaveRoom(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	h.rooms.leave(c.ID, roomID)
}

// BroadcastToRoom queues payload to every room member except the
// originating connection.
func (h *Hub) BroadcastToRoom(roomID, excludeConnID string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, connID := range h.rooms.membersExcluding(roomID, excludeConnID) {
		h.enqueueLocked(connID, payload)
	}
}

// BroadcastAll queues payload to every connection on this process.
func (h *Hub) BroadcastAll(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		h.enqueueLocked(c.ID, payload)
	}
}

// BroadcastChatMessage fans a freshly persisted message out to every
// connection in the chat's room, the sender's included: the REST
// response confirms persistence, the room event confirms delivery.
func (h *Hub) BroadcastChatMessage(chatID int, msg models.Message) {
	payload, err := marshalEvent(models.EventMessage, msg)
	if err != nil {
		log.Printf("marshal chat message event: %v", err)
		return
	}
	roomID := strconv.Itoa(chatID)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, connID := range h.rooms.members(roomID) {
		h.enqueueLocked(connID, payload)
	}
}

// SendToUser queues payload to the user's live connection, if any.
func (h *Hub) SendToUser(userID string, payload []byte) bool {
	connID, ok := h.presence.Lookup(userID)
	if !ok {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[connID]; !ok {
		return false
	}
	h.enqueueLocked(connID, payload)
	return true
}

// RoomSize reports the number of connections joined to a room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms.rooms[roomID])
}

// ClientCount reports the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// enqueueLocked queues payload for one connection. Callers hold h.mu,
// which guarantees the client is still registered and its send channel
// open. Slow consumers lose the event rather than stall the room.
func (h *Hub) enqueueLocked(connID string, payload []byte) {
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	select {
	case c.send <- payload:
	default:
		observability.IncWSEvent("relay", "send_queue_full")
		log.Printf("dropping event for slow consumer conn=%s", connID)
	}
}

func (h *Hub) broadcastAllEvent(eventType string, payload any) {
	raw, err := marshalEvent(eventType, payload)
	if err != nil {
		log.Printf("marshal %s event: %v", eventType, err)
		return
	}
	h.BroadcastAll(raw)
}
