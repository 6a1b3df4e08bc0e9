package models

import "encoding/json"

// Relay event names. Inbound names mirror what clients emit; outbound
// names are what clients subscribe to. "stop typing" contains a space
// for compatibility with existing clients.
const (
	EventRegisterUser = "register-user"
	EventRegister     = "register"
	EventJoinRoom     = "joinRoom"
	EventLeaveRoom    = "leaveRoom"
	EventSendMessage  = "sendMessage"
	EventTyping       = "typing"
	EventStopTyping   = "stop typing"

	EventMessage    = "message"
	EventUserStatus = "userStatus"
)

// Presence status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// RelayEnvelope frames every relay event in both directions.
type RelayEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RegisterPayload identifies the user behind a connection.
type RegisterPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// RoomPayload targets a single room. Clients may send the room id either
// as a bare JSON string or wrapped in an object.
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

// SendMessagePayload carries the routing fields of a relayed message.
// The full payload is re-broadcast verbatim; only ChatID is inspected.
type SendMessagePayload struct {
	ChatID string `json:"chatId"`
}

// TypingPayload accompanies typing and stop typing events.
type TypingPayload struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// UserStatusPayload announces a presence transition to every connection.
// LastSeen is set only on the transition to offline.
type UserStatusPayload struct {
	UserID   string `json:"userId"`
	Status   string `json:"status"`
	LastSeen int64  `json:"lastSeen,omitempty"`
}
