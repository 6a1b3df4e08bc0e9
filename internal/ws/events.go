package ws

import (
	"encoding/json"

	"chat-relay/internal/models"
)

// marshalEvent frames an outbound relay event.
func marshalEvent(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(models.RelayEnvelope{Type: eventType, Payload: raw})
}

// roomIDFromPayload accepts a room id either as a bare JSON string or
// wrapped in a {"roomId": ...} object.
func roomIDFromPayload(payload json.RawMessage) string {
	var roomID string
	if err := json.Unmarshal(payload, &roomID); err == nil {
		return roomID
	}
	var wrapped models.RoomPayload
	if err := json.Unmarshal(payload, &wrapped); err == nil {
		return wrapped.RoomID
	}
	return ""
}
