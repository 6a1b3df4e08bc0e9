package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-relay/internal/auth"
	"chat-relay/internal/models"
	"chat-relay/internal/observability"
)

// RelayHandler upgrades websocket connections and drives the relay
// event protocol for each of them.
type RelayHandler struct {
	hub     *Hub
	authCfg *auth.Config
}

// NewRelayHandler constructs a RelayHandler.
func NewRelayHandler(hub *Hub, authCfg *auth.Config) *RelayHandler {
	return &RelayHandler{hub: hub, authCfg: authCfg}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and starts its pumps. A connection is
// anonymous until it emits a register event; a token supplied at the
// handshake only labels the observability identity.
func (h *RelayHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-relay/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	tokenUser := ""
	if token := bearerToken(c); token != "" {
		if claims, err := auth.ValidateToken(h.authCfg, token); err == nil {
			tokenUser = claims.Username
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		UserID:      tokenUser,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info)
	h.hub.Register(client)

	observability.IncWSActive("relay")
	observability.IncWSEvent("relay", "ws_connect")
	publishConnEvent(ctx, "ws_connect", client.Info, "")

	go client.writePump()
	go client.readPump(h.dispatch, func(c *Client, reason string) {
		h.disconnect(ctx, c, reason)
	})
}

func (h *RelayHandler) disconnect(ctx context.Context, c *Client, reason string) {
	h.hub.Disconnect(c)
	observability.DecWSActive("relay")
	observability.IncWSEvent("relay", "ws_disconnect")
	publishConnEvent(ctx, "ws_disconnect", c.Info, reason)
}

// dispatch routes one inbound frame. Every relay event is
// fire-and-forget: malformed payloads are counted and dropped, nothing
// is acknowledged back to the sender on this channel.
func (h *RelayHandler) dispatch(c *Client, raw []byte) {
	var env models.RelayEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		observability.IncWSEvent("relay", "malformed")
		return
	}

	switch env.Type {
	case models.EventRegisterUser, models.EventRegister:
		var payload models.RegisterPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil || payload.UserID == "" {
			observability.IncWSEvent("relay", "malformed")
			return
		}
		h.hub.RegisterUser(c, payload.UserID)
		observability.IncWSEvent("relay", "register")

	case models.EventJoinRoom:
		roomID := roomIDFromPayload(env.Payload)
		if roomID == "" {
			observability.IncWSEvent("relay", "malformed")
			return
		}
		h.hub.JoinRoom(c, roomID)
		observability.IncWSEvent("relay", "join_room")

	case models.EventLeaveRoom:
		roomID := roomIDFromPayload(env.Payload)
		if roomID == "" {
			observability.IncWSEvent("relay", "malformed")
			return
		}
		h.hub.LeaveRoom(c, roomID)
		observability.IncWSEvent("relay", "leave_room")

	case models.EventSendMessage:
		var payload models.SendMessagePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil || payload.ChatID == "" {
			observability.IncWSEvent("relay", "malformed")
			return
		}
		// The payload is relayed verbatim; the sender already holds the
		// message and learns about persistence from the REST response.
		out, err := json.Marshal(models.RelayEnvelope{Type: models.EventMessage, Payload: env.Payload})
		if err != nil {
			return
		}
		h.hub.BroadcastToRoom(payload.ChatID, c.ID, out)
		observability.IncWSEvent("relay", "send_message")
		observability.IncMessagesRelayed()

	case models.EventTyping, models.EventStopTyping:
		var payload models.TypingPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil || payload.ChatID == "" {
			observability.IncWSEvent("relay", "malformed")
			return
		}
		out, err := marshalEvent(env.Type, models.TypingPayload{
			UserID:   payload.UserID,
			Username: payload.Username,
		})
		if err != nil {
			return
		}
		h.hub.BroadcastToRoom(payload.ChatID, c.ID, out)
		observability.IncWSEvent("relay", env.Type)

	default:
		observability.IncWSEvent("relay", "unknown")
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	return c.Query("token")
}

func publishConnEvent(ctx context.Context, event string, info ConnInfo, reason string) {
	_ = observability.PublishEvent(ctx, "ws_events.relay", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Service:   "chat-relay",
		EmittedAt: time.Now().UTC(),
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
