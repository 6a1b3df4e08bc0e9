package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-relay/internal/telemetry"
	"chat-relay/internal/ws"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, hub *ws.Hub, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/presence", func(c *gin.Context) {
		snapshot := hub.Presence().Snapshot()
		out := make(map[string]gin.H, len(snapshot))
		for userID, entry := range snapshot {
			out[userID] = gin.H{
				"conn_id": entry.ConnID,
				"status":  entry.Status,
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"connections": hub.ClientCount(),
			"presence":    out,
		})
	})

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
