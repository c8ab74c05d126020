package health

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pawlink/pawlink-chat/internal/server"
	"github.com/pawlink/pawlink-chat/pkg/database"
)

type Handler struct {
	hub    *server.Hub
	broker *server.SSEBroker
}

func NewHandler(hub *server.Hub, broker *server.SSEBroker) *Handler {
	return &Handler{hub: hub, broker: broker}
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (h *Handler) Readyz(c *gin.Context) {
	if database.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": "database_not_initialized"})
		return
	}
	if err := database.DB.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": "database_ping_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "ready",
		"ws_clients":  h.hub.ClientCount(),
		"sse_streams": h.broker.StreamCount(),
	})
}
