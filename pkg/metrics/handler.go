package metrics

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"messages_sent_total":     GetMessagesSent(),
		"messages_received_total": GetMessagesReceived(),
		"send_failures_total":     GetSendFailures(),
		"reconnect_attempts":      GetReconnectAttempts(),
		"poll_ticks_total":        GetPollTicks(),
		"dropped_frames_total":    GetDroppedFrames(),
		"active_connections":      GetActiveConnections(),
	})
}
