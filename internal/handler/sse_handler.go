package handler

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/pts_listener/internal/sse"
	"github.com/GTDGit/pts_listener/internal/utils"
)

// SSEHandler streams persisted events to dashboards over Server-Sent Events.
type SSEHandler struct {
	hub          *sse.Hub
	pingInterval time.Duration
}

// NewSSEHandler creates a new SSEHandler.
func NewSSEHandler(hub *sse.Hub) *SSEHandler {
	return &SSEHandler{hub: hub, pingInterval: 30 * time.Second}
}

// Stream handles GET /v1/events/stream?system=<n>
// Without a system parameter every system is streamed.
func (h *SSEHandler) Stream(c *gin.Context) {
	var system *uint8
	if raw := c.Query("system"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			utils.Error(c, 400, "INVALID_SYSTEM", "System must be a number between 0 and 255")
			return
		}
		sys := uint8(n)
		system = &sys
	}

	clientID := fmt.Sprintf("%s-%d", c.GetString("request_id"), time.Now().UnixNano())

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // Disable nginx buffering

	client := h.hub.Register(clientID, system)
	defer h.hub.Unregister(clientID)

	c.SSEvent("connected", gin.H{
		"clientId":  clientID,
		"message":   "SSE connection established",
		"timestamp": time.Now().Format(time.RFC3339),
	})
	c.Writer.Flush()

	log.Info().Str("client_id", clientID).Str("ip", c.ClientIP()).Msg("Event stream started")

	c.Stream(func(w io.Writer) bool {
		select {
		case data, ok := <-client.Events:
			if !ok {
				return false
			}
			c.SSEvent("event", string(data))
			return true
		case <-time.After(h.pingInterval):
			c.SSEvent("ping", gin.H{"timestamp": time.Now().Format(time.RFC3339)})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
