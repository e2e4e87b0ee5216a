package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/pts_listener/internal/database"
	"github.com/GTDGit/pts_listener/internal/utils"
)

var startTime = time.Now()

// SessionStatus exposes the database session lifecycle.
type SessionStatus interface {
	State() database.State
	LastActivity() time.Time
}

// HealthHandler provides health endpoint.
type HealthHandler struct {
	protocol  string
	session   SessionStatus
	directory StationDirectory
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(protocol string, session SessionStatus, directory StationDirectory) *HealthHandler {
	return &HealthHandler{protocol: protocol, session: session, directory: directory}
}

// GetHealth responds with listener and database session status.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	db := gin.H{"state": h.session.State().String()}
	if last := h.session.LastActivity(); !last.IsZero() {
		db["lastActivity"] = last.Format(time.RFC3339)
	}

	utils.Success(c, 200, "Service is healthy", gin.H{
		"status":   "healthy",
		"version":  "1.5.0",
		"protocol": h.protocol,
		"uptime":   int(time.Since(startTime).Seconds()),
		"database": db,
		"systems":  systemNumbers(h.directory),
	})
}
