package handlers

import (
	"net/http"
	"time"

	"github.com/picksy/syncd/internal/models"
)

// SyncInfoSource reports the relay connection state
type SyncInfoSource interface {
	SyncInfo() models.SyncInfo
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	sync SyncInfoSource
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(sync SyncInfoSource) *HealthHandler {
	return &HealthHandler{sync: sync}
}

// HealthCheck returns the server health status
// @Summary Health check
// @Description Returns the current health status of the server and whether the relay is connected
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthResponse "Server is healthy"
// @Router /health [get]
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	}
	if h.sync != nil {
		response.Connected = h.sync.SyncInfo().Connected
	}
	respondJSON(w, http.StatusOK, response)
}
