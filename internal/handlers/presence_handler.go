package handlers

import (
	"net/http"

	"github.com/picksy/syncd/internal/library"
)

// PresenceHandler exposes the presence graph
type PresenceHandler struct {
	service *library.Service
}

// NewPresenceHandler creates a new PresenceHandler
func NewPresenceHandler(service *library.Service) *PresenceHandler {
	return &PresenceHandler{service: service}
}

// Get returns the current presence graph
// @Summary Presence graph
// @Tags presence
// @Produce json
// @Success 200 {object} models.PresenceGraph
// @Security ApiKeyAuth
// @Router /api/presence [get]
func (h *PresenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.service.CurrentPresence())
}

// Emit pushes the current graph to event subscribers and returns it
// @Summary Emit presence
// @Tags presence
// @Produce json
// @Success 200 {object} models.PresenceGraph
// @Security ApiKeyAuth
// @Router /api/presence/emit [post]
func (h *PresenceHandler) Emit(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.service.EmitPresence())
}
