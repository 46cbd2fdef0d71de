package handlers

import (
	"io"
	"net/http"

	"github.com/picksy/syncd/internal/library"
	"github.com/picksy/syncd/internal/models"
)

// StateHandler exposes the application state and reducer
type StateHandler struct {
	service *library.Service
}

// NewStateHandler creates a new StateHandler
func NewStateHandler(service *library.Service) *StateHandler {
	return &StateHandler{service: service}
}

// Get returns the current state
// @Summary Get state
// @Tags state
// @Produce json
// @Success 200 {object} models.AppState
// @Security ApiKeyAuth
// @Router /api/state [get]
func (h *StateHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.service.GetState())
}

// Dispatch applies an action envelope such as
// {"type":"SetImageLibraryContent","images":[...]}
// @Summary Dispatch an action
// @Tags state
// @Accept json
// @Produce json
// @Success 200 {object} models.AppState
// @Failure 400 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/state/dispatch [post]
func (h *StateHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "Request body too large.")
		return
	}
	action, err := models.DecodeAction(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, err := h.service.Dispatch(r.Context(), action)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// Resync reloads the state from the store
// @Summary Resync state
// @Tags state
// @Produce json
// @Success 200 {object} models.AppState
// @Security ApiKeyAuth
// @Router /api/state/resync [post]
func (h *StateHandler) Resync(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.ResyncState(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}
