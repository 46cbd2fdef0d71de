package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/picksy/syncd/internal/library"
	"github.com/picksy/syncd/internal/models"
	"github.com/picksy/syncd/internal/observability"
)

// maxBodyBytes bounds JSON request bodies; thumbnails travel inline
const maxBodyBytes = 64 << 20

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, models.ErrorResponse{Error: message})
}

// respondErr maps library and model errors to status codes
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		observability.WithContext(r.Context()).WithError(err).Errorf("%s %s failed", r.Method, r.URL.Path)
	}
	respondError(w, status, err.Error())
}

func statusFor(err error) int {
	var photoErr models.PhotoError
	switch {
	case errors.Is(err, models.ErrPhotoNotFound):
		return http.StatusNotFound
	case errors.Is(err, library.ErrPipelineFull):
		return http.StatusTooManyRequests
	case errors.Is(err, library.ErrPipelineClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &photoErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "Request body too large.")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body.")
		return false
	}
	return true
}
