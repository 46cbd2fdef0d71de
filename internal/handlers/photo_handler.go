package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/picksy/syncd/internal/importer"
	"github.com/picksy/syncd/internal/library"
	"github.com/picksy/syncd/internal/models"
)

// PhotoHandler handles photo-related endpoints
type PhotoHandler struct {
	service  *library.Service
	importer *importer.Importer
}

// NewPhotoHandler creates a new PhotoHandler
func NewPhotoHandler(service *library.Service, im *importer.Importer) *PhotoHandler {
	return &PhotoHandler{service: service, importer: im}
}

// List returns every photo with its sync status
// @Summary List photos
// @Tags photos
// @Produce json
// @Success 200 {object} models.PhotoListResponse
// @Security ApiKeyAuth
// @Router /api/photos [get]
func (h *PhotoHandler) List(w http.ResponseWriter, r *http.Request) {
	photos, err := h.service.GetPhotos(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.PhotoListResponse{Photos: photos, TotalCount: len(photos)})
}

// GetByID returns one photo
// @Summary Get a photo
// @Tags photos
// @Produce json
// @Param id path string true "Photo ID"
// @Success 200 {object} models.PhotoPayload
// @Failure 404 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/photos/{id} [get]
func (h *PhotoHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	photo, err := h.service.GetPhoto(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, photo)
}

// Enqueue queues photos for upsert. The write happens asynchronously.
// @Summary Queue photos
// @Tags photos
// @Accept json
// @Param body body models.EnqueueRequest true "Photos"
// @Success 202 {object} models.EnqueueResponse
// @Failure 429 {object} models.ErrorResponse "Queue full"
// @Security ApiKeyAuth
// @Router /api/photos [post]
func (h *PhotoHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req models.EnqueueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Photos) == 0 {
		respondError(w, http.StatusBadRequest, "No photos provided.")
		return
	}
	if err := h.service.EnqueueUpsert(r.Context(), req.Photos); err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, models.EnqueueResponse{Queued: len(req.Photos)})
}

// Import processes files or a folder into photos and queues them
// @Summary Import photos from disk
// @Tags photos
// @Accept json
// @Produce json
// @Param body body models.ImportRequest true "Paths or folder"
// @Success 200 {object} models.ImportResponse
// @Security ApiKeyAuth
// @Router /api/photos/import [post]
func (h *PhotoHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req models.ImportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	folder := strings.TrimSpace(req.Folder)
	if (folder == "") == (len(req.Paths) == 0) {
		respondError(w, http.StatusBadRequest, "Provide either paths or folder.")
		return
	}

	var (
		result *importer.Result
		err    error
	)
	if folder != "" {
		result, err = h.importer.ImportFolder(r.Context(), folder)
	} else {
		result, err = h.importer.ImportPaths(r.Context(), req.Paths)
	}
	if errors.Is(err, fs.ErrNotExist) {
		respondError(w, http.StatusBadRequest, "Folder not found.")
		return
	}
	if err != nil {
		respondErr(w, r, err)
		return
	}

	ids := make([]string, len(result.Photos))
	for i, p := range result.Photos {
		ids[i] = p.ID
	}
	respondJSON(w, http.StatusOK, models.ImportResponse{
		Imported: len(result.Photos),
		Skipped:  result.Skipped,
		Batches:  result.Batches,
		IDs:      ids,
	})
}

// Delete removes one photo
// @Summary Delete a photo
// @Tags photos
// @Param id path string true "Photo ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/photos/{id} [delete]
func (h *PhotoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemovePhoto(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear removes every photo
// @Summary Clear the library
// @Tags photos
// @Success 204
// @Security ApiKeyAuth
// @Router /api/photos [delete]
func (h *PhotoHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearLibrary(r.Context()); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateConfig replaces the edit configuration
// @Summary Update photo config
// @Tags photos
// @Accept json
// @Param id path string true "Photo ID"
// @Param body body models.PhotoConfig true "Config"
// @Success 204
// @Failure 400 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/photos/{id}/config [put]
func (h *PhotoHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.PhotoConfig
	if !decodeJSON(w, r, &cfg) {
		return
	}
	if err := h.service.UpdatePhotoConfig(r.Context(), chi.URLParam(r, "id"), cfg); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateFavorite sets the favorite flag
// @Summary Update favorite flag
// @Tags photos
// @Accept json
// @Param id path string true "Photo ID"
// @Param body body models.FavoriteRequest true "Favorite"
// @Success 204
// @Security ApiKeyAuth
// @Router /api/photos/{id}/favorite [put]
func (h *PhotoHandler) UpdateFavorite(w http.ResponseWriter, r *http.Request) {
	var req models.FavoriteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.UpdatePhotoFavorite(r.Context(), chi.URLParam(r, "id"), req.Favorite); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateStack assigns the photo to a stack
// @Summary Update stack membership
// @Tags photos
// @Accept json
// @Param id path string true "Photo ID"
// @Param body body models.StackRequest true "Stack"
// @Success 204
// @Security ApiKeyAuth
// @Router /api/photos/{id}/stack [put]
func (h *PhotoHandler) UpdateStack(w http.ResponseWriter, r *http.Request) {
	var req models.StackRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.UpdatePhotoStack(r.Context(), chi.URLParam(r, "id"), req.StackID, req.IsStackPrimary); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Metadata reads EXIF data from the photo's file
// @Summary Photo metadata
// @Tags photos
// @Produce json
// @Param id path string true "Photo ID"
// @Success 200 {object} models.ImageMetadata
// @Failure 404 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/photos/{id}/metadata [get]
func (h *PhotoHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	photo, err := h.service.GetPhoto(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	meta, err := importer.ReadMetadata(photo.ImagePath)
	if errors.Is(err, fs.ErrNotExist) {
		respondError(w, http.StatusNotFound, "Photo file not found.")
		return
	}
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, meta)
}
