// Package library owns the photo library: application state, the upsert
// pipeline into the replicated store and the change bridge to clients.
package library

import (
	"github.com/picksy/syncd/internal/models"
)

// Reduce applies action to state and returns the next state. It never
// mutates its input and ignores unknown actions.
func Reduce(state models.AppState, action models.Action) models.AppState {
	switch a := action.(type) {
	case models.SetImageLibraryContent:
		images := make([]models.Photo, len(a.Images))
		copy(images, a.Images)
		return models.AppState{Images: images}
	case *models.SetImageLibraryContent:
		if a == nil {
			return state.Clone()
		}
		return Reduce(state, *a)
	case models.ClearImageLibraryContent, *models.ClearImageLibraryContent:
		return models.AppState{Images: []models.Photo{}}
	default:
		return state.Clone()
	}
}
