package library

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/picksy/syncd/internal/models"
)

func samplePhotos(ids ...string) []models.Photo {
	out := make([]models.Photo, len(ids))
	for i, id := range ids {
		out[i] = models.Photo{ID: id, ImagePath: "/photos/" + id + ".jpg", Filename: id + ".jpg"}
	}
	return out
}

func TestReduceSetReplacesImages(t *testing.T) {
	start := models.AppState{Images: samplePhotos("a")}
	next := Reduce(start, models.SetImageLibraryContent{Images: samplePhotos("b", "c")})

	assert.Equal(t, []string{"b", "c"}, ids(next.Images))
	assert.Equal(t, []string{"a"}, ids(start.Images), "input state must not change")
}

func TestReduceClear(t *testing.T) {
	next := Reduce(models.AppState{Images: samplePhotos("a", "b")}, models.ClearImageLibraryContent{})
	assert.NotNil(t, next.Images)
	assert.Empty(t, next.Images)
}

func TestReduceDeterministic(t *testing.T) {
	actions := []models.Action{
		models.SetImageLibraryContent{Images: samplePhotos("a", "b")},
		models.ClearImageLibraryContent{},
		models.SetImageLibraryContent{Images: samplePhotos("c")},
		&models.SetImageLibraryContent{Images: samplePhotos("d", "e")},
	}

	run := func() models.AppState {
		s := models.AppState{Images: []models.Photo{}}
		for _, a := range actions {
			s = Reduce(s, a)
		}
		return s
	}
	assert.Equal(t, run(), run())
	assert.Equal(t, []string{"d", "e"}, ids(run().Images))
}

func TestReduceDoesNotAliasActionSlice(t *testing.T) {
	images := samplePhotos("a")
	next := Reduce(models.AppState{}, models.SetImageLibraryContent{Images: images})
	images[0].ID = "mutated"
	assert.Equal(t, "a", next.Images[0].ID)
}

type unknownAction struct{}

func (unknownAction) Type() models.ActionType { return "Unknown" }

func TestReduceUnknownActionKeepsState(t *testing.T) {
	start := models.AppState{Images: samplePhotos("a")}
	assert.Equal(t, start, Reduce(start, unknownAction{}))
}

func ids(photos []models.Photo) []string {
	out := make([]string, len(photos))
	for i, p := range photos {
		out[i] = p.ID
	}
	return out
}
