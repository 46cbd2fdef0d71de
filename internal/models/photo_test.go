package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPhoto(t *testing.T) {
	t.Run("creates photo with valid parameters", func(t *testing.T) {
		photo, err := NewPhoto("abc123", "/Users/me/Pictures/IMG_0001.jpg", "data:image/jpeg;base64,AAAA")

		require.NoError(t, err)
		assert.Equal(t, "abc123", photo.ID)
		assert.Equal(t, "/Users/me/Pictures/IMG_0001.jpg", photo.ImagePath)
		assert.Equal(t, "IMG_0001.jpg", photo.Filename)
		assert.Nil(t, photo.Config)
		assert.False(t, photo.Favorite)
	})

	t.Run("rejects empty id", func(t *testing.T) {
		_, err := NewPhoto("  ", "/tmp/a.jpg", "")
		assert.ErrorIs(t, err, ErrEmptyPhotoID)
	})

	t.Run("rejects empty image path", func(t *testing.T) {
		_, err := NewPhoto("id", "", "")
		assert.ErrorIs(t, err, ErrEmptyImagePath)
	})
}

func TestFilenameFromPath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{"simple", "/a/b/photo.png", "photo.png"},
		{"unsafe characters", "/a/b/we?ird:name.jpg", "we_ird_name.jpg"},
		{"root", "/", "/"},
		{"relative", "photo.heic", "photo.heic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FilenameFromPath(tt.path))
		})
	}
}

func TestPhotoConfigDecoding(t *testing.T) {
	t.Run("object form", func(t *testing.T) {
		var cfg PhotoConfig
		err := json.Unmarshal([]byte(`{"version":1,"filters":[{"type":"sepia","value":0.4}],"transform":{"rotate":90}}`), &cfg)

		require.NoError(t, err)
		assert.Equal(t, 1, cfg.Version)
		require.Len(t, cfg.Filters, 1)
		assert.Equal(t, FilterSepia, cfg.Filters[0].Type)
		require.NotNil(t, cfg.Transform)
		require.NotNil(t, cfg.Transform.Rotate)
		assert.InDelta(t, 90.0, *cfg.Transform.Rotate, 0.0001)
	})

	t.Run("legacy string form", func(t *testing.T) {
		var cfg PhotoConfig
		err := json.Unmarshal([]byte(`"{\"filters\":[{\"type\":\"blur\",\"value\":2}]}"`), &cfg)

		require.NoError(t, err)
		assert.Equal(t, PhotoConfigVersion, cfg.Version)
		require.Len(t, cfg.Filters, 1)
		assert.Equal(t, FilterBlur, cfg.Filters[0].Type)
	})

	t.Run("empty legacy string", func(t *testing.T) {
		var cfg PhotoConfig
		require.NoError(t, json.Unmarshal([]byte(`""`), &cfg))
		assert.Equal(t, PhotoConfig{Version: PhotoConfigVersion}, cfg)
	})

	t.Run("garbage string", func(t *testing.T) {
		var cfg PhotoConfig
		err := json.Unmarshal([]byte(`"not json"`), &cfg)
		assert.ErrorIs(t, err, ErrInvalidPhotoConfig)
	})

	t.Run("always encodes as object", func(t *testing.T) {
		var photo Photo
		require.NoError(t, json.Unmarshal([]byte(`{"id":"x","image_path":"/x.jpg","config":"{\"version\":1}"}`), &photo))

		out, err := json.Marshal(photo)
		require.NoError(t, err)
		assert.Contains(t, string(out), `"config":{"version":1}`)
	})
}

func TestPhotoConfigValidate(t *testing.T) {
	t.Run("accepts known filters", func(t *testing.T) {
		cfg := &PhotoConfig{Version: 1, Filters: []Filter{{Type: FilterHueRotate, Value: 30}}}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("rejects unknown filter", func(t *testing.T) {
		cfg := &PhotoConfig{Version: 1, Filters: []Filter{{Type: "posterize", Value: 1}}}
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidPhotoConfig)
	})

	t.Run("rejects non-positive scale", func(t *testing.T) {
		zero := 0.0
		cfg := &PhotoConfig{Version: 1, Transform: &Transform{Scale: &zero}}
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidPhotoConfig)
	})

	t.Run("nil config is valid", func(t *testing.T) {
		var cfg *PhotoConfig
		assert.NoError(t, cfg.Validate())
	})
}

func TestUpsertFields(t *testing.T) {
	t.Run("omits unset user edits", func(t *testing.T) {
		fields := UpsertFields(Photo{ID: "a", ImagePath: "/p/a.jpg", Thumbnail: "t"}, "peer-1")

		assert.Equal(t, "a", fields["_id"])
		assert.Equal(t, "a.jpg", fields["filename"])
		assert.Equal(t, "/p/a.jpg", fields["path"])
		assert.Equal(t, "peer-1", fields["author_peer_id"])
		assert.NotContains(t, fields, "favorite")
		assert.NotContains(t, fields, "config")
		assert.NotContains(t, fields, "stack_id")
		assert.NotContains(t, fields, "full_res")
	})

	t.Run("includes set fields", func(t *testing.T) {
		stack := "s1"
		fields := UpsertFields(Photo{
			ID:             "a",
			ImagePath:      "/p/a.jpg",
			Filename:       "custom.jpg",
			Favorite:       true,
			StackID:        &stack,
			IsStackPrimary: true,
			FullRes:        &AttachmentToken{ID: "att", Len: 10},
		}, "peer-1")

		assert.Equal(t, "custom.jpg", fields["filename"])
		assert.Equal(t, true, fields["favorite"])
		assert.Equal(t, "s1", fields["stack_id"])
		assert.Equal(t, true, fields["is_stack_primary"])
		assert.NotNil(t, fields["full_res"])
	})
}
