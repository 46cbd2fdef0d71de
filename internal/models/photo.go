package models

import (
	"path/filepath"
	"strings"
)

// Photo is a library entry as produced by an import and carried in AppState
type Photo struct {
	ID             string           `json:"id"`
	ImagePath      string           `json:"image_path"`
	Filename       string           `json:"filename"`
	Thumbnail      string           `json:"base64"`
	FullRes        *AttachmentToken `json:"full_res,omitempty"`
	Config         *PhotoConfig     `json:"config,omitempty"`
	Favorite       bool             `json:"favorite"`
	StackID        *string          `json:"stack_id,omitempty"`
	IsStackPrimary bool             `json:"is_stack_primary"`
	Metadata       *ImageMetadata   `json:"metadata,omitempty"`
}

// ImageMetadata is the subset of EXIF data kept on a photo
type ImageMetadata struct {
	DateTime  *string  `json:"datetime,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Make      *string  `json:"make,omitempty"`
	Model     *string  `json:"model,omitempty"`
}

// NewPhoto creates a Photo with validation and a filename derived from the path
func NewPhoto(id, imagePath, thumbnail string) (*Photo, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrEmptyPhotoID
	}
	if strings.TrimSpace(imagePath) == "" {
		return nil, ErrEmptyImagePath
	}

	return &Photo{
		ID:        id,
		ImagePath: imagePath,
		Filename:  FilenameFromPath(imagePath),
		Thumbnail: thumbnail,
	}, nil
}

// FilenameFromPath returns the sanitized last path element, or the path itself
// when it has no usable base name
func FilenameFromPath(path string) string {
	name := filepath.Base(path)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return path
	}
	return sanitizeFilename(name)
}

// sanitizeFilename removes characters that are unsafe in a display filename
func sanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"..", "",
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)

	return replacer.Replace(filename)
}

// Errors
type PhotoError struct {
	Message string
}

func (e PhotoError) Error() string {
	return e.Message
}

var (
	ErrEmptyPhotoID       = PhotoError{"photo id cannot be empty"}
	ErrEmptyImagePath     = PhotoError{"image path cannot be empty"}
	ErrPhotoNotFound      = PhotoError{"photo not found"}
	ErrInvalidPhotoConfig = PhotoError{"invalid photo config"}
	ErrUnknownAction      = PhotoError{"unknown action"}
)
