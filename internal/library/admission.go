package library

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/picksy/syncd/internal/models"
	"github.com/picksy/syncd/internal/observability"
	"github.com/picksy/syncd/internal/store"
)

// DefaultMaxAttachmentSize is the largest file staged as a full-resolution attachment
const DefaultMaxAttachmentSize int64 = 2 * 1024 * 1024

const defaultMimeType = "application/octet-stream"

var imageMimeTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"heic": "image/heic",
	"heif": "image/heif",
	"tiff": "image/tiff",
	"tif":  "image/tiff",
	"bmp":  "image/bmp",
}

// FilesystemError reports a file that could not be read or staged
type FilesystemError struct {
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem: %s: %v", e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// ShouldAdmit reports whether a file of size bytes fits under max
func ShouldAdmit(size, max int64) bool {
	return size >= 0 && size <= max
}

// MimeFromPath guesses a content type from the file extension
func MimeFromPath(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return defaultMimeType
	}
	if t, ok := imageMimeTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension("." + ext); t != "" {
		return t
	}
	return defaultMimeType
}

// Admission decides which originals are staged as attachments
type Admission struct {
	store   store.Store
	maxSize int64
	log     *observability.Logger
}

// NewAdmission creates a policy with the given size limit; zero uses the default
func NewAdmission(st store.Store, maxSize int64) *Admission {
	if maxSize <= 0 {
		maxSize = DefaultMaxAttachmentSize
	}
	return &Admission{
		store:   st,
		maxSize: maxSize,
		log:     observability.WithField("component", "admission"),
	}
}

// Admit stages the file at path when it is small enough. Any failure yields
// nil and the photo is stored without an attachment.
func (a *Admission) Admit(ctx context.Context, path string) *models.AttachmentToken {
	info, err := os.Stat(path)
	if err != nil {
		a.log.WithError(&FilesystemError{Path: path, Err: err}).Warn("attachment skipped")
		return nil
	}
	if info.IsDir() || !ShouldAdmit(info.Size(), a.maxSize) {
		return nil
	}

	metadata := map[string]string{
		"filename": models.FilenameFromPath(path),
		"mime":     MimeFromPath(path),
	}
	token, err := a.store.CreateAttachment(ctx, path, metadata)
	if err != nil {
		a.log.WithError(&FilesystemError{Path: path, Err: err}).Warn("attachment skipped")
		return nil
	}
	return token
}
