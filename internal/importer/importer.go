// Package importer turns image files into library photos and hands them to
// the upsert pipeline
package importer

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/picksy/syncd/internal/models"
	"github.com/picksy/syncd/internal/observability"
)

// Import defaults
const (
	DefaultEnqueueBatchSize = 25
	DefaultThumbnailSize    = 300
)

var folderExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".heic": true,
	".webp": true,
	".tiff": true,
}

// IsImportable reports whether a folder scan picks up path
func IsImportable(path string) bool {
	return folderExtensions[strings.ToLower(filepath.Ext(path))]
}

// Enqueuer accepts photos for writing
type Enqueuer interface {
	EnqueueUpsert(ctx context.Context, photos []models.Photo) error
}

// Config tunes an Importer
type Config struct {
	EnqueueBatchSize int
	ThumbnailSize    int
}

// Result summarizes one import
type Result struct {
	Photos   []models.Photo `json:"photos"`
	Skipped  []string       `json:"skipped"`
	Batches  int            `json:"batches"`
	Duration time.Duration  `json:"duration"`
}

// Importer processes files and enqueues them in fixed-size chunks
type Importer struct {
	enqueuer Enqueuer
	cfg      Config
	log      *observability.Logger
}

// New creates an importer feeding enqueuer
func New(enqueuer Enqueuer, cfg Config) *Importer {
	if cfg.EnqueueBatchSize <= 0 {
		cfg.EnqueueBatchSize = DefaultEnqueueBatchSize
	}
	if cfg.ThumbnailSize <= 0 {
		cfg.ThumbnailSize = DefaultThumbnailSize
	}
	return &Importer{
		enqueuer: enqueuer,
		cfg:      cfg,
		log:      observability.WithField("component", "importer"),
	}
}

// ProcessFile decodes one file into a photo with a content-derived id,
// a thumbnail and EXIF metadata
func (im *Importer) ProcessFile(path string) (*models.Photo, error) {
	img, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}

	info := readEXIF(path)
	thumb, err := Thumbnail(img, im.cfg.ThumbnailSize, info.orientation)
	if err != nil {
		return nil, err
	}

	photo, err := models.NewPhoto(ContentID(img), path, thumb)
	if err != nil {
		return nil, err
	}
	photo.Metadata = info.metadata
	return photo, nil
}

// ImportPaths processes each path and enqueues the results. Files that fail
// to decode are skipped.
func (im *Importer) ImportPaths(ctx context.Context, paths []string) (*Result, error) {
	start := time.Now()
	b := im.newBatcher()
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return b.result, err
		}
		if err := b.add(ctx, path); err != nil {
			return b.result, err
		}
	}
	if err := b.flush(ctx); err != nil {
		return b.result, err
	}
	b.result.Duration = time.Since(start)
	im.log.Infof("imported %d photos (%d skipped) in %s", len(b.result.Photos), len(b.result.Skipped), b.result.Duration)
	return b.result, nil
}

// ImportFolder walks dir recursively and imports every supported image
func (im *Importer) ImportFolder(ctx context.Context, dir string) (*Result, error) {
	start := time.Now()
	im.log.Infof("scanning folder %s", dir)

	b := im.newBatcher()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			im.log.WithError(err).Warnf("skipping %s", path)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !IsImportable(path) {
			return nil
		}
		return b.add(ctx, path)
	})
	if err != nil {
		return b.result, fmt.Errorf("import folder %s: %w", dir, err)
	}
	if err := b.flush(ctx); err != nil {
		return b.result, err
	}
	b.result.Duration = time.Since(start)
	im.log.Infof("imported %d photos from %s in %s", len(b.result.Photos), dir, b.result.Duration)
	return b.result, nil
}

type batcher struct {
	im      *Importer
	pending []models.Photo
	result  *Result
}

func (im *Importer) newBatcher() *batcher {
	return &batcher{im: im, result: &Result{Photos: []models.Photo{}, Skipped: []string{}}}
}

func (b *batcher) add(ctx context.Context, path string) error {
	photo, err := b.im.ProcessFile(path)
	if err != nil {
		b.im.log.WithError(err).Warnf("skipping %s", path)
		b.result.Skipped = append(b.result.Skipped, path)
		return nil
	}
	b.result.Photos = append(b.result.Photos, *photo)
	b.pending = append(b.pending, *photo)
	if len(b.pending) >= b.im.cfg.EnqueueBatchSize {
		return b.flush(ctx)
	}
	return nil
}

func (b *batcher) flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	batch := b.pending
	b.pending = nil
	b.im.log.Debugf("queueing batch of %d photos", len(batch))
	if err := b.im.enqueuer.EnqueueUpsert(ctx, batch); err != nil {
		return fmt.Errorf("enqueue photos: %w", err)
	}
	b.result.Batches++
	return nil
}
