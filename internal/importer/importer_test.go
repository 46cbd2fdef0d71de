package importer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picksy/syncd/internal/models"
)

type recordingEnqueuer struct {
	mu      sync.Mutex
	batches [][]models.Photo
	err     error
}

func (r *recordingEnqueuer) EnqueueUpsert(ctx context.Context, photos []models.Photo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, photos)
	return nil
}

func (r *recordingEnqueuer) sizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.batches))
	for i, b := range r.batches {
		out[i] = len(b)
	}
	return out
}

func solidImage(w, h int, c color.Color) *image.NRGBA {
	img := imaging.New(w, h, c)
	// a gradient stripe so resampling has something to do
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.NRGBA{R: uint8(x), G: 0, B: 0, A: 255})
	}
	return img
}

func writeImage(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(img, path))
	return path
}

func TestContentIDIsStable(t *testing.T) {
	dir := t.TempDir()
	red := solidImage(64, 48, color.NRGBA{R: 200, A: 255})
	blue := solidImage(64, 48, color.NRGBA{B: 200, A: 255})

	a := writeImage(t, dir, "a.png", red)
	b := writeImage(t, dir, "copy-of-a.png", red)
	c := writeImage(t, dir, "c.png", blue)

	im := New(&recordingEnqueuer{}, Config{})
	pa, err := im.ProcessFile(a)
	require.NoError(t, err)
	pb, err := im.ProcessFile(b)
	require.NoError(t, err)
	pc, err := im.ProcessFile(c)
	require.NoError(t, err)

	assert.Len(t, pa.ID, 64)
	assert.Equal(t, pa.ID, pb.ID, "same pixels, different file name")
	assert.NotEqual(t, pa.ID, pc.ID)
	assert.Equal(t, ContentID(red), pa.ID)
}

func TestProcessFileBuildsThumbnail(t *testing.T) {
	dir := t.TempDir()
	path := writeImage(t, dir, "wide.jpg", solidImage(900, 300, color.NRGBA{G: 180, A: 255}))

	photo, err := New(&recordingEnqueuer{}, Config{}).ProcessFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, photo.ImagePath)
	assert.Equal(t, "wide.jpg", photo.Filename)
	assert.Nil(t, photo.Metadata)

	const prefix = "data:image/jpeg;base64,"
	require.True(t, strings.HasPrefix(photo.Thumbnail, prefix))
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(photo.Thumbnail, prefix))
	require.NoError(t, err)
	thumb, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 300, thumb.Bounds().Dx())
	assert.Equal(t, 100, thumb.Bounds().Dy())
}

func TestThumbnailKeepsSmallImages(t *testing.T) {
	uri, err := Thumbnail(solidImage(40, 20, color.White), 300, 6)
	require.NoError(t, err)
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/jpeg;base64,"))
	require.NoError(t, err)
	thumb, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	// orientation 6 rotates a landscape image to portrait
	assert.Equal(t, 20, thumb.Bounds().Dx())
	assert.Equal(t, 40, thumb.Bounds().Dy())
}

func TestImportFolderChunksAndSkips(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	for i := 0; i < 30; i++ {
		target := dir
		if i%2 == 0 {
			target = nested
		}
		writeImage(t, target, fmt.Sprintf("img-%02d.png", i), solidImage(16, 16, color.NRGBA{R: uint8(i * 8), G: 10, A: 255}))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("not an image"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644))

	enq := &recordingEnqueuer{}
	result, err := New(enq, Config{}).ImportFolder(context.Background(), dir)
	require.NoError(t, err)

	assert.Len(t, result.Photos, 30)
	assert.Equal(t, []string{filepath.Join(dir, "broken.jpg")}, result.Skipped)
	assert.Equal(t, 2, result.Batches)
	assert.Equal(t, []int{25, 5}, enq.sizes())
}

func TestImportFolderMissingDir(t *testing.T) {
	_, err := New(&recordingEnqueuer{}, Config{}).ImportFolder(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestImportPathsPropagatesEnqueueErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeImage(t, dir, "a.png", solidImage(8, 8, color.Black))

	enq := &recordingEnqueuer{err: fmt.Errorf("pipeline closed")}
	_, err := New(enq, Config{EnqueueBatchSize: 1}).ImportPaths(context.Background(), []string{path})
	assert.ErrorContains(t, err, "pipeline closed")
}

func TestReadMetadataWithoutEXIF(t *testing.T) {
	path := writeImage(t, t.TempDir(), "plain.png", solidImage(8, 8, color.Black))
	meta, err := ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, &models.ImageMetadata{}, meta)

	_, err = ReadMetadata(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
}

func TestIsImportable(t *testing.T) {
	assert.True(t, IsImportable("a.JPG"))
	assert.True(t, IsImportable("/x/y.heic"))
	assert.True(t, IsImportable("b.tiff"))
	assert.False(t, IsImportable("b.gif"))
	assert.False(t, IsImportable("README"))
}
