package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picksy/syncd/internal/store/storetest"
)

func sizedFile(t *testing.T, name string, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
	return path
}

func TestShouldAdmitBoundary(t *testing.T) {
	assert.True(t, ShouldAdmit(0, DefaultMaxAttachmentSize))
	assert.True(t, ShouldAdmit(2_097_152, DefaultMaxAttachmentSize))
	assert.False(t, ShouldAdmit(2_097_153, DefaultMaxAttachmentSize))
	assert.False(t, ShouldAdmit(-1, DefaultMaxAttachmentSize))
}

func TestAdmitAtLimit(t *testing.T) {
	st := storetest.New()
	a := NewAdmission(st, 0)

	token := a.Admit(context.Background(), sizedFile(t, "exact.JPG", 2_097_152))
	require.NotNil(t, token)
	assert.Equal(t, int64(2_097_152), token.Len)
	assert.Equal(t, "exact.JPG", token.Metadata["filename"])
	assert.Equal(t, "image/jpeg", token.Metadata["mime"])

	data, err := st.FetchAttachment(context.Background(), *token)
	require.NoError(t, err)
	assert.Len(t, data, 2_097_152)
}

func TestAdmitOverLimit(t *testing.T) {
	a := NewAdmission(storetest.New(), 0)
	assert.Nil(t, a.Admit(context.Background(), sizedFile(t, "big.png", 2_097_153)))
}

func TestAdmitDegradesOnErrors(t *testing.T) {
	st := storetest.New()
	a := NewAdmission(st, 0)

	assert.Nil(t, a.Admit(context.Background(), filepath.Join(t.TempDir(), "missing.jpg")))
	assert.Nil(t, a.Admit(context.Background(), t.TempDir()))

	st.FailAttachments(errors.New("disk full"))
	assert.Nil(t, a.Admit(context.Background(), sizedFile(t, "small.jpg", 10)))
}

func TestMimeFromPath(t *testing.T) {
	tests := map[string]string{
		"/a/b.jpg":   "image/jpeg",
		"/a/b.JPEG":  "image/jpeg",
		"b.heic":     "image/heic",
		"b.HEIF":     "image/heif",
		"b.tif":      "image/tiff",
		"b.webp":     "image/webp",
		"b.bmp":      "image/bmp",
		"noext":      "application/octet-stream",
		"b.unknownx": "application/octet-stream",
	}
	for path, want := range tests {
		assert.Equal(t, want, MimeFromPath(path), path)
	}
}
