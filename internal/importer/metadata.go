package importer

import (
	"os"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"

	"github.com/picksy/syncd/internal/models"
)

func init() {
	exif.RegisterParsers(mknote.All...)
}

// exifInfo is what the importer reads from a file's EXIF block
type exifInfo struct {
	metadata    *models.ImageMetadata
	orientation int
}

// ReadMetadata extracts capture time, GPS position and camera from the file at
// path. Files without EXIF data yield empty metadata, not an error.
func ReadMetadata(path string) (*models.ImageMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info := decodeEXIF(f)
	if info.metadata == nil {
		return &models.ImageMetadata{}, nil
	}
	return info.metadata, nil
}

func readEXIF(path string) exifInfo {
	f, err := os.Open(path)
	if err != nil {
		return exifInfo{orientation: 1}
	}
	defer f.Close()
	return decodeEXIF(f)
}

func decodeEXIF(f *os.File) exifInfo {
	x, err := exif.Decode(f)
	if err != nil {
		return exifInfo{orientation: 1}
	}

	out := exifInfo{orientation: 1}
	meta := &models.ImageMetadata{}
	found := false

	for _, field := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTime} {
		if tag, err := x.Get(field); err == nil {
			if val, err := tag.StringVal(); err == nil && strings.TrimSpace(val) != "" {
				v := strings.TrimSpace(val)
				meta.DateTime = &v
				found = true
				break
			}
		}
	}

	if tag, err := x.Get(exif.Make); err == nil {
		if val, err := tag.StringVal(); err == nil && val != "" {
			v := strings.TrimSpace(val)
			meta.Make = &v
			found = true
		}
	}

	if tag, err := x.Get(exif.Model); err == nil {
		if val, err := tag.StringVal(); err == nil && val != "" {
			v := strings.TrimSpace(val)
			meta.Model = &v
			found = true
		}
	}

	// LatLong applies the N/S and E/W references
	if lat, lng, err := x.LatLong(); err == nil {
		meta.Latitude = &lat
		meta.Longitude = &lng
		found = true
	}

	if tag, err := x.Get(exif.Orientation); err == nil {
		if val, err := tag.Int(0); err == nil && val >= 1 && val <= 8 {
			out.orientation = val
		}
	}

	if found {
		out.metadata = meta
	}
	return out
}
