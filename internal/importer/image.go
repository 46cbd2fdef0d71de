package importer

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/jdeng/goheif"
	_ "golang.org/x/image/webp"
)

// contentIDSize is the fixed rendering hashed into a content id
const contentIDSize = 300

const thumbnailQuality = 80

// IsHEIC reports whether path names a HEIC/HEIF file
func IsHEIC(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".heic" || ext == ".heif"
}

// DecodeFile decodes the image at path
func DecodeFile(path string) (image.Image, error) {
	if IsHEIC(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		img, err := goheif.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode HEIC image: %w", err)
		}
		return img, nil
	}

	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// ContentID derives a stable id from pixel content: the SHA-256 of a 300x300
// Lanczos rendering as packed RGB. Identical pixels give identical ids
// regardless of file name or container.
func ContentID(img image.Image) string {
	rendered := imaging.Resize(img, contentIDSize, contentIDSize, imaging.Lanczos)

	rgb := make([]byte, 0, contentIDSize*contentIDSize*3)
	for i := 0; i < len(rendered.Pix); i += 4 {
		rgb = append(rgb, rendered.Pix[i], rendered.Pix[i+1], rendered.Pix[i+2])
	}
	sum := sha256.Sum256(rgb)
	return hex.EncodeToString(sum[:])
}

// Thumbnail renders img to fit within maxDim and returns it as a JPEG data URI
func Thumbnail(img image.Image, maxDim, orientation int) (string, error) {
	img = applyOrientation(img, orientation)

	bounds := img.Bounds()
	if bounds.Dx() > maxDim || bounds.Dy() > maxDim {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// applyOrientation corrects image orientation based on EXIF data
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		// Transpose
		return imaging.Rotate270(imaging.FlipH(img))
	case 6:
		return imaging.Rotate270(img)
	case 7:
		// Transverse
		return imaging.Rotate90(imaging.FlipH(img))
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
