package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/picksy/syncd/internal/validation"
)

// PhotoConfigVersion is the schema version written by this build
const PhotoConfigVersion = 1

// FilterType names one CSS-style image filter
type FilterType string

const (
	FilterBrightness FilterType = "brightness"
	FilterSaturate   FilterType = "saturate"
	FilterBlur       FilterType = "blur"
	FilterContrast   FilterType = "contrast"
	FilterSepia      FilterType = "sepia"
	FilterGrayscale  FilterType = "grayscale"
	FilterHueRotate  FilterType = "hue-rotate"
	FilterInvert     FilterType = "invert"
	FilterOpacity    FilterType = "opacity"
)

// Filter is one entry of the editing filter chain
type Filter struct {
	Type  FilterType `json:"type" validate:"required,oneof=brightness saturate blur contrast sepia grayscale hue-rotate invert opacity"`
	Value float64    `json:"value"`
}

// Transform holds the geometric edits of a photo
type Transform struct {
	Rotate *float64 `json:"rotate,omitempty"`
	Scale  *float64 `json:"scale,omitempty" validate:"omitempty,gt=0"`
	SkewX  *float64 `json:"skewX,omitempty"`
	SkewY  *float64 `json:"skewY,omitempty"`
}

// PhotoConfig is the per-photo editing settings document.
//
// Older clients stored it as a JSON-encoded string; UnmarshalJSON accepts both
// forms, MarshalJSON always writes the object form.
type PhotoConfig struct {
	Version   int        `json:"version" validate:"gte=1"`
	Filters   []Filter   `json:"filters,omitempty" validate:"dive"`
	Transform *Transform `json:"transform,omitempty"`
}

// UnmarshalJSON decodes either an object or a legacy JSON string
func (c *PhotoConfig) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var raw string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		if strings.TrimSpace(raw) == "" {
			*c = PhotoConfig{Version: PhotoConfigVersion}
			return nil
		}
		trimmed = []byte(raw)
	}

	type plain PhotoConfig
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPhotoConfig, err)
	}
	*c = PhotoConfig(p)
	if c.Version == 0 {
		c.Version = PhotoConfigVersion
	}
	return nil
}

// Validate checks the filter types and transform ranges
func (c *PhotoConfig) Validate() error {
	if c == nil {
		return nil
	}
	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPhotoConfig, err)
	}
	return nil
}
