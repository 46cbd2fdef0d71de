package models

import (
	"encoding/json"
	"fmt"
)

// AppState is the library-level configuration snapshot. Photo documents
// themselves live in the store's photos collection.
type AppState struct {
	Images []Photo `json:"images"`
}

// Clone returns a copy that shares no slice backing with s
func (s AppState) Clone() AppState {
	if s.Images == nil {
		return AppState{Images: []Photo{}}
	}
	images := make([]Photo, len(s.Images))
	copy(images, s.Images)
	return AppState{Images: images}
}

// Normalize fills empty photo ids with the image path. Legacy state written
// before ids were content-derived has no id at all.
func (s AppState) Normalize() AppState {
	out := s.Clone()
	for i := range out.Images {
		if out.Images[i].ID == "" {
			out.Images[i].ID = out.Images[i].ImagePath
		}
	}
	return out
}

// ActionType identifies a reducer action
type ActionType string

const (
	ActionSetImageLibraryContent   ActionType = "SetImageLibraryContent"
	ActionClearImageLibraryContent ActionType = "ClearImageLibraryContent"
)

// Action is a state transition request
type Action interface {
	Type() ActionType
}

// SetImageLibraryContent replaces the full image list
type SetImageLibraryContent struct {
	Images []Photo `json:"images"`
}

func (SetImageLibraryContent) Type() ActionType { return ActionSetImageLibraryContent }

// ClearImageLibraryContent empties the image list
type ClearImageLibraryContent struct{}

func (ClearImageLibraryContent) Type() ActionType { return ActionClearImageLibraryContent }

// actionEnvelope is the wire form {"type": "...", ...payload}
type actionEnvelope struct {
	Type   ActionType `json:"type"`
	Images []Photo    `json:"images,omitempty"`
}

// DecodeAction parses an action envelope
func DecodeAction(data []byte) (Action, error) {
	var env actionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}

	switch env.Type {
	case ActionSetImageLibraryContent:
		images := env.Images
		if images == nil {
			images = []Photo{}
		}
		return SetImageLibraryContent{Images: images}, nil
	case ActionClearImageLibraryContent:
		return ClearImageLibraryContent{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, env.Type)
	}
}

// EncodeAction writes an action in envelope form
func EncodeAction(a Action) ([]byte, error) {
	env := actionEnvelope{Type: a.Type()}
	if set, ok := a.(SetImageLibraryContent); ok {
		env.Images = set.Images
	}
	return json.Marshal(env)
}
