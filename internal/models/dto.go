package models

import "time"

// HealthResponse is returned by health check
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Connected bool      `json:"connected"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// EnqueueRequest is the body of POST /api/photos
type EnqueueRequest struct {
	Photos []Photo `json:"photos"`
}

// EnqueueResponse acknowledges photos accepted into the pipeline
type EnqueueResponse struct {
	Queued int `json:"queued"`
}

// ImportRequest names files or a folder to import. Exactly one is set.
type ImportRequest struct {
	Paths  []string `json:"paths,omitempty"`
	Folder string   `json:"folder,omitempty"`
}

// ImportResponse summarizes an import
type ImportResponse struct {
	Imported int      `json:"imported"`
	Skipped  []string `json:"skipped"`
	Batches  int      `json:"batches"`
	IDs      []string `json:"ids"`
}

// FavoriteRequest is the body of PUT /api/photos/{id}/favorite
type FavoriteRequest struct {
	Favorite bool `json:"favorite"`
}

// StackRequest is the body of PUT /api/photos/{id}/stack. A nil StackID
// removes the photo from its stack.
type StackRequest struct {
	StackID        *string `json:"stack_id"`
	IsStackPrimary bool    `json:"is_stack_primary"`
}

// PhotoListResponse is returned when listing photos
type PhotoListResponse struct {
	Photos     []PhotoPayload `json:"photos"`
	TotalCount int            `json:"totalCount"`
}
