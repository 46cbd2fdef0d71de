package models

// Collection and document names in the replicated store
const (
	PhotosCollection = "photos"
	StateCollection  = "app_state"
	StateDocumentID  = "root"
)

// PhotoDocument is the replicated representation of a photo in the photos
// collection. ContentCommitID is stamped by the store on each local write.
type PhotoDocument struct {
	ID              string           `json:"_id"`
	Filename        string           `json:"filename"`
	Path            string           `json:"path"`
	Thumbnail       string           `json:"base64"`
	FullRes         *AttachmentToken `json:"full_res,omitempty"`
	Config          *PhotoConfig     `json:"config,omitempty"`
	Favorite        bool             `json:"favorite"`
	StackID         *string          `json:"stack_id,omitempty"`
	IsStackPrimary  bool             `json:"is_stack_primary"`
	Metadata        *ImageMetadata   `json:"metadata,omitempty"`
	AuthorPeerID    string           `json:"author_peer_id,omitempty"`
	ContentCommitID *uint64          `json:"content_commit_id,omitempty"`
}

// UpsertFields returns the fields an import writes for p. Fields the user edits
// later (favorite, stack, config) are only included when set, so re-importing
// identical content never clears them under per-field merge.
func UpsertFields(p Photo, authorPeerID string) map[string]any {
	filename := p.Filename
	if filename == "" {
		filename = FilenameFromPath(p.ImagePath)
	}

	doc := map[string]any{
		"_id":            p.ID,
		"filename":       filename,
		"path":           p.ImagePath,
		"base64":         p.Thumbnail,
		"author_peer_id": authorPeerID,
	}
	if p.FullRes != nil {
		doc["full_res"] = p.FullRes
	}
	if p.Config != nil {
		doc["config"] = p.Config
	}
	if p.Favorite {
		doc["favorite"] = true
	}
	if p.StackID != nil {
		doc["stack_id"] = *p.StackID
	}
	if p.IsStackPrimary {
		doc["is_stack_primary"] = true
	}
	if p.Metadata != nil {
		doc["metadata"] = p.Metadata
	}
	return doc
}

// StoredState is the app_state document wrapping AppState
type StoredState struct {
	ID    string   `json:"_id"`
	State AppState `json:"state"`
}

// SyncStatus is the replication state of one photo document as seen locally
type SyncStatus string

const (
	SyncStatusSynced       SyncStatus = "synced"
	SyncStatusPending      SyncStatus = "pending"
	SyncStatusDisconnected SyncStatus = "disconnected"
	SyncStatusUnknown      SyncStatus = "unknown"
)

// SyncInfo is the store-wide replication watermark
type SyncInfo struct {
	Connected               bool    `json:"connected"`
	SyncedUpToLocalCommitID *uint64 `json:"synced_up_to_local_commit_id,omitempty"`
}

// PhotoPayload is the outward projection of a PhotoDocument
type PhotoPayload struct {
	ID              string           `json:"id"`
	Filename        string           `json:"filename"`
	ImagePath       string           `json:"image_path"`
	Thumbnail       string           `json:"base64"`
	FullRes         *AttachmentToken `json:"full_res,omitempty"`
	Config          *PhotoConfig     `json:"config,omitempty"`
	Favorite        bool             `json:"favorite"`
	StackID         *string          `json:"stack_id,omitempty"`
	IsStackPrimary  bool             `json:"is_stack_primary"`
	Metadata        *ImageMetadata   `json:"metadata,omitempty"`
	AuthorPeerID    *string          `json:"author_peer_id"`
	ContentCommitID *uint64          `json:"content_commit_id,omitempty"`
	SyncStatus      SyncStatus       `json:"sync_status"`
}

// AttachmentToken references staged attachment bytes and is embeddable in a document
type AttachmentToken struct {
	ID       string            `json:"id"`
	Len      int64             `json:"len"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
