package library

import (
	"github.com/picksy/syncd/internal/models"
)

// ComputeSyncStatus classifies one document against the store watermark
func ComputeSyncStatus(doc models.PhotoDocument, info models.SyncInfo) models.SyncStatus {
	if !info.Connected {
		return models.SyncStatusDisconnected
	}
	if doc.ContentCommitID == nil || info.SyncedUpToLocalCommitID == nil {
		return models.SyncStatusUnknown
	}
	if *info.SyncedUpToLocalCommitID >= *doc.ContentCommitID {
		return models.SyncStatusSynced
	}
	return models.SyncStatusPending
}
