package library

import (
	"github.com/picksy/syncd/internal/models"
	"github.com/picksy/syncd/internal/observability"
	"github.com/picksy/syncd/internal/store"
)

// ProjectPhoto builds the outward payload for one document
func ProjectPhoto(doc models.PhotoDocument, info models.SyncInfo) models.PhotoPayload {
	var author *string
	if doc.AuthorPeerID != "" {
		a := doc.AuthorPeerID
		author = &a
	}
	return models.PhotoPayload{
		ID:              doc.ID,
		Filename:        doc.Filename,
		ImagePath:       doc.Path,
		Thumbnail:       doc.Thumbnail,
		FullRes:         doc.FullRes,
		Config:          doc.Config,
		Favorite:        doc.Favorite,
		StackID:         doc.StackID,
		IsStackPrimary:  doc.IsStackPrimary,
		Metadata:        doc.Metadata,
		AuthorPeerID:    author,
		ContentCommitID: doc.ContentCommitID,
		SyncStatus:      ComputeSyncStatus(doc, info),
	}
}

// ProjectPhotos decodes each document and projects it. Documents that do not
// decode as photos are skipped.
func ProjectPhotos(docs []store.Document, info models.SyncInfo) []models.PhotoPayload {
	out := make([]models.PhotoPayload, 0, len(docs))
	for _, d := range docs {
		var doc models.PhotoDocument
		if err := d.Decode(&doc); err != nil {
			observability.WithField("component", "library").WithError(err).
				Warnf("skipping undecodable photo document %q", d.ID())
			continue
		}
		if doc.ID == "" {
			continue
		}
		out = append(out, ProjectPhoto(doc, info))
	}
	return out
}
