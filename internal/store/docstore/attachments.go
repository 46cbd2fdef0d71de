package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/picksy/syncd/internal/store"
)

// ErrAttachmentNotFound is returned for unknown attachment tokens
var ErrAttachmentNotFound = errors.New("attachment not found")

const attachmentPrefix = "attachment:"

func openBlobs(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = true

	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open attachment store: %w", err)
	}
	return db, nil
}

// CreateAttachment stages the file at path and returns a token for it
func (s *Store) CreateAttachment(ctx context.Context, path string, metadata map[string]string) (*store.AttachmentToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, store.ErrClosed
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	err = s.blobs.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(attachmentPrefix+id), data))
	})
	if err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}

	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	return &store.AttachmentToken{ID: id, Len: int64(len(data)), Metadata: meta}, nil
}

// FetchAttachment returns the bytes behind token
func (s *Store) FetchAttachment(ctx context.Context, token store.AttachmentToken) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, store.ErrClosed
	}

	var data []byte
	err := s.blobs.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(attachmentPrefix + token.ID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrAttachmentNotFound, token.ID)
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	return data, err
}
