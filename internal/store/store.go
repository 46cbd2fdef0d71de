// Package store defines the contract between the library layer and the
// replicated document store. Implementations live in subpackages.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/picksy/syncd/internal/models"
)

// AttachmentToken references staged attachment bytes
type AttachmentToken = models.AttachmentToken

// Document is one decoded document body
type Document map[string]any

// ID returns the document _id
func (d Document) ID() string {
	id, _ := d["_id"].(string)
	return id
}

// Decode converts the document into v through its JSON form
func (d Document) Decode(v any) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// QueryResult is the outcome of one statement
type QueryResult struct {
	Items      []Document
	MutatedIDs []string
	CommitID   *uint64
}

// ObserverFunc receives the fresh result set of an observed query
type ObserverFunc func(result *QueryResult)

// Observer is a live query subscription
type Observer struct {
	once   sync.Once
	cancel func()
}

// NewObserver wraps a cancel function
func NewObserver(cancel func()) *Observer {
	return &Observer{cancel: cancel}
}

// Cancel ends the subscription. Safe to call more than once.
func (o *Observer) Cancel() {
	if o == nil {
		return
	}
	o.once.Do(func() {
		if o.cancel != nil {
			o.cancel()
		}
	})
}

// PresenceSource exposes the current peer graph and its changes
type PresenceSource interface {
	Graph() models.PresenceGraph
	Observe(cb func(models.PresenceGraph)) (cancel func())
}

// Store is the replicated document store consumed by the library layer.
// Observer callbacks run on the store's own dispatcher goroutine.
type Store interface {
	Execute(ctx context.Context, query string, params map[string]any) (*QueryResult, error)
	RegisterObserver(query string, params map[string]any, cb ObserverFunc) (*Observer, error)
	CreateAttachment(ctx context.Context, path string, metadata map[string]string) (*AttachmentToken, error)
	FetchAttachment(ctx context.Context, token AttachmentToken) ([]byte, error)
	Presence() PresenceSource
	SyncInfo() models.SyncInfo
	ObserveSyncInfo(cb func(models.SyncInfo)) (cancel func())
	LocalPeerKey() string
	Close() error
}

var (
	ErrUnsupportedQuery = errors.New("unsupported query")
	ErrDuplicateID      = errors.New("document id already exists")
	ErrMissingParam     = errors.New("missing query parameter")
	ErrClosed           = errors.New("store closed")
)

// QueryError wraps a failed statement
type QueryError struct {
	Statement string
	Err       error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %q: %v", e.Statement, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError wraps err unless it is already a *QueryError
func NewQueryError(statement string, err error) error {
	if err == nil {
		return nil
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return err
	}
	return &QueryError{Statement: statement, Err: err}
}
