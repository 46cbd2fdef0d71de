// Package docstore is a local document store speaking the query subset of
// the replicated store. Documents live in SQLite or PostgreSQL, attachment
// bytes in Badger.
package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/picksy/syncd/internal/models"
	"github.com/picksy/syncd/internal/observability"
	"github.com/picksy/syncd/internal/store"
)

// Options configures Open
type Options struct {
	DataDir     string
	DatabaseURL string
	DeviceName  string
}

// Store implements store.Store over database/sql
type Store struct {
	db      *sql.DB
	dialect dialect
	blobs   *badger.DB

	dispatcher *store.Dispatcher
	observers  *store.ObserverSet
	presence   *store.PresenceHub
	telemetry  *store.SyncTelemetry
	commits    commitListeners

	local   models.Peer
	metrics *observability.StoreMetrics
	log     *observability.Logger

	writeMu sync.Mutex
	closed  atomic.Bool
}

var _ store.Store = (*Store)(nil)

// Open creates the data directory, opens the document database and the
// attachment store, and loads or creates the local peer key
func Open(opts Options) (*Store, error) {
	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	var (
		db  *sql.DB
		d   dialect
		err error
	)
	if opts.DatabaseURL != "" {
		db, err = NewPostgresDB(opts.DatabaseURL)
		d = postgresDialect
	} else {
		db, err = NewSQLiteDB(filepath.Join(opts.DataDir, "picksy.db"))
		d = sqliteDialect
	}
	if err != nil {
		return nil, fmt.Errorf("open document database: %w", err)
	}

	blobs, err := openBlobs(filepath.Join(opts.DataDir, "attachments"))
	if err != nil {
		db.Close()
		return nil, err
	}

	metrics, err := observability.NewStoreMetrics()
	if err != nil {
		observability.Warnf("store metrics unavailable: %v", err)
	}

	s := &Store{
		db:         db,
		dialect:    d,
		blobs:      blobs,
		dispatcher: store.NewDispatcher(),
		metrics:    metrics,
		log:        observability.WithField("component", "docstore"),
	}

	peerKey, err := s.loadPeerKey(context.Background())
	if err != nil {
		s.dispatcher.Close()
		blobs.Close()
		db.Close()
		return nil, fmt.Errorf("load peer key: %w", err)
	}

	deviceName := opts.DeviceName
	if deviceName == "" {
		deviceName, _ = os.Hostname()
	}
	s.local = models.Peer{
		PeerKey:    peerKey,
		DeviceName: deviceName,
		Metadata:   map[string]any{"app": "picksy"},
	}

	s.observers = store.NewObserverSet(s.dispatcher, func(stmt *store.Statement, params map[string]any) (*store.QueryResult, error) {
		return s.selectDocs(context.Background(), stmt, params)
	})
	s.presence = store.NewPresenceHub(s.local, s.dispatcher)
	s.telemetry = store.NewSyncTelemetry(s.dispatcher)

	s.log.Infof("Document store opened (%s), peer %s", d.name, peerKey)
	return s, nil
}

func (s *Store) loadPeerKey(ctx context.Context) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT value FROM store_meta WHERE key = ?`), "peer_key").Scan(&key)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	key = uuid.NewString()
	_, err = s.db.ExecContext(ctx, s.dialect.rebind(`INSERT INTO store_meta (key, value) VALUES (?, ?)`), "peer_key", key)
	return key, err
}

// Execute runs one statement of the supported subset
func (s *Store) Execute(ctx context.Context, query string, params map[string]any) (*store.QueryResult, error) {
	if s.closed.Load() {
		return nil, store.NewQueryError(query, store.ErrClosed)
	}

	stmt, err := store.ParseStatement(query)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartStoreSpan(ctx, stmt.Kind.String(), stmt.Collection, s.dialect.name)
	defer span.End()

	start := time.Now()
	var result *store.QueryResult
	switch stmt.Kind {
	case store.KindSelect:
		result, err = s.selectDocs(ctx, stmt, params)
	case store.KindInsert:
		result, err = s.insertDocs(ctx, stmt, params)
	case store.KindUpdate:
		result, err = s.updateDoc(ctx, stmt, params)
	case store.KindDelete:
		result, err = s.deleteDocs(ctx, stmt, params)
	}
	s.metrics.RecordStatement(ctx, stmt.Kind.String(), stmt.Collection, time.Since(start), err)

	if err != nil {
		observability.RecordError(span, err)
		return nil, store.NewQueryError(query, err)
	}
	observability.SetSuccess(span)
	return result, nil
}

// RegisterObserver subscribes cb to a SELECT
func (s *Store) RegisterObserver(query string, params map[string]any, cb store.ObserverFunc) (*store.Observer, error) {
	if s.closed.Load() {
		return nil, store.NewQueryError(query, store.ErrClosed)
	}
	return s.observers.Register(query, params, cb)
}

// Presence returns the peer graph source
func (s *Store) Presence() store.PresenceSource {
	return s.presence
}

// SyncInfo returns the current replication telemetry
func (s *Store) SyncInfo() models.SyncInfo {
	return s.telemetry.Info()
}

// ObserveSyncInfo registers cb for telemetry changes
func (s *Store) ObserveSyncInfo(cb func(models.SyncInfo)) func() {
	return s.telemetry.Observe(cb)
}

// LocalPeerKey returns this device's stable peer key
func (s *Store) LocalPeerKey() string {
	return s.local.PeerKey
}

// Close stops observers and closes both databases
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.dispatcher.Close()

	var errs []error
	if err := s.blobs.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Store) selectDocs(ctx context.Context, stmt *store.Statement, params map[string]any) (*store.QueryResult, error) {
	id, byID, err := stmt.IDFrom(params)
	if err != nil {
		return nil, err
	}

	var rows *sql.Rows
	if byID {
		rows, err = s.db.QueryContext(ctx, s.dialect.rebind(
			`SELECT body FROM documents WHERE collection = ? AND id = ?`), stmt.Collection, id)
	} else {
		rows, err = s.db.QueryContext(ctx, s.dialect.rebind(
			`SELECT body FROM documents WHERE collection = ? ORDER BY created_at, id`), stmt.Collection)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []store.Document{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		doc, err := decodeBody(body)
		if err != nil {
			return nil, err
		}
		items = append(items, doc)
	}
	return &store.QueryResult{Items: items}, rows.Err()
}

func (s *Store) insertDocs(ctx context.Context, stmt *store.Statement, params map[string]any) (*store.QueryResult, error) {
	docs, err := stmt.Documents(params)
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	commitID, err := s.nextCommit(ctx, tx, stmt.Collection)
	if err != nil {
		return nil, err
	}

	pending := make(map[string]store.Document, len(docs))
	order := make([]string, 0, len(docs))
	for _, doc := range docs {
		id := doc.ID()
		existing, ok := pending[id]
		if !ok {
			existing, err = s.loadDoc(ctx, tx, stmt.Collection, id)
			if err != nil {
				return nil, err
			}
			order = append(order, id)
		}
		if existing != nil && !stmt.Upsert {
			return nil, fmt.Errorf("%w: %s/%s", store.ErrDuplicateID, stmt.Collection, id)
		}

		patch := stripCommit(doc)
		merged := store.Merge(existing, patch)
		merged["content_commit_id"] = commitID
		pending[id] = merged
	}

	written := make([]store.Document, 0, len(order))
	for _, id := range order {
		if err := s.writeDoc(ctx, tx, stmt.Collection, pending[id], &commitID); err != nil {
			return nil, err
		}
		written = append(written, pending[id])
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.afterCommit(ctx, store.Commit{ID: commitID, Collection: stmt.Collection, Documents: written})
	return &store.QueryResult{MutatedIDs: order, CommitID: &commitID}, nil
}

func (s *Store) updateDoc(ctx context.Context, stmt *store.Statement, params map[string]any) (*store.QueryResult, error) {
	id, _, err := stmt.IDFrom(params)
	if err != nil {
		return nil, err
	}

	patch := store.Document{}
	for _, set := range stmt.Sets {
		raw, ok := params[set.Param]
		if !ok {
			return nil, fmt.Errorf("%w: %s", store.ErrMissingParam, set.Param)
		}
		value, err := jsonValue(raw)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", set.Param, err)
		}
		patch[set.Field] = value
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	existing, err := s.loadDoc(ctx, tx, stmt.Collection, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return &store.QueryResult{MutatedIDs: []string{}}, nil
	}

	commitID, err := s.nextCommit(ctx, tx, stmt.Collection)
	if err != nil {
		return nil, err
	}

	merged := store.Merge(existing, stripCommit(patch))
	merged["content_commit_id"] = commitID
	if err := s.writeDoc(ctx, tx, stmt.Collection, merged, &commitID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.afterCommit(ctx, store.Commit{ID: commitID, Collection: stmt.Collection, Documents: []store.Document{merged}})
	return &store.QueryResult{MutatedIDs: []string{id}, CommitID: &commitID}, nil
}

func (s *Store) deleteDocs(ctx context.Context, stmt *store.Statement, params map[string]any) (*store.QueryResult, error) {
	id, byID, err := stmt.IDFrom(params)
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var ids []string
	if byID {
		existing, err := s.loadDoc(ctx, tx, stmt.Collection, id)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			ids = []string{id}
		}
	} else {
		ids, err = s.collectionIDs(ctx, tx, stmt.Collection)
		if err != nil {
			return nil, err
		}
	}
	if len(ids) == 0 {
		return &store.QueryResult{MutatedIDs: []string{}}, nil
	}

	commitID, err := s.nextCommit(ctx, tx, stmt.Collection)
	if err != nil {
		return nil, err
	}
	for _, docID := range ids {
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(
			`DELETE FROM documents WHERE collection = ? AND id = ?`), stmt.Collection, docID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.afterCommit(ctx, store.Commit{ID: commitID, Collection: stmt.Collection, Removed: ids})
	return &store.QueryResult{MutatedIDs: ids, CommitID: &commitID}, nil
}

func (s *Store) nextCommit(ctx context.Context, tx *sql.Tx, collection string) (uint64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, s.dialect.rebind(
		`INSERT INTO commits (collection, created_at) VALUES (?, ?) RETURNING id`),
		collection, time.Now().UnixNano()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("assign commit id: %w", err)
	}
	return uint64(id), nil
}

func (s *Store) loadDoc(ctx context.Context, tx *sql.Tx, collection, id string) (store.Document, error) {
	var body string
	err := tx.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT body FROM documents WHERE collection = ? AND id = ?`), collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeBody(body)
}

func (s *Store) collectionIDs(ctx context.Context, tx *sql.Tx, collection string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, s.dialect.rebind(
		`SELECT id FROM documents WHERE collection = ? ORDER BY created_at, id`), collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// writeDoc upserts the full body. commitID nil leaves the stored commit id as is.
func (s *Store) writeDoc(ctx context.Context, tx *sql.Tx, collection string, doc store.Document, commitID *uint64) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	now := time.Now().UnixNano()

	var commit any
	if commitID != nil {
		commit = int64(*commitID)
	}

	_, err = tx.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO documents (collection, id, body, commit_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			body = excluded.body,
			commit_id = COALESCE(excluded.commit_id, documents.commit_id),
			updated_at = excluded.updated_at`),
		collection, doc.ID(), string(body), commit, now, now)
	return err
}

func (s *Store) afterCommit(ctx context.Context, c store.Commit) {
	s.metrics.RecordCommit(ctx, c.ID)
	s.observers.Notify(c.Collection)
	s.commits.fire(s.dispatcher, c)
}

func decodeBody(body string) (store.Document, error) {
	var doc store.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// stripCommit drops a caller-supplied commit id; only the store assigns them
func stripCommit(doc store.Document) store.Document {
	if _, ok := doc["content_commit_id"]; !ok {
		return doc
	}
	out := make(store.Document, len(doc))
	for k, v := range doc {
		if k != "content_commit_id" {
			out[k] = v
		}
	}
	return out
}

// jsonValue normalizes v to the types a decoded body would hold
func jsonValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
