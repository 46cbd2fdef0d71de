// Package storetest provides an in-memory store.Store for tests
package storetest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/picksy/syncd/internal/models"
	"github.com/picksy/syncd/internal/store"
)

// Execution records one Execute call
type Execution struct {
	Statement *store.Statement
	Params    map[string]any
	Err       error
}

// HookFunc runs before a statement is applied. Returning an error fails the
// statement; blocking delays it.
type HookFunc func(ctx context.Context, stmt *store.Statement, params map[string]any) error

// MemStore is a goroutine-safe in-memory store.Store
type MemStore struct {
	mu          sync.Mutex
	collections map[string]map[string]store.Document
	order       map[string][]string
	commitID    uint64
	executions  []Execution
	attachments map[string][]byte
	hook        HookFunc
	attachErr   error

	dispatcher *store.Dispatcher
	observers  *store.ObserverSet
	presence   *store.PresenceHub
	telemetry  *store.SyncTelemetry
	peerKey    string
}

var _ store.Store = (*MemStore)(nil)

// New creates an empty store with a random peer key
func New() *MemStore {
	m := &MemStore{
		collections: make(map[string]map[string]store.Document),
		order:       make(map[string][]string),
		attachments: make(map[string][]byte),
		dispatcher:  store.NewDispatcher(),
		peerKey:     "peer-" + uuid.NewString()[:8],
	}
	m.observers = store.NewObserverSet(m.dispatcher, func(stmt *store.Statement, params map[string]any) (*store.QueryResult, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.selectLocked(stmt, params)
	})
	m.presence = store.NewPresenceHub(models.Peer{PeerKey: m.peerKey, DeviceName: "test", Metadata: map[string]any{}}, m.dispatcher)
	m.telemetry = store.NewSyncTelemetry(m.dispatcher)
	return m
}

// SetHook installs a hook run before every statement
func (m *MemStore) SetHook(h HookFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = h
}

// FailAttachments makes CreateAttachment return err
func (m *MemStore) FailAttachments(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachErr = err
}

// Executions returns every recorded call
func (m *MemStore) Executions() []Execution {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Execution, len(m.executions))
	copy(out, m.executions)
	return out
}

// Seed writes a document directly, bypassing commit ids and observers
func (m *MemStore) Seed(collection string, doc store.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(collection, doc)
}

// Flush waits for pending observer callbacks
func (m *MemStore) Flush() {
	m.dispatcher.Flush()
}

// Presence hub and telemetry setters for tests
func (m *MemStore) SetRemotePeers(peers []models.Peer) { m.presence.SetRemotePeers(peers) }
func (m *MemStore) SetConnected(connected bool)        { m.telemetry.SetConnected(connected) }
func (m *MemStore) AdvanceSyncedUpTo(id uint64)        { m.telemetry.AdvanceSyncedUpTo(id) }

// Execute implements store.Store
func (m *MemStore) Execute(ctx context.Context, query string, params map[string]any) (*store.QueryResult, error) {
	stmt, err := store.ParseStatement(query)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	hook := m.hook
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, stmt, params); err != nil {
			m.record(stmt, params, err)
			return nil, store.NewQueryError(query, err)
		}
	}

	m.mu.Lock()
	var result *store.QueryResult
	switch stmt.Kind {
	case store.KindSelect:
		result, err = m.selectLocked(stmt, params)
	case store.KindInsert:
		result, err = m.insertLocked(stmt, params)
	case store.KindUpdate:
		result, err = m.updateLocked(stmt, params)
	case store.KindDelete:
		result, err = m.deleteLocked(stmt, params)
	}
	m.executions = append(m.executions, Execution{Statement: stmt, Params: params, Err: err})
	m.mu.Unlock()

	if err != nil {
		return nil, store.NewQueryError(query, err)
	}
	if stmt.Kind != store.KindSelect && len(result.MutatedIDs) > 0 {
		m.observers.Notify(stmt.Collection)
	}
	return result, nil
}

func (m *MemStore) record(stmt *store.Statement, params map[string]any, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions = append(m.executions, Execution{Statement: stmt, Params: params, Err: err})
}

func (m *MemStore) selectLocked(stmt *store.Statement, params map[string]any) (*store.QueryResult, error) {
	id, byID, err := stmt.IDFrom(params)
	if err != nil {
		return nil, err
	}
	docs := m.collections[stmt.Collection]
	items := []store.Document{}
	if byID {
		if doc, ok := docs[id]; ok {
			items = append(items, copyDoc(doc))
		}
		return &store.QueryResult{Items: items}, nil
	}
	for _, docID := range m.order[stmt.Collection] {
		items = append(items, copyDoc(docs[docID]))
	}
	return &store.QueryResult{Items: items}, nil
}

func (m *MemStore) insertLocked(stmt *store.Statement, params map[string]any) (*store.QueryResult, error) {
	docs, err := stmt.Documents(params)
	if err != nil {
		return nil, err
	}
	existing := m.collections[stmt.Collection]
	if !stmt.Upsert {
		seen := map[string]bool{}
		for _, doc := range docs {
			if _, ok := existing[doc.ID()]; ok || seen[doc.ID()] {
				return nil, fmt.Errorf("%w: %s", store.ErrDuplicateID, doc.ID())
			}
			seen[doc.ID()] = true
		}
	}

	m.commitID++
	commit := m.commitID
	var ids []string
	for _, doc := range docs {
		merged := store.Merge(existing[doc.ID()], doc)
		merged["content_commit_id"] = float64(commit)
		if !slices.Contains(ids, doc.ID()) {
			ids = append(ids, doc.ID())
		}
		m.putLocked(stmt.Collection, merged)
		existing = m.collections[stmt.Collection]
	}
	return &store.QueryResult{MutatedIDs: ids, CommitID: &commit}, nil
}

func (m *MemStore) updateLocked(stmt *store.Statement, params map[string]any) (*store.QueryResult, error) {
	id, _, err := stmt.IDFrom(params)
	if err != nil {
		return nil, err
	}
	doc, ok := m.collections[stmt.Collection][id]
	if !ok {
		return &store.QueryResult{MutatedIDs: []string{}}, nil
	}
	patch := store.Document{}
	for _, set := range stmt.Sets {
		v, ok := params[set.Param]
		if !ok {
			return nil, fmt.Errorf("%w: %s", store.ErrMissingParam, set.Param)
		}
		normalized, err := store.ToDocument(map[string]any{"v": v})
		if err != nil {
			return nil, err
		}
		patch[set.Field] = normalized["v"]
	}
	m.commitID++
	commit := m.commitID
	merged := store.Merge(doc, patch)
	merged["content_commit_id"] = float64(commit)
	m.putLocked(stmt.Collection, merged)
	return &store.QueryResult{MutatedIDs: []string{id}, CommitID: &commit}, nil
}

func (m *MemStore) deleteLocked(stmt *store.Statement, params map[string]any) (*store.QueryResult, error) {
	id, byID, err := stmt.IDFrom(params)
	if err != nil {
		return nil, err
	}
	var ids []string
	if byID {
		if _, ok := m.collections[stmt.Collection][id]; ok {
			ids = []string{id}
		}
	} else {
		ids = append(ids, m.order[stmt.Collection]...)
	}
	if len(ids) == 0 {
		return &store.QueryResult{MutatedIDs: []string{}}, nil
	}
	for _, docID := range ids {
		delete(m.collections[stmt.Collection], docID)
		m.order[stmt.Collection] = remove(m.order[stmt.Collection], docID)
	}
	m.commitID++
	commit := m.commitID
	return &store.QueryResult{MutatedIDs: ids, CommitID: &commit}, nil
}

func (m *MemStore) putLocked(collection string, doc store.Document) {
	docs, ok := m.collections[collection]
	if !ok {
		docs = make(map[string]store.Document)
		m.collections[collection] = docs
	}
	if _, exists := docs[doc.ID()]; !exists {
		m.order[collection] = append(m.order[collection], doc.ID())
	}
	docs[doc.ID()] = doc
}

// RegisterObserver implements store.Store
func (m *MemStore) RegisterObserver(query string, params map[string]any, cb store.ObserverFunc) (*store.Observer, error) {
	return m.observers.Register(query, params, cb)
}

// CreateAttachment implements store.Store
func (m *MemStore) CreateAttachment(ctx context.Context, path string, metadata map[string]string) (*store.AttachmentToken, error) {
	m.mu.Lock()
	attachErr := m.attachErr
	m.mu.Unlock()
	if attachErr != nil {
		return nil, attachErr
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()

	m.mu.Lock()
	m.attachments[id] = data
	m.mu.Unlock()
	return &store.AttachmentToken{ID: id, Len: int64(len(data)), Metadata: metadata}, nil
}

// FetchAttachment implements store.Store
func (m *MemStore) FetchAttachment(ctx context.Context, token store.AttachmentToken) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.attachments[token.ID]
	if !ok {
		return nil, errors.New("attachment not found")
	}
	return data, nil
}

// Presence implements store.Store
func (m *MemStore) Presence() store.PresenceSource { return m.presence }

// SyncInfo implements store.Store
func (m *MemStore) SyncInfo() models.SyncInfo { return m.telemetry.Info() }

// ObserveSyncInfo implements store.Store
func (m *MemStore) ObserveSyncInfo(cb func(models.SyncInfo)) func() {
	return m.telemetry.Observe(cb)
}

// LocalPeerKey implements store.Store
func (m *MemStore) LocalPeerKey() string { return m.peerKey }

// Close stops the dispatcher
func (m *MemStore) Close() error {
	m.dispatcher.Close()
	return nil
}

func copyDoc(doc store.Document) store.Document {
	out := make(store.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
