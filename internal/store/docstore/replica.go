package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/picksy/syncd/internal/models"
	"github.com/picksy/syncd/internal/store"
)

type commitListeners struct {
	mu   sync.Mutex
	next uint64
	fns  map[uint64]func(store.Commit)
}

func (c *commitListeners) add(fn func(store.Commit)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fns == nil {
		c.fns = make(map[uint64]func(store.Commit))
	}
	c.next++
	id := c.next
	c.fns[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.fns, id)
		c.mu.Unlock()
	}
}

func (c *commitListeners) fire(d *store.Dispatcher, commit store.Commit) {
	c.mu.Lock()
	fns := make([]func(store.Commit), 0, len(c.fns))
	for _, fn := range c.fns {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn := fn
		d.Submit(func() { fn(commit) })
	}
}

// LocalPeer returns this device's presence entry
func (s *Store) LocalPeer() models.Peer {
	return s.local
}

// OnCommit registers fn for every successful local write. fn runs on the
// dispatcher goroutine and must not block.
func (s *Store) OnCommit(fn func(store.Commit)) func() {
	return s.commits.add(fn)
}

// ChangesSince returns one commit per document whose local commit id is
// above after, ordered by commit id
func (s *Store) ChangesSince(ctx context.Context, after uint64) ([]store.Commit, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT collection, body, commit_id FROM documents
		WHERE commit_id IS NOT NULL AND commit_id > ?
		ORDER BY commit_id, id`), int64(after))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Commit
	for rows.Next() {
		var (
			collection string
			body       string
			commitID   int64
		)
		if err := rows.Scan(&collection, &body, &commitID); err != nil {
			return nil, err
		}
		doc, err := decodeBody(body)
		if err != nil {
			return nil, err
		}
		out = append(out, store.Commit{ID: uint64(commitID), Collection: collection, Documents: []store.Document{doc}})
	}
	return out, rows.Err()
}

// ApplyRemote merges a document received from a peer. Remote writes never
// get a local commit id; a document's existing local id is kept.
func (s *Store) ApplyRemote(ctx context.Context, collection string, doc store.Document) error {
	if doc.ID() == "" {
		return fmt.Errorf("remote document in %s has no _id", collection)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	existing, err := s.loadDoc(ctx, tx, collection, doc.ID())
	if err != nil {
		return err
	}

	merged := store.Merge(existing, stripCommit(doc))
	if existing != nil {
		if local, ok := existing["content_commit_id"]; ok {
			merged["content_commit_id"] = local
		}
	}
	if err := s.writeDoc(ctx, tx, collection, merged, nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.observers.Notify(collection)
	return nil
}

// RemoveRemote deletes a document removed by a peer
func (s *Store) RemoveRemote(ctx context.Context, collection, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`DELETE FROM documents WHERE collection = ? AND id = ?`), collection, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.observers.Notify(collection)
	}
	return nil
}

// SetConnected records the relay connection state
func (s *Store) SetConnected(connected bool) {
	s.telemetry.SetConnected(connected)
}

// AdvanceSyncedUpTo records the highest local commit id the relay has acknowledged
func (s *Store) AdvanceSyncedUpTo(commitID uint64) {
	s.telemetry.AdvanceSyncedUpTo(commitID)
}

// SetRemotePeers replaces the reachable peer list
func (s *Store) SetRemotePeers(peers []models.Peer) {
	s.presence.SetRemotePeers(peers)
}
