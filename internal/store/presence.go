package store

import (
	"sync"

	"github.com/picksy/syncd/internal/models"
)

// callbacks is a set of listeners fired on a Dispatcher
type callbacks[T any] struct {
	mu   sync.Mutex
	next uint64
	fns  map[uint64]func(T)
}

func (c *callbacks[T]) add(fn func(T)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fns == nil {
		c.fns = make(map[uint64]func(T))
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

func (c *callbacks[T]) snapshot() []func(T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]func(T), 0, len(c.fns))
	for _, fn := range c.fns {
		out = append(out, fn)
	}
	return out
}

// PresenceHub holds the peer graph and notifies observers when membership changes
type PresenceHub struct {
	mu         sync.RWMutex
	graph      models.PresenceGraph
	listeners  callbacks[models.PresenceGraph]
	dispatcher *Dispatcher
}

// NewPresenceHub creates a hub for the given local peer
func NewPresenceHub(local models.Peer, d *Dispatcher) *PresenceHub {
	return &PresenceHub{
		graph:      models.PresenceGraph{LocalPeer: local, RemotePeers: []models.Peer{}},
		dispatcher: d,
	}
}

// Graph returns a copy of the current graph
func (h *PresenceHub) Graph() models.PresenceGraph {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph.Clone()
}

// Observe registers cb for every subsequent change
func (h *PresenceHub) Observe(cb func(models.PresenceGraph)) func() {
	return h.listeners.add(cb)
}

// SetRemotePeers replaces the remote peer list and notifies observers
func (h *PresenceHub) SetRemotePeers(peers []models.Peer) {
	h.mu.Lock()
	remote := make([]models.Peer, len(peers))
	copy(remote, peers)
	h.graph.RemotePeers = remote
	graph := h.graph.Clone()
	h.mu.Unlock()

	for _, fn := range h.listeners.snapshot() {
		fn := fn
		h.dispatcher.Submit(func() { fn(graph.Clone()) })
	}
}

// SyncTelemetry holds the store-wide replication watermark
type SyncTelemetry struct {
	mu         sync.RWMutex
	info       models.SyncInfo
	listeners  callbacks[models.SyncInfo]
	dispatcher *Dispatcher
}

// NewSyncTelemetry starts disconnected with no watermark
func NewSyncTelemetry(d *Dispatcher) *SyncTelemetry {
	return &SyncTelemetry{dispatcher: d}
}

// Info returns the current telemetry
func (t *SyncTelemetry) Info() models.SyncInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return copySyncInfo(t.info)
}

// Observe registers cb for every subsequent change
func (t *SyncTelemetry) Observe(cb func(models.SyncInfo)) func() {
	return t.listeners.add(cb)
}

// SetConnected updates the connection flag
func (t *SyncTelemetry) SetConnected(connected bool) {
	t.mu.Lock()
	changed := t.info.Connected != connected
	t.info.Connected = connected
	info := copySyncInfo(t.info)
	t.mu.Unlock()

	if changed {
		t.fire(info)
	}
}

// AdvanceSyncedUpTo raises the watermark; lower values are ignored
func (t *SyncTelemetry) AdvanceSyncedUpTo(commitID uint64) {
	t.mu.Lock()
	if t.info.SyncedUpToLocalCommitID != nil && *t.info.SyncedUpToLocalCommitID >= commitID {
		t.mu.Unlock()
		return
	}
	id := commitID
	t.info.SyncedUpToLocalCommitID = &id
	info := copySyncInfo(t.info)
	t.mu.Unlock()

	t.fire(info)
}

func (t *SyncTelemetry) fire(info models.SyncInfo) {
	for _, fn := range t.listeners.snapshot() {
		fn := fn
		t.dispatcher.Submit(func() { fn(copySyncInfo(info)) })
	}
}

func copySyncInfo(info models.SyncInfo) models.SyncInfo {
	out := models.SyncInfo{Connected: info.Connected}
	if info.SyncedUpToLocalCommitID != nil {
		id := *info.SyncedUpToLocalCommitID
		out.SyncedUpToLocalCommitID = &id
	}
	return out
}
