package events

import (
	"sync"

	"github.com/picksy/syncd/internal/models"
)

// Recorder keeps every emitted event in memory
type Recorder struct {
	mu       sync.Mutex
	library  [][]models.PhotoPayload
	presence []models.PresenceGraph
	onEmit   func()
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// OnEmit sets a function called after each recorded event
func (r *Recorder) OnEmit(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEmit = fn
}

func (r *Recorder) EmitLibrary(photos []models.PhotoPayload) {
	r.mu.Lock()
	snapshot := make([]models.PhotoPayload, len(photos))
	copy(snapshot, photos)
	r.library = append(r.library, snapshot)
	fn := r.onEmit
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (r *Recorder) EmitPresence(graph models.PresenceGraph) {
	r.mu.Lock()
	r.presence = append(r.presence, graph.Clone())
	fn := r.onEmit
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Library returns every library snapshot in emission order
func (r *Recorder) Library() [][]models.PhotoPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]models.PhotoPayload, len(r.library))
	copy(out, r.library)
	return out
}

// LastLibrary returns the newest snapshot, or nil
func (r *Recorder) LastLibrary() []models.PhotoPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.library) == 0 {
		return nil
	}
	return r.library[len(r.library)-1]
}

// Presence returns every presence graph in emission order
func (r *Recorder) Presence() []models.PresenceGraph {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.PresenceGraph, len(r.presence))
	copy(out, r.presence)
	return out
}
