package library

import (
	"context"
	"sync"

	"github.com/picksy/syncd/internal/events"
	"github.com/picksy/syncd/internal/models"
	"github.com/picksy/syncd/internal/store"
)

// PresenceTracker forwards every presence graph change to the emitter
type PresenceTracker struct {
	source  store.PresenceSource
	emitter events.Emitter

	mu   sync.Mutex
	stop func()
}

// NewPresenceTracker creates an idle tracker
func NewPresenceTracker(source store.PresenceSource, emitter events.Emitter) *PresenceTracker {
	return &PresenceTracker{source: source, emitter: emitter}
}

// Start subscribes to membership changes. Calling it twice is a no-op.
func (p *PresenceTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return
	}
	p.stop = p.source.Observe(func(graph models.PresenceGraph) {
		p.emitter.EmitPresence(graph)
	})
}

// Stop ends the subscription
func (p *PresenceTracker) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		p.stop()
		p.stop = nil
	}
}

// Serve keeps the subscription open until ctx is done
func (p *PresenceTracker) Serve(ctx context.Context) error {
	p.Start()
	defer p.Stop()
	<-ctx.Done()
	return ctx.Err()
}

// Current returns the graph as it is now
func (p *PresenceTracker) Current() models.PresenceGraph {
	return p.source.Graph()
}

// EmitCurrent emits the current graph and returns it
func (p *PresenceTracker) EmitCurrent() models.PresenceGraph {
	graph := p.source.Graph()
	p.emitter.EmitPresence(graph)
	return graph
}
