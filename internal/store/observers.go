package store

import (
	"fmt"
	"sync"

	"github.com/picksy/syncd/internal/observability"
)

// RunFunc executes a parsed SELECT against current data
type RunFunc func(stmt *Statement, params map[string]any) (*QueryResult, error)

type registration struct {
	id     uint64
	stmt   *Statement
	params map[string]any
	cb     ObserverFunc
}

// ObserverSet tracks live queries and re-runs them on the dispatcher after
// writes touching their collection
type ObserverSet struct {
	mu         sync.Mutex
	next       uint64
	regs       map[uint64]*registration
	dispatcher *Dispatcher
	run        RunFunc
}

// NewObserverSet creates a registry whose callbacks run on d
func NewObserverSet(d *Dispatcher, run RunFunc) *ObserverSet {
	return &ObserverSet{
		regs:       make(map[uint64]*registration),
		dispatcher: d,
		run:        run,
	}
}

// Register parses query, which must be a SELECT, and delivers the current
// result set once before any change notification
func (s *ObserverSet) Register(query string, params map[string]any, cb ObserverFunc) (*Observer, error) {
	stmt, err := ParseStatement(query)
	if err != nil {
		return nil, err
	}
	if stmt.Kind != KindSelect {
		return nil, NewQueryError(query, fmt.Errorf("%w: observers require SELECT", ErrUnsupportedQuery))
	}

	s.mu.Lock()
	s.next++
	reg := &registration{id: s.next, stmt: stmt, params: params, cb: cb}
	s.regs[reg.id] = reg
	s.mu.Unlock()

	s.deliver(reg)

	return NewObserver(func() {
		s.mu.Lock()
		delete(s.regs, reg.id)
		s.mu.Unlock()
	}), nil
}

// Notify schedules a re-run of every observer on collection
func (s *ObserverSet) Notify(collection string) {
	s.mu.Lock()
	var matched []*registration
	for _, reg := range s.regs {
		if reg.stmt.Collection == collection {
			matched = append(matched, reg)
		}
	}
	s.mu.Unlock()

	for _, reg := range matched {
		s.deliver(reg)
	}
}

func (s *ObserverSet) deliver(reg *registration) {
	s.dispatcher.Submit(func() {
		if !s.active(reg.id) {
			return
		}
		result, err := s.run(reg.stmt, reg.params)
		if err != nil {
			observability.WithField("component", "store").WithError(err).
				Warnf("observer query %q failed", reg.stmt.Raw)
			return
		}
		reg.cb(result)
	})
}

func (s *ObserverSet) active(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.regs[id]
	return ok
}
