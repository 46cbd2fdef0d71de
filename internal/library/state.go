package library

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/picksy/syncd/internal/models"
	"github.com/picksy/syncd/internal/observability"
	"github.com/picksy/syncd/internal/store"
)

// ErrSchemaMismatch means the stored state document could not be decoded
var ErrSchemaMismatch = errors.New("stored state does not match schema")

const (
	selectState = "SELECT * FROM " + models.StateCollection + " WHERE _id = :id"
	upsertState = "INSERT INTO " + models.StateCollection + " DOCUMENTS (:doc) ON ID CONFLICT DO UPDATE"
)

// snapshot is an immutable published state. durable snapshots already match
// the store and are never written back.
type snapshot struct {
	state   models.AppState
	version uint64
	durable bool
}

type stateRequest struct {
	action  models.Action
	replace *models.AppState
	reply   chan *snapshot
}

// StateActor owns the application state. Transitions happen only on its Serve
// goroutine; readers see the last published snapshot.
type StateActor struct {
	store    store.Store
	requests chan stateRequest
	remote   chan models.AppState
	latest   atomic.Pointer[snapshot]

	// persistMu orders writes of the state document
	persistMu sync.Mutex
	persisted uint64
	dirty     atomic.Bool

	log *observability.Logger
}

// NewStateActor creates an actor holding the default state
func NewStateActor(st store.Store) *StateActor {
	a := &StateActor{
		store:    st,
		requests: make(chan stateRequest),
		remote:   make(chan models.AppState, 1),
		log:      observability.WithField("component", "state"),
	}
	a.latest.Store(&snapshot{state: models.AppState{Images: []models.Photo{}}, durable: true})
	return a
}

// Serve processes transitions until ctx is done
func (a *StateActor) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-a.requests:
			req.reply <- a.apply(req.action, req.replace)
		case state := <-a.remote:
			a.apply(nil, &state)
		}
	}
}

func (a *StateActor) apply(action models.Action, replace *models.AppState) *snapshot {
	cur := a.latest.Load()
	next := &snapshot{version: cur.version + 1}
	if replace != nil {
		next.state = replace.Normalize()
		next.durable = true
	} else {
		next.state = Reduce(cur.state, action)
	}
	a.latest.Store(next)
	return next
}

func (a *StateActor) request(ctx context.Context, req stateRequest) (*snapshot, error) {
	req.reply = make(chan *snapshot, 1)
	select {
	case a.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case snap := <-req.reply:
		return snap, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetState returns a copy of the current state
func (a *StateActor) GetState() models.AppState {
	return a.latest.Load().state.Clone()
}

// Version returns the number of transitions applied so far
func (a *StateActor) Version() uint64 {
	return a.latest.Load().version
}

// Dirty reports whether the newest state has not been written yet
func (a *StateActor) Dirty() bool {
	return a.dirty.Load()
}

// Dispatch reduces action into the state and writes the result through to the
// store. The in-memory state advances even when the write fails; the error is
// returned and the next write retries with the newest state.
func (a *StateActor) Dispatch(ctx context.Context, action models.Action) (models.AppState, error) {
	snap, err := a.request(ctx, stateRequest{action: action})
	if err != nil {
		return models.AppState{}, err
	}
	state := snap.state.Clone()
	if err := a.persist(ctx); err != nil {
		return state, err
	}
	return state, nil
}

// FlushState writes the newest state if it has not been written yet
func (a *StateActor) FlushState(ctx context.Context) error {
	return a.persist(ctx)
}

func (a *StateActor) persist(ctx context.Context) error {
	a.persistMu.Lock()
	defer a.persistMu.Unlock()

	snap := a.latest.Load()
	if snap.version <= a.persisted {
		return nil
	}
	if snap.durable {
		a.persisted = snap.version
		a.dirty.Store(false)
		return nil
	}

	doc := map[string]any{
		"_id":            models.StateDocumentID,
		"state":          snap.state,
		"author_peer_id": a.store.LocalPeerKey(),
	}
	if _, err := a.store.Execute(ctx, upsertState, map[string]any{"doc": doc}); err != nil {
		a.dirty.Store(true)
		return fmt.Errorf("persist state: %w", err)
	}
	a.persisted = snap.version
	a.dirty.Store(false)
	return nil
}

// Load replaces the state with the stored document, or the default state when
// there is none. An undecodable document is logged and treated as absent.
func (a *StateActor) Load(ctx context.Context) (models.AppState, error) {
	state, err := a.loadStored(ctx)
	if err != nil {
		return models.AppState{}, err
	}
	snap, err := a.request(ctx, stateRequest{replace: &state})
	if err != nil {
		return models.AppState{}, err
	}
	return snap.state.Clone(), nil
}

func (a *StateActor) loadStored(ctx context.Context) (models.AppState, error) {
	result, err := a.store.Execute(ctx, selectState, map[string]any{"id": models.StateDocumentID})
	if err != nil {
		return models.AppState{}, fmt.Errorf("load state: %w", err)
	}
	if len(result.Items) == 0 {
		return models.AppState{Images: []models.Photo{}}, nil
	}
	state, err := decodeStoredState(result.Items[0])
	if err != nil {
		a.log.WithError(err).Warn("resetting state")
		return models.AppState{Images: []models.Photo{}}, nil
	}
	return state, nil
}

func decodeStoredState(doc store.Document) (models.AppState, error) {
	var stored models.StoredState
	if err := doc.Decode(&stored); err != nil {
		return models.AppState{}, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return stored.State.Normalize(), nil
}

// Watch follows the state document and adopts changes written by other peers
func (a *StateActor) Watch() (func(), error) {
	obs, err := a.store.RegisterObserver(selectState, map[string]any{"id": models.StateDocumentID}, func(result *store.QueryResult) {
		if len(result.Items) == 0 {
			return
		}
		doc := result.Items[0]
		if author, _ := doc["author_peer_id"].(string); author == a.store.LocalPeerKey() {
			return
		}
		state, err := decodeStoredState(doc)
		if err != nil {
			a.log.WithError(err).Warn("ignoring remote state")
			return
		}
		a.offerRemote(state)
	})
	if err != nil {
		return nil, fmt.Errorf("observe state: %w", err)
	}
	return obs.Cancel, nil
}

// offerRemote hands state to the actor without blocking, replacing any
// remote state not yet applied
func (a *StateActor) offerRemote(state models.AppState) {
	for {
		select {
		case a.remote <- state:
			return
		default:
		}
		select {
		case <-a.remote:
		default:
		}
	}
}
