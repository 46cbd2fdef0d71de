package library

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/picksy/syncd/internal/events"
	"github.com/picksy/syncd/internal/models"
	"github.com/picksy/syncd/internal/observability"
	"github.com/picksy/syncd/internal/store"
)

const (
	selectPhotoByID   = "SELECT * FROM " + models.PhotosCollection + " WHERE _id = :id"
	deletePhotoByID   = "DELETE FROM " + models.PhotosCollection + " WHERE _id = :id"
	deleteAllPhotos   = "DELETE FROM " + models.PhotosCollection
	updatePhotoConfig = "UPDATE " + models.PhotosCollection + " SET config = :config WHERE _id = :id"
	updateFavorite    = "UPDATE " + models.PhotosCollection + " SET favorite = :favorite WHERE _id = :id"
	updateStack       = "UPDATE " + models.PhotosCollection + " SET stack_id = :stack_id, is_stack_primary = :primary WHERE _id = :id"
)

// Options configures a Service
type Options struct {
	Pipeline          PipelineConfig
	MaxAttachmentSize int64
	BridgeMinInterval time.Duration
	Metrics           *observability.PipelineMetrics
	OnCycle           func(CycleReport)
}

// Service is the library's outward surface. Its long-lived workers (State,
// Pipeline, Bridge, Presence) must be running before Start is called.
type Service struct {
	store    store.Store
	state    *StateActor
	pipeline *Pipeline
	bridge   *Bridge
	presence *PresenceTracker

	mu     sync.Mutex
	detach []func()

	log *observability.Logger
}

// NewService wires the library components over st
func NewService(st store.Store, emitter events.Emitter, opts Options) *Service {
	bridge := NewBridge(st, emitter, opts.BridgeMinInterval, opts.Metrics)
	pipelineOpts := []PipelineOption{WithPipelineMetrics(opts.Metrics)}
	if opts.OnCycle != nil {
		pipelineOpts = append(pipelineOpts, WithCycleHook(opts.OnCycle))
	}
	return &Service{
		store:    st,
		state:    NewStateActor(st),
		pipeline: NewPipeline(st, NewAdmission(st, opts.MaxAttachmentSize), bridge.Notify, opts.Pipeline, pipelineOpts...),
		bridge:   bridge,
		presence: NewPresenceTracker(st.Presence(), emitter),
		log:      observability.WithField("component", "library"),
	}
}

func (s *Service) State() *StateActor         { return s.state }
func (s *Service) Pipeline() *Pipeline        { return s.pipeline }
func (s *Service) Bridge() *Bridge            { return s.bridge }
func (s *Service) Presence() *PresenceTracker { return s.presence }

// Start loads the stored state, installs observers and emits the initial
// library and presence snapshots
func (s *Service) Start(ctx context.Context) error {
	if _, err := s.state.Load(ctx); err != nil {
		return err
	}

	stopState, err := s.state.Watch()
	if err != nil {
		return err
	}
	stopBridge, err := s.bridge.Attach()
	if err != nil {
		stopState()
		return err
	}
	s.mu.Lock()
	s.detach = append(s.detach, stopState, stopBridge)
	s.mu.Unlock()

	if _, err := s.bridge.EmitNow(ctx); err != nil {
		s.log.WithError(err).Warn("initial library snapshot failed")
	}
	s.presence.EmitCurrent()
	s.log.Info("library started")
	return nil
}

// Stop closes the pipeline to new work and removes observers
func (s *Service) Stop() {
	s.pipeline.Shutdown()
	s.mu.Lock()
	detach := s.detach
	s.detach = nil
	s.mu.Unlock()
	for _, fn := range detach {
		fn()
	}
}

// EnqueueUpsert queues photos for writing to the store
func (s *Service) EnqueueUpsert(ctx context.Context, photos []models.Photo) error {
	return s.pipeline.Enqueue(ctx, photos)
}

// GetState returns a copy of the application state
func (s *Service) GetState() models.AppState {
	return s.state.GetState()
}

// Dispatch applies action and persists the result
func (s *Service) Dispatch(ctx context.Context, action models.Action) (models.AppState, error) {
	return s.state.Dispatch(ctx, action)
}

// ResyncState reloads the state from the store
func (s *Service) ResyncState(ctx context.Context) (models.AppState, error) {
	return s.state.Load(ctx)
}

// FlushState retries a failed state write
func (s *Service) FlushState(ctx context.Context) error {
	return s.state.FlushState(ctx)
}

// GetPhotos returns the projected library
func (s *Service) GetPhotos(ctx context.Context) ([]models.PhotoPayload, error) {
	return s.bridge.Snapshot(ctx)
}

// GetPhoto returns one projected photo
func (s *Service) GetPhoto(ctx context.Context, id string) (*models.PhotoPayload, error) {
	if strings.TrimSpace(id) == "" {
		return nil, models.ErrEmptyPhotoID
	}
	result, err := s.store.Execute(ctx, selectPhotoByID, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	photos := ProjectPhotos(result.Items, s.store.SyncInfo())
	if len(photos) == 0 {
		return nil, models.ErrPhotoNotFound
	}
	return &photos[0], nil
}

// RemovePhoto deletes the photo document and drops it from the state
func (s *Service) RemovePhoto(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return models.ErrEmptyPhotoID
	}
	result, err := s.store.Execute(ctx, deletePhotoByID, map[string]any{"id": id})
	if err != nil {
		return err
	}

	current := s.state.GetState()
	kept := make([]models.Photo, 0, len(current.Images))
	for _, p := range current.Images {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	inState := len(kept) != len(current.Images)
	if inState {
		if _, err := s.state.Dispatch(ctx, models.SetImageLibraryContent{Images: kept}); err != nil {
			return err
		}
	}
	if len(result.MutatedIDs) == 0 && !inState {
		return models.ErrPhotoNotFound
	}
	return nil
}

// ClearLibrary deletes every photo document and empties the state
func (s *Service) ClearLibrary(ctx context.Context) error {
	if _, err := s.store.Execute(ctx, deleteAllPhotos, nil); err != nil {
		return err
	}
	_, err := s.state.Dispatch(ctx, models.ClearImageLibraryContent{})
	return err
}

// UpdatePhotoConfig replaces the edit configuration of one photo
func (s *Service) UpdatePhotoConfig(ctx context.Context, id string, cfg models.PhotoConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return s.update(ctx, updatePhotoConfig, id, map[string]any{"config": cfg})
}

// UpdatePhotoFavorite sets the favorite flag
func (s *Service) UpdatePhotoFavorite(ctx context.Context, id string, favorite bool) error {
	return s.update(ctx, updateFavorite, id, map[string]any{"favorite": favorite})
}

// UpdatePhotoStack assigns the photo to a stack; a nil stackID removes it
func (s *Service) UpdatePhotoStack(ctx context.Context, id string, stackID *string, primary bool) error {
	var stack any
	if stackID != nil {
		stack = *stackID
	}
	return s.update(ctx, updateStack, id, map[string]any{"stack_id": stack, "primary": primary})
}

func (s *Service) update(ctx context.Context, query, id string, params map[string]any) error {
	if strings.TrimSpace(id) == "" {
		return models.ErrEmptyPhotoID
	}
	params["id"] = id
	result, err := s.store.Execute(ctx, query, params)
	if err != nil {
		return fmt.Errorf("update photo %s: %w", id, err)
	}
	if len(result.MutatedIDs) == 0 {
		return models.ErrPhotoNotFound
	}
	return nil
}

// EmitPresence emits and returns the current presence graph
func (s *Service) EmitPresence() models.PresenceGraph {
	return s.presence.EmitCurrent()
}

// CurrentPresence returns the presence graph without emitting
func (s *Service) CurrentPresence() models.PresenceGraph {
	return s.presence.Current()
}
