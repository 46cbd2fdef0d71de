package library

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/picksy/syncd/internal/events"
	"github.com/picksy/syncd/internal/models"
	"github.com/picksy/syncd/internal/observability"
	"github.com/picksy/syncd/internal/store"
)

const selectPhotos = "SELECT * FROM " + models.PhotosCollection

// Bridge turns store change notifications into library snapshots. Any
// number of notifications while a cycle is pending collapse into that cycle.
type Bridge struct {
	store   store.Store
	emitter events.Emitter
	dirty   chan struct{}
	limiter *rate.Limiter
	metrics *observability.PipelineMetrics
	log     *observability.Logger
}

// NewBridge creates a bridge that emits at most once per minInterval
func NewBridge(st store.Store, emitter events.Emitter, minInterval time.Duration, metrics *observability.PipelineMetrics) *Bridge {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Bridge{
		store:   st,
		emitter: emitter,
		dirty:   make(chan struct{}, 1),
		limiter: rate.NewLimiter(limit, 1),
		metrics: metrics,
		log:     observability.WithField("component", "bridge"),
	}
}

// Notify marks the library dirty. It never blocks and is safe from observer callbacks.
func (b *Bridge) Notify() {
	select {
	case b.dirty <- struct{}{}:
	default:
	}
}

// Attach subscribes the bridge to photo changes and sync telemetry
func (b *Bridge) Attach() (func(), error) {
	obs, err := b.store.RegisterObserver(selectPhotos, nil, func(*store.QueryResult) {
		b.Notify()
	})
	if err != nil {
		return nil, fmt.Errorf("observe photos: %w", err)
	}
	stopInfo := b.store.ObserveSyncInfo(func(models.SyncInfo) {
		b.Notify()
	})
	return func() {
		obs.Cancel()
		stopInfo()
	}, nil
}

// Serve runs emission cycles until ctx is done
func (b *Bridge) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.dirty:
		}
		if err := b.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}
		if _, err := b.EmitNow(ctx); err != nil {
			b.log.WithError(err).Warn("library snapshot failed")
		}
	}
}

// Snapshot queries and projects the current library without emitting
func (b *Bridge) Snapshot(ctx context.Context) ([]models.PhotoPayload, error) {
	result, err := b.store.Execute(ctx, selectPhotos, nil)
	if err != nil {
		return nil, err
	}
	return ProjectPhotos(result.Items, b.store.SyncInfo()), nil
}

// EmitNow runs one query-project-emit cycle synchronously
func (b *Bridge) EmitNow(ctx context.Context) ([]models.PhotoPayload, error) {
	photos, err := b.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	b.emitter.EmitLibrary(photos)
	b.metrics.RecordSnapshot(ctx, len(photos))
	return photos, nil
}
