package library

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picksy/syncd/internal/events"
	"github.com/picksy/syncd/internal/models"
	"github.com/picksy/syncd/internal/store"
	"github.com/picksy/syncd/internal/store/storetest"
)

// gatedEmitter blocks the first library emission until gate is closed
type gatedEmitter struct {
	*events.Recorder
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newGatedEmitter() *gatedEmitter {
	return &gatedEmitter{Recorder: events.NewRecorder(), entered: make(chan struct{}), gate: make(chan struct{})}
}

func (g *gatedEmitter) EmitLibrary(photos []models.PhotoPayload) {
	g.once.Do(func() {
		close(g.entered)
		<-g.gate
	})
	g.Recorder.EmitLibrary(photos)
}

func startBridge(t *testing.T, b *Bridge) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Serve(ctx)
}

func TestBridgeCoalescesBursts(t *testing.T) {
	emitter := newGatedEmitter()
	b := NewBridge(storetest.New(), emitter, 0, nil)
	startBridge(t, b)

	b.Notify()
	select {
	case <-emitter.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle did not start")
	}

	for range 100 {
		b.Notify()
	}
	close(emitter.gate)

	require.Eventually(t, func() bool { return len(emitter.Library()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return len(emitter.Library()) > 2 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestBridgeNotifyNeverBlocks(t *testing.T) {
	b := NewBridge(storetest.New(), events.NewRecorder(), 0, nil)
	done := make(chan struct{})
	go func() {
		for range 1000 {
			b.Notify()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked without a consumer")
	}
}

func TestBridgeFollowsStoreChanges(t *testing.T) {
	st := storetest.New()
	rec := events.NewRecorder()
	b := NewBridge(st, rec, 0, nil)
	startBridge(t, b)

	stop, err := b.Attach()
	require.NoError(t, err)
	defer stop()

	_, err = st.Execute(context.Background(), "INSERT INTO photos DOCUMENTS (:d)", map[string]any{
		"d": map[string]any{"_id": "p1", "filename": "p1.jpg", "path": "/p1.jpg", "base64": ""},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		last := rec.LastLibrary()
		return len(last) == 1 && last[0].SyncStatus == models.SyncStatusDisconnected
	}, 2*time.Second, 5*time.Millisecond)

	st.SetConnected(true)
	st.AdvanceSyncedUpTo(100)
	require.Eventually(t, func() bool {
		last := rec.LastLibrary()
		return len(last) == 1 && last[0].SyncStatus == models.SyncStatusSynced
	}, 2*time.Second, 5*time.Millisecond)
}

func TestBridgeEmitNowReportsQueryErrors(t *testing.T) {
	st := storetest.New()
	st.SetHook(func(ctx context.Context, stmt *store.Statement, params map[string]any) error {
		return assert.AnError
	})
	rec := events.NewRecorder()
	b := NewBridge(st, rec, 0, nil)

	_, err := b.EmitNow(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, rec.Library())
}

func TestBridgeRateLimit(t *testing.T) {
	rec := events.NewRecorder()
	b := NewBridge(storetest.New(), rec, 200*time.Millisecond, nil)
	startBridge(t, b)

	b.Notify()
	require.Eventually(t, func() bool { return len(rec.Library()) == 1 }, time.Second, 5*time.Millisecond)
	b.Notify()
	assert.Never(t, func() bool { return len(rec.Library()) > 1 }, 100*time.Millisecond, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.Library()) == 2 }, time.Second, 5*time.Millisecond)
}
