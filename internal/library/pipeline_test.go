package library

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picksy/syncd/internal/models"
	"github.com/picksy/syncd/internal/store"
	"github.com/picksy/syncd/internal/store/storetest"
)

func makePhotos(n int) []models.Photo {
	out := make([]models.Photo, n)
	for i := range out {
		id := fmt.Sprintf("photo-%03d", i)
		out[i] = models.Photo{ID: id, ImagePath: "/import/" + id + ".jpg", Thumbnail: "data:image/jpeg;base64,AA"}
	}
	return out
}

func startPipeline(t *testing.T, p *Pipeline) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go p.Serve(ctx)
	return ctx
}

func nextReport(t *testing.T, reports <-chan CycleReport) CycleReport {
	t.Helper()
	select {
	case r := <-reports:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no pipeline cycle completed")
		return CycleReport{}
	}
}

func photoInserts(st *storetest.MemStore) []storetest.Execution {
	var out []storetest.Execution
	for _, e := range st.Executions() {
		if e.Statement.Kind == store.KindInsert && e.Statement.Collection == models.PhotosCollection {
			out = append(out, e)
		}
	}
	return out
}

func countPhotos(t *testing.T, st store.Store) int {
	t.Helper()
	result, err := st.Execute(context.Background(), selectPhotos, nil)
	require.NoError(t, err)
	return len(result.Items)
}

func TestSplitBatchesCount(t *testing.T) {
	for _, n := range []int{0, 1, 25, 49, 50, 51, 99, 100, 101, 120, 250} {
		batches := SplitBatches(makePhotos(n), 50)
		assert.Len(t, batches, (n+49)/50, "n=%d", n)

		total := 0
		for _, b := range batches {
			assert.LessOrEqual(t, len(b), 50)
			total += len(b)
		}
		assert.Equal(t, n, total)
	}
}

func TestDedupeKeepsLastOccurrence(t *testing.T) {
	photos := []models.Photo{
		{ID: "a", ImagePath: "/1"},
		{ID: "b", ImagePath: "/2"},
		{ID: "", ImagePath: "/skip"},
		{ID: "a", ImagePath: "/3"},
	}
	out := Dedupe(photos)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ID)
	assert.Equal(t, "a", out[1].ID)
	assert.Equal(t, "/3", out[1].ImagePath)
}

func TestBuildUpsert(t *testing.T) {
	query, params := BuildUpsert(makePhotos(3), "peer-x")
	assert.Equal(t, "INSERT INTO photos DOCUMENTS (:doc0), (:doc1), (:doc2) ON ID CONFLICT DO UPDATE", query)
	require.Len(t, params, 3)

	stmt, err := store.ParseStatement(query)
	require.NoError(t, err)
	assert.True(t, stmt.Upsert)
	assert.Equal(t, []string{"doc0", "doc1", "doc2"}, stmt.DocParams)

	doc := params["doc1"].(map[string]any)
	assert.Equal(t, "photo-001", doc["_id"])
	assert.Equal(t, "peer-x", doc["author_peer_id"])
}

func TestPipelineBatchesPerCycle(t *testing.T) {
	st := storetest.New()
	reports := make(chan CycleReport, 4)
	p := NewPipeline(st, nil, nil, PipelineConfig{}, WithCycleHook(func(r CycleReport) { reports <- r }))
	ctx := startPipeline(t, p)

	require.NoError(t, p.Enqueue(ctx, makePhotos(101)))
	r := nextReport(t, reports)

	assert.Equal(t, 101, r.Photos)
	assert.Equal(t, 3, r.Batches)
	assert.Equal(t, 3, r.Succeeded)
	assert.Equal(t, 101, countPhotos(t, st))

	inserts := photoInserts(st)
	require.Len(t, inserts, 3)
	assert.Len(t, inserts[0].Params, 50)
	assert.Len(t, inserts[1].Params, 50)
	assert.Len(t, inserts[2].Params, 1)
}

func TestPipelineUpsertIsIdempotent(t *testing.T) {
	st := storetest.New()
	reports := make(chan CycleReport, 4)
	p := NewPipeline(st, nil, nil, PipelineConfig{}, WithCycleHook(func(r CycleReport) { reports <- r }))
	ctx := startPipeline(t, p)

	photos := makePhotos(5)
	require.NoError(t, p.Enqueue(ctx, photos))
	nextReport(t, reports)
	first, err := st.Execute(ctx, selectPhotos, nil)
	require.NoError(t, err)

	require.NoError(t, p.Enqueue(ctx, photos))
	nextReport(t, reports)
	second, err := st.Execute(ctx, selectPhotos, nil)
	require.NoError(t, err)

	require.Len(t, second.Items, 5)
	for i := range first.Items {
		a, b := first.Items[i], second.Items[i]
		delete(a, "content_commit_id")
		delete(b, "content_commit_id")
		assert.Equal(t, a, b)
	}
}

func TestPipelineWatchdogAbandonsStuckBatch(t *testing.T) {
	st := storetest.New()
	release := make(chan struct{})
	var inserts atomic.Int32
	st.SetHook(func(ctx context.Context, stmt *store.Statement, params map[string]any) error {
		if stmt.Kind == store.KindInsert && stmt.Collection == models.PhotosCollection {
			if inserts.Add(1) == 3 {
				<-release
			}
		}
		return nil
	})
	defer close(release)

	var notified atomic.Int32
	reports := make(chan CycleReport, 4)
	p := NewPipeline(st, nil, func() { notified.Add(1) },
		PipelineConfig{Timeout: 150 * time.Millisecond, HeartbeatInterval: 20 * time.Millisecond},
		WithCycleHook(func(r CycleReport) { reports <- r }))
	ctx := startPipeline(t, p)

	require.NoError(t, p.Enqueue(ctx, makePhotos(120)))
	r := nextReport(t, reports)

	assert.Equal(t, 3, r.Batches)
	assert.Equal(t, 2, r.Succeeded)
	assert.Equal(t, 1, r.TimedOut)
	assert.Equal(t, 0, r.Failed)
	assert.Equal(t, int32(1), notified.Load())

	committed := photoInserts(st)
	require.Len(t, committed, 2)
	assert.Len(t, committed[0].Params, 50)
	assert.Len(t, committed[1].Params, 50)
	assert.Equal(t, 100, countPhotos(t, st))

	// the worker keeps going after abandoning a batch
	require.NoError(t, p.Enqueue(ctx, []models.Photo{{ID: "late", ImagePath: "/late.jpg"}}))
	r = nextReport(t, reports)
	assert.Equal(t, 1, r.Succeeded)
	assert.Equal(t, 101, countPhotos(t, st))
}

func TestPipelineFailedBatchDoesNotStopCycle(t *testing.T) {
	st := storetest.New()
	var inserts atomic.Int32
	st.SetHook(func(ctx context.Context, stmt *store.Statement, params map[string]any) error {
		if stmt.Kind == store.KindInsert && inserts.Add(1) == 1 {
			return fmt.Errorf("disk error")
		}
		return nil
	})

	reports := make(chan CycleReport, 2)
	p := NewPipeline(st, nil, nil, PipelineConfig{BatchSize: 2}, WithCycleHook(func(r CycleReport) { reports <- r }))
	ctx := startPipeline(t, p)

	require.NoError(t, p.Enqueue(ctx, makePhotos(5)))
	r := nextReport(t, reports)
	assert.Equal(t, 3, r.Batches)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 2, r.Succeeded)
	assert.Equal(t, 3, countPhotos(t, st))
}

func TestPipelineRejectPolicy(t *testing.T) {
	p := NewPipeline(storetest.New(), nil, nil, PipelineConfig{QueueCapacity: 1, Policy: PolicyReject})
	ctx := context.Background()

	require.NoError(t, p.Enqueue(ctx, makePhotos(1)))
	assert.ErrorIs(t, p.Enqueue(ctx, makePhotos(1)), ErrPipelineFull)
}

func TestPipelineBlockPolicyHonoursContext(t *testing.T) {
	p := NewPipeline(storetest.New(), nil, nil, PipelineConfig{QueueCapacity: 1})
	require.NoError(t, p.Enqueue(context.Background(), makePhotos(1)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Enqueue(ctx, makePhotos(1)), context.DeadlineExceeded)
}

func TestPipelineClosed(t *testing.T) {
	st := storetest.New()
	reports := make(chan CycleReport, 1)
	p := NewPipeline(st, nil, nil, PipelineConfig{}, WithCycleHook(func(r CycleReport) { reports <- r }))

	require.NoError(t, p.Enqueue(context.Background(), makePhotos(2)))
	p.Shutdown()
	assert.ErrorIs(t, p.Enqueue(context.Background(), makePhotos(1)), ErrPipelineClosed)

	startPipeline(t, p)
	r := nextReport(t, reports)
	assert.Equal(t, 2, r.Photos)
	select {
	case <-p.Drained():
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not report drained")
	}
	assert.Equal(t, 2, countPhotos(t, st))
}

func TestPipelineAdmitsSmallOriginals(t *testing.T) {
	st := storetest.New()
	reports := make(chan CycleReport, 1)
	p := NewPipeline(st, NewAdmission(st, 0), nil, PipelineConfig{}, WithCycleHook(func(r CycleReport) { reports <- r }))
	ctx := startPipeline(t, p)

	small := models.Photo{ID: "small", ImagePath: sizedFile(t, "small.jpg", 1024)}
	large := models.Photo{ID: "large", ImagePath: sizedFile(t, "large.jpg", DefaultMaxAttachmentSize+1)}
	require.NoError(t, p.Enqueue(ctx, []models.Photo{small, large}))
	nextReport(t, reports)

	result, err := st.Execute(ctx, selectPhotos, nil)
	require.NoError(t, err)
	photos := ProjectPhotos(result.Items, models.SyncInfo{})
	require.Len(t, photos, 2)
	require.NotNil(t, photos[0].FullRes)
	assert.Equal(t, int64(1024), photos[0].FullRes.Len)
	assert.Nil(t, photos[1].FullRes)
}
