package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/picksy/syncd/internal/models"
	"github.com/picksy/syncd/internal/observability"
	"github.com/picksy/syncd/internal/store"
)

// Pipeline errors
var (
	ErrPipelineClosed = errors.New("upsert pipeline is closed")
	ErrPipelineFull   = errors.New("upsert pipeline queue is full")
	ErrUpsertTimeout  = errors.New("upsert batch timed out")
)

// QueuePolicy selects what Enqueue does when the queue is full
type QueuePolicy string

const (
	PolicyBlock  QueuePolicy = "block"
	PolicyReject QueuePolicy = "reject"
)

// Pipeline defaults
const (
	DefaultBatchSize         = 50
	DefaultQueueCapacity     = 64
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultUpsertTimeout     = 60 * time.Second
)

// PipelineConfig tunes batching and the watchdog
type PipelineConfig struct {
	BatchSize         int
	QueueCapacity     int
	Policy            QueuePolicy
	HeartbeatInterval time.Duration
	Timeout           time.Duration
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.Policy == "" {
		c.Policy = PolicyBlock
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultUpsertTimeout
	}
	return c
}

// CycleReport summarizes one drain of the queue
type CycleReport struct {
	Photos    int
	Batches   int
	Succeeded int
	Failed    int
	TimedOut  int
	Duration  time.Duration
}

// Pipeline serializes photo upserts into the store through a single worker
type Pipeline struct {
	cfg       PipelineConfig
	store     store.Store
	admission *Admission
	notify    func()
	metrics   *observability.PipelineMetrics
	onCycle   func(CycleReport)

	queue     chan []models.Photo
	closed    chan struct{}
	closeOnce sync.Once
	drained   chan struct{}
	drainOnce sync.Once

	log *observability.Logger
}

// PipelineOption customizes a Pipeline
type PipelineOption func(*Pipeline)

// WithCycleHook calls fn after every cycle
func WithCycleHook(fn func(CycleReport)) PipelineOption {
	return func(p *Pipeline) { p.onCycle = fn }
}

// WithPipelineMetrics records batch outcomes
func WithPipelineMetrics(m *observability.PipelineMetrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline creates a pipeline. notify runs after each cycle that wrote at
// least one batch; admission may be nil to skip attachments.
func NewPipeline(st store.Store, admission *Admission, notify func(), cfg PipelineConfig, opts ...PipelineOption) *Pipeline {
	cfg = cfg.withDefaults()
	p := &Pipeline{
		cfg:       cfg,
		store:     st,
		admission: admission,
		notify:    notify,
		queue:     make(chan []models.Photo, cfg.QueueCapacity),
		closed:    make(chan struct{}),
		drained:   make(chan struct{}),
		log:       observability.WithField("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.notify == nil {
		p.notify = func() {}
	}
	return p
}

// Enqueue hands photos to the worker. Under PolicyBlock it waits for room or
// ctx; under PolicyReject a full queue returns ErrPipelineFull.
func (p *Pipeline) Enqueue(ctx context.Context, photos []models.Photo) error {
	select {
	case <-p.closed:
		return ErrPipelineClosed
	default:
	}
	if len(photos) == 0 {
		return nil
	}

	req := make([]models.Photo, len(photos))
	copy(req, photos)

	if p.cfg.Policy == PolicyReject {
		select {
		case p.queue <- req:
		case <-p.closed:
			return ErrPipelineClosed
		default:
			return ErrPipelineFull
		}
	} else {
		select {
		case p.queue <- req:
		case <-p.closed:
			return ErrPipelineClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.metrics.QueueDelta(ctx, int64(len(req)))
	return nil
}

// Shutdown stops accepting work. The worker writes what is already queued.
func (p *Pipeline) Shutdown() {
	p.closeOnce.Do(func() { close(p.closed) })
}

// Drained is closed once the worker has written everything queued before
// Shutdown
func (p *Pipeline) Drained() <-chan struct{} {
	return p.drained
}

// Serve runs the worker until ctx is done
func (p *Pipeline) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if n := len(p.queue); n > 0 {
				p.log.Warnf("stopping with %d queued requests", n)
			}
			return ctx.Err()
		case <-p.closed:
			if photos := p.drain(ctx, nil); len(photos) > 0 {
				p.runCycle(ctx, photos)
			}
			p.drainOnce.Do(func() { close(p.drained) })
			<-ctx.Done()
			return ctx.Err()
		case req := <-p.queue:
			p.runCycle(ctx, p.drain(ctx, req))
		}
	}
}

// drain appends every request queued right now to first
func (p *Pipeline) drain(ctx context.Context, first []models.Photo) []models.Photo {
	photos := first
	taken := int64(len(first))
	for {
		select {
		case more := <-p.queue:
			photos = append(photos, more...)
			taken += int64(len(more))
		default:
			p.metrics.QueueDelta(ctx, -taken)
			return photos
		}
	}
}

func (p *Pipeline) runCycle(ctx context.Context, photos []models.Photo) CycleReport {
	start := time.Now()
	photos = Dedupe(photos)
	report := CycleReport{Photos: len(photos)}
	if len(photos) == 0 {
		return report
	}

	if p.admission != nil {
		for i := range photos {
			if photos[i].FullRes == nil {
				photos[i].FullRes = p.admission.Admit(ctx, photos[i].ImagePath)
			}
		}
	}

	author := p.store.LocalPeerKey()
	batches := SplitBatches(photos, p.cfg.BatchSize)
	report.Batches = len(batches)
	for i, batch := range batches {
		if ctx.Err() != nil {
			report.Failed += len(batches) - i
			break
		}
		query, params := BuildUpsert(batch, author)
		batchStart := time.Now()
		err := p.submit(ctx, i, query, params)
		elapsed := time.Since(batchStart)

		switch {
		case err == nil:
			report.Succeeded++
			p.metrics.RecordBatch(ctx, len(batch), elapsed, "ok")
		case errors.Is(err, ErrUpsertTimeout):
			report.TimedOut++
			p.metrics.RecordBatch(ctx, len(batch), elapsed, "timeout")
			p.log.WithError(err).Errorf("abandoning batch %d of %d (%d photos)", i+1, len(batches), len(batch))
		default:
			report.Failed++
			p.metrics.RecordBatch(ctx, len(batch), elapsed, "error")
			p.log.WithError(err).Errorf("batch %d of %d failed (%d photos)", i+1, len(batches), len(batch))
		}
	}
	report.Duration = time.Since(start)

	p.log.Debugf("cycle wrote %d of %d batches for %d photos in %s",
		report.Succeeded, report.Batches, report.Photos, report.Duration)
	if report.Succeeded > 0 {
		p.notify()
	}
	if p.onCycle != nil {
		p.onCycle(report)
	}
	return report
}

// submit races the store write against the watchdog. The write keeps running
// after a timeout; only the wait is abandoned.
func (p *Pipeline) submit(ctx context.Context, index int, query string, params map[string]any) error {
	done := make(chan error, 1)
	writeCtx := context.WithoutCancel(ctx)
	go func() {
		_, err := p.store.Execute(writeCtx, query, params)
		done <- err
	}()

	heartbeat := time.NewTicker(p.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	deadline := time.NewTimer(p.cfg.Timeout)
	defer deadline.Stop()
	start := time.Now()

	for {
		select {
		case err := <-done:
			return err
		case <-heartbeat.C:
			p.log.Debugf("batch %d still outstanding after %s", index+1, time.Since(start).Round(time.Millisecond))
		case <-deadline.C:
			return fmt.Errorf("%w after %s", ErrUpsertTimeout, p.cfg.Timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Dedupe keeps the last occurrence of each id, in order of last occurrence.
// Photos without an id are dropped.
func Dedupe(photos []models.Photo) []models.Photo {
	last := make(map[string]int, len(photos))
	for i, p := range photos {
		if p.ID != "" {
			last[p.ID] = i
		}
	}
	out := make([]models.Photo, 0, len(last))
	for i, p := range photos {
		if p.ID != "" && last[p.ID] == i {
			out = append(out, p)
		}
	}
	return out
}

// SplitBatches cuts photos into consecutive runs of at most size
func SplitBatches(photos []models.Photo, size int) [][]models.Photo {
	if size <= 0 {
		size = DefaultBatchSize
	}
	batches := make([][]models.Photo, 0, (len(photos)+size-1)/size)
	for start := 0; start < len(photos); start += size {
		end := min(start+size, len(photos))
		batches = append(batches, photos[start:end])
	}
	return batches
}

// BuildUpsert renders one multi-document upsert for batch
func BuildUpsert(batch []models.Photo, authorPeerID string) (string, map[string]any) {
	var b strings.Builder
	params := make(map[string]any, len(batch))
	b.WriteString("INSERT INTO " + models.PhotosCollection + " DOCUMENTS ")
	for i, photo := range batch {
		if i > 0 {
			b.WriteString(", ")
		}
		name := fmt.Sprintf("doc%d", i)
		fmt.Fprintf(&b, "(:%s)", name)
		params[name] = models.UpsertFields(photo, authorPeerID)
	}
	b.WriteString(" ON ID CONFLICT DO UPDATE")
	return b.String(), params
}
