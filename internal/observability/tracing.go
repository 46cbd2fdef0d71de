package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns a tracer for the given name
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartSpan starts a new span from context
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// StartStoreSpan starts a span for a store statement
func StartStoreSpan(ctx context.Context, operation, collection, dialect string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("STORE %s %s", operation, collection),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", dialect),
			attribute.String("db.operation", operation),
			attribute.String("store.collection", collection),
		),
	)
}

// StartServiceSpan starts a span for service operations
func StartServiceSpan(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("%s.%s", service, operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.component", service),
			attribute.String("service.operation", operation),
		),
	)
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks the span as successful
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddEvent adds an event to the span
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// StoreMetrics holds document store metrics
type StoreMetrics struct {
	statementDuration metric.Float64Histogram
	statementCount    metric.Int64Counter
	errorCount        metric.Int64Counter
	commitID          metric.Int64Gauge
}

// NewStoreMetrics creates store metrics instruments
func NewStoreMetrics() (*StoreMetrics, error) {
	meter := otel.Meter(instrumentationName)

	statementDuration, err := meter.Float64Histogram(
		"store.statement.duration",
		metric.WithDescription("Store statement duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	statementCount, err := meter.Int64Counter(
		"store.statement.count",
		metric.WithDescription("Total number of store statements"),
		metric.WithUnit("{statements}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"store.error.count",
		metric.WithDescription("Total number of failed store statements"),
		metric.WithUnit("{errors}"),
	)
	if err != nil {
		return nil, err
	}

	commitID, err := meter.Int64Gauge(
		"store.commit_id",
		metric.WithDescription("Latest local commit id"),
	)
	if err != nil {
		return nil, err
	}

	return &StoreMetrics{
		statementDuration: statementDuration,
		statementCount:    statementCount,
		errorCount:        errorCount,
		commitID:          commitID,
	}, nil
}

// RecordStatement records one executed statement
func (m *StoreMetrics) RecordStatement(ctx context.Context, operation, collection string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("db.operation", operation),
		attribute.String("store.collection", collection),
	)

	m.statementCount.Add(ctx, 1, attrs)
	m.statementDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.errorCount.Add(ctx, 1, attrs)
	}
}

// RecordCommit records the latest commit id
func (m *StoreMetrics) RecordCommit(ctx context.Context, id uint64) {
	if m == nil {
		return
	}
	m.commitID.Record(ctx, int64(id))
}

// PipelineMetrics holds upsert pipeline and snapshot metrics
type PipelineMetrics struct {
	batches       metric.Int64Counter
	photos        metric.Int64Counter
	timeouts      metric.Int64Counter
	batchDuration metric.Float64Histogram
	snapshots     metric.Int64Counter
	queueDepth    metric.Int64UpDownCounter
}

// NewPipelineMetrics creates pipeline metrics instruments
func NewPipelineMetrics() (*PipelineMetrics, error) {
	meter := otel.Meter(instrumentationName)

	batches, err := meter.Int64Counter(
		"picksy.pipeline.batches",
		metric.WithDescription("Total number of upsert batches submitted"),
		metric.WithUnit("{batches}"),
	)
	if err != nil {
		return nil, err
	}

	photos, err := meter.Int64Counter(
		"picksy.pipeline.photos",
		metric.WithDescription("Total number of photos written by the pipeline"),
		metric.WithUnit("{photos}"),
	)
	if err != nil {
		return nil, err
	}

	timeouts, err := meter.Int64Counter(
		"picksy.pipeline.timeouts",
		metric.WithDescription("Upsert batches abandoned by the watchdog"),
		metric.WithUnit("{batches}"),
	)
	if err != nil {
		return nil, err
	}

	batchDuration, err := meter.Float64Histogram(
		"picksy.pipeline.batch.duration",
		metric.WithDescription("Upsert batch duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	snapshots, err := meter.Int64Counter(
		"picksy.snapshot.emitted",
		metric.WithDescription("Library snapshots emitted"),
		metric.WithUnit("{snapshots}"),
	)
	if err != nil {
		return nil, err
	}

	queueDepth, err := meter.Int64UpDownCounter(
		"picksy.pipeline.queue_depth",
		metric.WithDescription("Upsert requests waiting in the queue"),
		metric.WithUnit("{requests}"),
	)
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		batches:       batches,
		photos:        photos,
		timeouts:      timeouts,
		batchDuration: batchDuration,
		snapshots:     snapshots,
		queueDepth:    queueDepth,
	}, nil
}

// RecordBatch records one submitted batch
func (m *PipelineMetrics) RecordBatch(ctx context.Context, size int, duration time.Duration, outcome string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.batches.Add(ctx, 1, attrs)
	m.batchDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if outcome == "ok" {
		m.photos.Add(ctx, int64(size))
	}
	if outcome == "timeout" {
		m.timeouts.Add(ctx, 1)
	}
}

// RecordSnapshot records one emitted library snapshot
func (m *PipelineMetrics) RecordSnapshot(ctx context.Context, photoCount int) {
	if m == nil {
		return
	}
	m.snapshots.Add(ctx, 1, metric.WithAttributes(attribute.Int("photo_count", photoCount)))
}

// QueueDelta tracks requests entering (+1) and leaving (-1) the queue
func (m *PipelineMetrics) QueueDelta(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.queueDepth.Add(ctx, delta)
}
