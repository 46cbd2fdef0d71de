package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("test-service", LevelDebug)
	logger.SetOutput(&buf)

	logger.WithField("component", "pipeline").WithError(errors.New("boom")).Infof("wrote %d photos", 3)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "wrote 3 photos", entry["message"])
	assert.Equal(t, "pipeline", entry["component"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "test-service", entry["service"])
}

func TestLoggerRespectsMinLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("test-service", LevelWarn)
	logger.SetOutput(&buf)

	logger.Debug("hidden")
	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger("svc", LevelInfo)
	parent.SetOutput(&buf)

	_ = parent.WithField("child", true)
	parent.Info("parent")

	entry := decodeLine(t, &buf)
	assert.NotContains(t, entry, "child")
}

func TestWithContextAddsTraceIDs(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	logger := NewLogger("svc", LevelInfo)
	logger.SetOutput(&buf)
	logger.WithContext(ctx).Info("traced")

	entry := decodeLine(t, &buf)
	assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}
