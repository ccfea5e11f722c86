package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/yairfalse/lambdaterm/types"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return &Logger{Logger: zerolog.New(buf).Hook(OTELHook{})}
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestOTELHook_AddsTraceIDs(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	newBufferLogger(&buf).WithContext(ctx).Info().Msg("hello")

	entry := decodeLine(t, &buf)
	assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])
}

func TestOTELHook_NoSpan(t *testing.T) {
	var buf bytes.Buffer
	newBufferLogger(&buf).WithContext(context.Background()).Info().Msg("hello")

	entry := decodeLine(t, &buf)
	assert.NotContains(t, entry, "trace_id")
}

func TestNewConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewConsoleLogger("lambdaterm", &buf, "warn")
	require.NoError(t, err)

	logger.Info().Msg("dropped")
	logger.Warn().Msg("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestNewConsoleLogger_BadLevel(t *testing.T) {
	_, err := NewConsoleLogger("lambdaterm", &bytes.Buffer{}, "loud")
	assert.Error(t, err)
}

func TestLogger_LogProviderError(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	logger.LogProviderError(context.Background(), "terminate", types.NewProviderError(404, "", "not found", ""))

	entry := decodeLine(t, &buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, float64(404), entry["status_code"])
	assert.Equal(t, "global/unknown", entry["error_code"])
	assert.Equal(t, "not found", entry["message"])
}

func TestLogger_LogWaitOutcome_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	logger.LogWaitOutcome(context.Background(), types.WaitOutcome{
		Kind:       types.WaitTimedOut,
		InstanceID: "i-1",
		Elapsed:    time.Second,
	})

	entry := decodeLine(t, &buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "timed_out", entry["outcome"])
}

func TestLogger_SpanLifecycle(t *testing.T) {
	var buf bytes.Buffer
	logger := &Logger{Logger: zerolog.New(&buf).Level(zerolog.DebugLevel)}

	logger.LogSpanStart(context.Background(), "waiter.wait", attribute.String("instance.id", "i-1"))
	entry := decodeLine(t, &buf)
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "waiter.wait", entry["span_name"])
	assert.Equal(t, "i-1", entry["instance.id"])
	assert.Equal(t, "span started", entry["message"])

	buf.Reset()
	logger.LogSpanEnd(context.Background(), "waiter.wait", nil)
	assert.Equal(t, "span completed", decodeLine(t, &buf)["message"])

	buf.Reset()
	logger.LogSpanEnd(context.Background(), "waiter.wait", errors.New("boom"))
	entry = decodeLine(t, &buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "span failed", entry["message"])
	assert.Equal(t, "boom", entry["error"])
}
