package telemetry

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/lambdaterm/types"
)

// OTELHook adds trace and span IDs to every log entry
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL integration
type Logger struct {
	zerolog.Logger
}

// NewConsoleLogger creates a human-readable logger for interactive and CI use
func NewConsoleLogger(service string, w io.Writer, level string) (*Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return newLogger(service, zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}, lvl), nil
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

func newLogger(service string, w io.Writer, level zerolog.Level) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// WithContext returns a logger with context (for trace propagation)
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// LogSpanStart logs the start of a span with attributes
func (l *Logger) LogSpanStart(ctx context.Context, spanName string, attrs ...attribute.KeyValue) {
	logger := l.WithContext(ctx)

	event := logger.Debug().Str("span_name", spanName)
	for _, attr := range attrs {
		event = addAttributeToEvent(event, attr)
	}
	event.Msg("span started")
}

// LogSpanEnd logs the end of a span with results
func (l *Logger) LogSpanEnd(ctx context.Context, spanName string, err error) {
	logger := l.WithContext(ctx)

	if err != nil {
		logger.Error().
			Err(err).
			Str("span_name", spanName).
			Msg("span failed")
	} else {
		logger.Debug().
			Str("span_name", spanName).
			Msg("span completed")
	}
}

// Helper to convert OTEL attributes to zerolog fields
func addAttributeToEvent(event *zerolog.Event, attr attribute.KeyValue) *zerolog.Event {
	key := string(attr.Key)

	switch attr.Value.Type() {
	case attribute.STRING:
		return event.Str(key, attr.Value.AsString())
	case attribute.INT64:
		return event.Int64(key, attr.Value.AsInt64())
	case attribute.FLOAT64:
		return event.Float64(key, attr.Value.AsFloat64())
	case attribute.BOOL:
		return event.Bool(key, attr.Value.AsBool())
	case attribute.STRINGSLICE:
		return event.Strs(key, attr.Value.AsStringSlice())
	default:
		return event.Str(key, attr.Value.Emit())
	}
}

// Convenience methods for termination operations

func (l *Logger) LogTerminateRequested(ctx context.Context, ids types.InstanceSet) {
	l.WithContext(ctx).Info().
		Strs("instance_ids", ids).
		Str("operation", "terminate").
		Msg("requesting instance termination")
}

func (l *Logger) LogTerminateAccepted(ctx context.Context, ids []string, d time.Duration) {
	l.WithContext(ctx).Info().
		Strs("instance_ids", ids).
		Dur("duration", d).
		Str("operation", "terminate").
		Msg("termination accepted")
}

func (l *Logger) LogProviderError(ctx context.Context, operation string, err *types.ProviderError) {
	l.WithContext(ctx).Error().
		Int("status_code", err.StatusCode).
		Str("error_code", err.Code).
		Str("suggestion", err.Suggestion).
		Str("operation", operation).
		Msg(err.Message)
}

func (l *Logger) LogStatusPoll(ctx context.Context, instanceID string, status types.InstanceStatus, elapsed time.Duration) {
	l.WithContext(ctx).Debug().
		Str("instance_id", instanceID).
		Str("status", string(status)).
		Dur("elapsed", elapsed).
		Str("operation", "wait").
		Msg("polled instance status")
}

func (l *Logger) LogWaitOutcome(ctx context.Context, outcome types.WaitOutcome) {
	level := zerolog.InfoLevel
	if !outcome.Succeeded() {
		level = zerolog.ErrorLevel
	}
	l.WithContext(ctx).WithLevel(level).
		Str("instance_id", outcome.InstanceID).
		Str("outcome", string(outcome.Kind)).
		Str("status", string(outcome.Status)).
		Int("polls", outcome.Polls).
		Dur("elapsed", outcome.Elapsed).
		Str("operation", "wait").
		Msg("wait finished")
}
