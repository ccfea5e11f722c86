package emitter

import (
	"context"

	"github.com/yairfalse/lambdaterm/telemetry"
)

// LogEmitter writes outputs to the structured log
type LogEmitter struct {
	logger *telemetry.Logger
}

// NewLogEmitter creates a log-backed emitter
func NewLogEmitter(logger *telemetry.Logger) *LogEmitter {
	if logger == nil {
		logger = telemetry.Nop()
	}
	return &LogEmitter{logger: logger}
}

func (l *LogEmitter) Emit(ctx context.Context, outputs ...Output) error {
	for _, o := range outputs {
		l.logger.WithContext(ctx).Info().
			Str("key", o.Key).
			Str("value", o.Value).
			Msg("output published")
	}
	return nil
}

func (l *LogEmitter) Close() error {
	return nil
}
