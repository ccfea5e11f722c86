package orchestrator

import (
	"context"
	"time"

	"github.com/yairfalse/lambdaterm/types"
)

// RunResult contains the results of one terminate run
type RunResult struct {
	StartTime   time.Time         `json:"start_time"`
	EndTime     time.Time         `json:"end_time"`
	Duration    time.Duration     `json:"duration"`
	Requested   types.InstanceSet `json:"requested"`
	Terminated  []string          `json:"terminated"`
	PublishedID string            `json:"published_id,omitempty"`
	Wait        types.WaitOutcome `json:"wait"`
}

// Options controls the optional stages of a run
type Options struct {
	// PublishInstanceID writes instance_id=<first echoed id> to the emitter
	PublishInstanceID bool
	// Wait enables the completion waiter
	Wait         bool
	Timeout      time.Duration
	PollInterval time.Duration
}

// Metrics records run telemetry. *telemetry.Provider satisfies it.
type Metrics interface {
	RecordTerminate(ctx context.Context, result string, d time.Duration)
	RecordPoll(ctx context.Context, status types.InstanceStatus)
	RecordWait(ctx context.Context, outcome types.WaitOutcome)
}

type noopMetrics struct{}

func (noopMetrics) RecordTerminate(context.Context, string, time.Duration) {}
func (noopMetrics) RecordPoll(context.Context, types.InstanceStatus)       {}
func (noopMetrics) RecordWait(context.Context, types.WaitOutcome)          {}
