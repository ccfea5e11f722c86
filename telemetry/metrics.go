package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/lambdaterm/types"
)

// Metrics holds the instruments recorded during a run
type Metrics struct {
	terminateRequests metric.Int64Counter
	terminateDuration metric.Float64Histogram
	statusPolls       metric.Int64Counter
	waitOutcomes      metric.Int64Counter
	waitDuration      metric.Float64Histogram
}

// NewMetrics creates the instruments on meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.terminateRequests, err = meter.Int64Counter(
		"lambdaterm_terminate_requests_total",
		metric.WithDescription("Terminate requests sent, by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("create terminate_requests: %w", err)
	}

	m.terminateDuration, err = meter.Float64Histogram(
		"lambdaterm_terminate_duration_seconds",
		metric.WithDescription("Latency of terminate requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create terminate_duration: %w", err)
	}

	m.statusPolls, err = meter.Int64Counter(
		"lambdaterm_status_polls_total",
		metric.WithDescription("Instance status polls, by observed status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create status_polls: %w", err)
	}

	m.waitOutcomes, err = meter.Int64Counter(
		"lambdaterm_wait_outcomes_total",
		metric.WithDescription("Completion waits, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create wait_outcomes: %w", err)
	}

	m.waitDuration, err = meter.Float64Histogram(
		"lambdaterm_wait_duration_seconds",
		metric.WithDescription("Time spent waiting for termination"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create wait_duration: %w", err)
	}

	return m, nil
}

// RecordTerminate records one terminate request
func (m *Metrics) RecordTerminate(ctx context.Context, result string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("result", result))
	m.terminateRequests.Add(ctx, 1, attrs)
	m.terminateDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordPoll records one status poll
func (m *Metrics) RecordPoll(ctx context.Context, status types.InstanceStatus) {
	m.statusPolls.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

// RecordWait records the final wait outcome
func (m *Metrics) RecordWait(ctx context.Context, outcome types.WaitOutcome) {
	attrs := metric.WithAttributes(attribute.String("outcome", string(outcome.Kind)))
	m.waitOutcomes.Add(ctx, 1, attrs)
	if outcome.Kind != types.WaitSkipped {
		m.waitDuration.Record(ctx, outcome.Elapsed.Seconds(), attrs)
	}
}
