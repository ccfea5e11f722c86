// Package waiter polls an instance until it leaves the terminating status.
package waiter

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/lambdaterm/telemetry"
	"github.com/yairfalse/lambdaterm/types"
)

const (
	DefaultTimeout      = 600 * time.Second
	DefaultPollInterval = 5 * time.Second
)

// StatusFetcher returns the current provider status of one instance
type StatusFetcher func(ctx context.Context, instanceID string) (types.InstanceStatus, error)

// PollRecorder observes each poll. *telemetry.Provider satisfies it.
type PollRecorder interface {
	RecordPoll(ctx context.Context, status types.InstanceStatus)
}

// Config configures a Waiter
type Config struct {
	// Enabled gates polling. A disabled waiter makes no calls.
	Enabled      bool
	Timeout      time.Duration
	PollInterval time.Duration

	// Progress receives the operator-facing progress output. Nil discards it.
	Progress io.Writer
	Clock    Clock
	Logger   *telemetry.Logger
	Recorder PollRecorder
}

// Waiter runs the Idle → Polling → {Terminated, UnexpectedStatus, TimedOut}
// state machine for a single instance.
type Waiter struct {
	fetch        StatusFetcher
	enabled      bool
	timeout      time.Duration
	pollInterval time.Duration
	progress     io.Writer
	clock        Clock
	logger       *telemetry.Logger
	recorder     PollRecorder
	tracer       trace.Tracer
}

// New creates a Waiter. A negative Timeout or non-positive PollInterval
// falls back to the default.
func New(fetch StatusFetcher, cfg Config) *Waiter {
	w := &Waiter{
		fetch:        fetch,
		enabled:      cfg.Enabled,
		timeout:      cfg.Timeout,
		pollInterval: cfg.PollInterval,
		progress:     cfg.Progress,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		recorder:     cfg.Recorder,
		tracer:       otel.Tracer("lambdaterm/waiter"),
	}

	if w.timeout < 0 {
		w.timeout = DefaultTimeout
	}
	if w.pollInterval <= 0 {
		w.pollInterval = DefaultPollInterval
	}
	if w.progress == nil {
		w.progress = io.Discard
	}
	if w.clock == nil {
		w.clock = RealClock{}
	}
	if w.logger == nil {
		w.logger = telemetry.Nop()
	}

	return w
}

// Wait blocks until instanceID leaves the terminating status or the timeout
// elapses. The timeout is only checked while the status is still
// terminating: any other status ends the loop immediately.
//
// A TimedOut outcome comes with *types.TimeoutError and an UnexpectedStatus
// outcome with *types.UnexpectedStateError. Transport and provider errors
// from the fetcher are returned as-is and are not retried.
func (w *Waiter) Wait(ctx context.Context, instanceID string) (outcome types.WaitOutcome, err error) {
	outcome = types.WaitOutcome{Kind: types.WaitSkipped, InstanceID: instanceID}
	if !w.enabled {
		return outcome, nil
	}

	const spanName = "waiter.wait"
	attrs := []attribute.KeyValue{
		attribute.String("instance.id", instanceID),
		attribute.Float64("timeout_seconds", w.timeout.Seconds()),
	}
	ctx, span := w.tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
	defer span.End()
	w.logger.LogSpanStart(ctx, spanName, attrs...)
	defer func() { w.logger.LogSpanEnd(ctx, spanName, err) }()

	start := w.clock.Now()
	fmt.Fprintln(w.progress, "Waiting for instance to terminate...")

	var status types.InstanceStatus
	for {
		fmt.Fprint(w.progress, ".")

		status, err = w.fetch(ctx, instanceID)
		outcome.Polls++
		if err != nil {
			span.RecordError(err)
			return outcome, fmt.Errorf("poll instance %s: %w", instanceID, err)
		}

		elapsed := w.clock.Now().Sub(start)
		w.logger.LogStatusPoll(ctx, instanceID, status, elapsed)
		if w.recorder != nil {
			w.recorder.RecordPoll(ctx, status)
		}

		if !status.IsTerminating() {
			break
		}

		if elapsed > w.timeout {
			fmt.Fprintln(w.progress)
			outcome.Kind = types.WaitTimedOut
			outcome.Status = status
			outcome.Elapsed = elapsed
			span.SetAttributes(attribute.String("outcome", string(outcome.Kind)))
			return outcome, &types.TimeoutError{InstanceID: instanceID, Timeout: w.timeout, Elapsed: elapsed}
		}

		if err := w.clock.Sleep(ctx, w.pollInterval); err != nil {
			fmt.Fprintln(w.progress)
			return outcome, fmt.Errorf("wait for instance %s: %w", instanceID, err)
		}
	}

	outcome.Status = status
	outcome.Elapsed = w.clock.Now().Sub(start)
	fmt.Fprintln(w.progress)

	if !status.IsTerminated() {
		outcome.Kind = types.WaitUnexpectedStatus
		span.SetAttributes(attribute.String("outcome", string(outcome.Kind)))
		return outcome, &types.UnexpectedStateError{InstanceID: instanceID, Status: status}
	}

	outcome.Kind = types.WaitTerminated
	span.SetAttributes(attribute.String("outcome", string(outcome.Kind)))
	fmt.Fprintf(w.progress, "Instance terminated in %.2f seconds.\n", outcome.Elapsed.Seconds())

	return outcome, nil
}
