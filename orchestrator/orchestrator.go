package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/yairfalse/lambdaterm/internal/emitter"
	"github.com/yairfalse/lambdaterm/policy"
	"github.com/yairfalse/lambdaterm/providers"
	"github.com/yairfalse/lambdaterm/telemetry"
	"github.com/yairfalse/lambdaterm/types"
	"github.com/yairfalse/lambdaterm/waiter"
)

// OutputInstanceID is the output key carrying the terminated id
const OutputInstanceID = "instance_id"

// Orchestrator coordinates guard → terminate → publish → wait
type Orchestrator struct {
	api      providers.InstanceAPI
	opts     Options
	emitter  emitter.Emitter
	guard    *policy.Guard
	metrics  Metrics
	clock    waiter.Clock
	progress io.Writer
	logger   *telemetry.Logger
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(api providers.InstanceAPI, opts Options) *Orchestrator {
	return &Orchestrator{
		api:      api,
		opts:     opts,
		metrics:  noopMetrics{},
		clock:    waiter.RealClock{},
		progress: io.Discard,
		logger:   telemetry.Nop(),
	}
}

// WithEmitter sets the output emitter. Required when publishing.
func (o *Orchestrator) WithEmitter(e emitter.Emitter) *Orchestrator {
	o.emitter = e
	return o
}

// WithGuard sets the termination guard
func (o *Orchestrator) WithGuard(g *policy.Guard) *Orchestrator {
	o.guard = g
	return o
}

// WithMetrics sets the metrics recorder
func (o *Orchestrator) WithMetrics(m Metrics) *Orchestrator {
	if m != nil {
		o.metrics = m
	}
	return o
}

// WithClock sets the clock used by the waiter
func (o *Orchestrator) WithClock(c waiter.Clock) *Orchestrator {
	if c != nil {
		o.clock = c
	}
	return o
}

// WithProgress sets the operator-facing progress writer
func (o *Orchestrator) WithProgress(w io.Writer) *Orchestrator {
	if w != nil {
		o.progress = w
	}
	return o
}

// WithLogger sets the logger
func (o *Orchestrator) WithLogger(l *telemetry.Logger) *Orchestrator {
	if l != nil {
		o.logger = l
	}
	return o
}

// Run executes one terminate run. It never exits the process: provider
// failures come back as *types.ProviderError and wait failures as
// *types.TimeoutError or *types.UnexpectedStateError.
func (o *Orchestrator) Run(ctx context.Context, req types.TerminationRequest, cred types.Credential) (*RunResult, error) {
	result := &RunResult{
		StartTime: time.Now(),
		Requested: req.InstanceIDs,
		Wait:      types.WaitOutcome{Kind: types.WaitSkipped},
	}

	if o.opts.PublishInstanceID && o.emitter == nil {
		return o.finish(result), &types.ConfigError{Field: "GITHUB_OUTPUT", Reason: "publishing requires an output channel"}
	}

	if err := o.guard.Check(ctx, policy.Input{
		InstanceIDs: req.InstanceIDs,
		Wait:        o.opts.Wait,
		Timestamp:   result.StartTime,
	}); err != nil {
		return o.finish(result), err
	}

	terminated, err := o.Terminate(ctx, req, cred)
	if err != nil {
		return o.finish(result), err
	}
	result.Terminated = terminated.InstanceIDs

	target, err := o.waitTarget(req, terminated)
	if err != nil {
		return o.finish(result), err
	}

	if o.opts.PublishInstanceID {
		if err := o.emitter.Emit(ctx, emitter.Output{Key: OutputInstanceID, Value: target}); err != nil {
			return o.finish(result), fmt.Errorf("publish instance id: %w", err)
		}
		result.PublishedID = target
	}

	if target == "" {
		return o.finish(result), nil
	}

	outcome, err := o.Wait(ctx, target, cred)
	result.Wait = outcome
	return o.finish(result), err
}

// Terminate sends the terminate request and records the result
func (o *Orchestrator) Terminate(ctx context.Context, req types.TerminationRequest, cred types.Credential) (*types.TerminationResult, error) {
	o.logger.LogTerminateRequested(ctx, req.InstanceIDs)

	start := time.Now()
	res, err := o.api.TerminateInstances(ctx, req, cred)
	d := time.Since(start)

	if err != nil {
		var perr *types.ProviderError
		if errors.As(err, &perr) {
			o.metrics.RecordTerminate(ctx, "rejected", d)
		} else {
			o.metrics.RecordTerminate(ctx, "error", d)
		}
		return nil, err
	}

	o.metrics.RecordTerminate(ctx, "accepted", d)
	o.logger.LogTerminateAccepted(ctx, res.InstanceIDs, d)
	return res, nil
}

// Wait runs the completion waiter for one instance
func (o *Orchestrator) Wait(ctx context.Context, instanceID string, cred types.Credential) (types.WaitOutcome, error) {
	w := waiter.New(o.statusFetcher(cred), waiter.Config{
		Enabled:      o.opts.Wait,
		Timeout:      o.opts.Timeout,
		PollInterval: o.opts.PollInterval,
		Progress:     o.progress,
		Clock:        o.clock,
		Logger:       o.logger,
		Recorder:     o.metrics,
	})

	outcome, err := w.Wait(ctx, instanceID)
	if outcome.Kind != types.WaitSkipped {
		o.metrics.RecordWait(ctx, outcome)
		o.logger.LogWaitOutcome(ctx, outcome)
	}
	return outcome, err
}

func (o *Orchestrator) statusFetcher(cred types.Credential) waiter.StatusFetcher {
	return func(ctx context.Context, instanceID string) (types.InstanceStatus, error) {
		inst, err := o.api.GetInstance(ctx, instanceID, cred)
		if err != nil {
			return "", err
		}
		return inst.Status, nil
	}
}

// waitTarget picks the id to publish and wait on: the first echoed id, or
// the first submitted id when the response echoes none and nothing is
// published.
func (o *Orchestrator) waitTarget(req types.TerminationRequest, res *types.TerminationResult) (string, error) {
	if id, ok := res.FirstInstanceID(); ok {
		return id, nil
	}
	if o.opts.PublishInstanceID {
		return "", errors.New("terminate response contained no instance ids")
	}
	return req.InstanceIDs.First(), nil
}

func (o *Orchestrator) finish(result *RunResult) *RunResult {
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	o.logger.Debug().
		Strs("requested", result.Requested).
		Strs("terminated", result.Terminated).
		Str("published_id", result.PublishedID).
		Str("wait", string(result.Wait.Kind)).
		Dur("duration", result.Duration).
		Msg("terminate run complete")

	return result
}
