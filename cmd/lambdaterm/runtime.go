package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	oklogrun "github.com/oklog/run"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/codes"

	"github.com/yairfalse/lambdaterm/internal/config"
	"github.com/yairfalse/lambdaterm/orchestrator"
	"github.com/yairfalse/lambdaterm/providers/lambda"
	"github.com/yairfalse/lambdaterm/telemetry"
)

const shutdownTimeout = 5 * time.Second

// app is the per-invocation wiring shared by all commands
type app struct {
	cfg       *config.Config
	logger    *telemetry.Logger
	telemetry *telemetry.Provider
	api       *lambda.Client
	stdout    io.Writer
}

func newApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, err := telemetry.NewConsoleLogger(cfg.OTEL.ServiceName, cmd.ErrOrStderr(), cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	tp, err := telemetry.NewProvider(cmd.Context(), telemetry.Config{
		ServiceName:    cfg.OTEL.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.OTEL.Endpoint,
		Insecure:       cfg.OTEL.Insecure,
		PushgatewayURL: cfg.OTEL.PushgatewayURL,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	api := lambda.NewClient(lambda.Config{
		BaseURL:   cfg.APIURL,
		UserAgent: "lambdaterm/" + version,
		Logger:    logger,
	})

	return &app{
		cfg:       cfg,
		logger:    logger,
		telemetry: tp,
		api:       api,
		stdout:    cmd.OutOrStdout(),
	}, nil
}

func (a *app) options() orchestrator.Options {
	return orchestrator.Options{
		PublishInstanceID: a.cfg.PublishInstanceID,
		Wait:              a.cfg.WaitForTerminate,
		Timeout:           a.cfg.TerminateTimeout,
		PollInterval:      a.cfg.PollInterval,
	}
}

func (a *app) orchestrator(opts orchestrator.Options) *orchestrator.Orchestrator {
	return orchestrator.NewOrchestrator(a.api, opts).
		WithMetrics(a.telemetry).
		WithLogger(a.logger).
		WithProgress(a.stdout)
}

// close flushes telemetry. Failures are logged, never returned: the run
// outcome decides the exit code.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("telemetry shutdown failed")
	}
}

// runActor runs fn under a lambdaterm.<command> span next to a signal
// handler; SIGINT or SIGTERM cancels fn's context.
func (a *app) runActor(ctx context.Context, command string, fn func(context.Context) error) (err error) {
	ctx, span := a.telemetry.Tracer().Start(ctx, "lambdaterm."+command)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g oklogrun.Group
	g.Add(func() error {
		return fn(ctx)
	}, func(error) {
		cancel()
	})
	g.Add(oklogrun.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	return g.Run()
}

func secondsToDuration(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}
