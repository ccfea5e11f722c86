package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/yairfalse/lambdaterm/internal/emitter"
	"github.com/yairfalse/lambdaterm/orchestrator"
	"github.com/yairfalse/lambdaterm/policy"
)

func newTerminateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "terminate",
		Short: "Terminate the instances in INSTANCE_ID",
		Long: `Send one terminate request for every id in INSTANCE_ID.

On success the first terminated id is written to GITHUB_OUTPUT as
instance_id=<id> (disable with --publish=false). With --wait or
WAIT_FOR_TERMINATE=true, the command then polls that instance until it
reports terminated, fails on any other status, and gives up after
TERMINATE_TIMEOUT seconds.`,
		Example: `  INSTANCE_ID=abc123 LAMBDA_TOKEN=... lambdaterm terminate
  lambdaterm terminate --instance-ids abc123,def456 --wait --timeout 900
  lambdaterm terminate --publish=false --policy protect.rego`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTerminate(cmd, opts)
		},
	}
}

func runTerminate(cmd *cobra.Command, opts *rootOptions) error {
	a, err := newApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.close()

	req, cred, err := orchestrator.BuildRequest(a.cfg)
	if err != nil {
		return err
	}

	orch := a.orchestrator(a.options())

	if a.cfg.PublishInstanceID {
		out, err := emitter.NewGitHubOutput(a.cfg.OutputPath)
		if err != nil {
			return err
		}
		emit := emitter.NewMultiEmitter(out, emitter.NewLogEmitter(a.logger))
		defer func() { _ = emit.Close() }()
		orch.WithEmitter(emit)
	}

	return a.runActor(cmd.Context(), "terminate", func(ctx context.Context) error {
		if a.cfg.PolicyPath != "" {
			guard, err := policy.LoadGuard(ctx, a.cfg.PolicyPath, a.logger)
			if err != nil {
				return err
			}
			orch.WithGuard(guard)
		}

		_, err := orch.Run(ctx, req, cred)
		return err
	})
}
