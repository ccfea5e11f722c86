package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/yairfalse/lambdaterm/types"
)

func newWaitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "wait <instance-id>",
		Short: "Wait for an already-terminating instance to reach terminated",
		Long: `Poll one instance until it leaves the terminating status.

Exits non-zero if the final status is anything other than terminated or if
it is still terminating after TERMINATE_TIMEOUT seconds. Waiting is always
enabled for this command regardless of WAIT_FOR_TERMINATE.`,
		Example: `  lambdaterm wait abc123 --timeout 300`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()

			cred, err := types.NewCredential(a.cfg.Token)
			if err != nil {
				return err
			}

			waitOpts := a.options()
			waitOpts.Wait = true
			waitOpts.PublishInstanceID = false
			orch := a.orchestrator(waitOpts)

			return a.runActor(cmd.Context(), "wait", func(ctx context.Context) error {
				_, err := orch.Wait(ctx, args[0], cred)
				return err
			})
		},
	}
}
