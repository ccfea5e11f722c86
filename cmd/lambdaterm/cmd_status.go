package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yairfalse/lambdaterm/types"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "status <instance-id>",
		Short:   "Print the provider status of one instance",
		Example: `  lambdaterm status abc123`,
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

			return a.runActor(cmd.Context(), "status", func(ctx context.Context) error {
				inst, err := a.api.GetInstance(ctx, args[0], cred)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "%s %s\n", inst.ID, inst.Status)
				return nil
			})
		},
	}
}
