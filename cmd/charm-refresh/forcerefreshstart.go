package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/canonical/charm-refresh/internal/controller/action"
	"github.com/canonical/charm-refresh/refresh"
)

func newForceRefreshStartCmd() *cobra.Command {
	flags := &sharedFlags{}
	var checkWorkloadContainer, checkCompatibility, runPreRefreshChecks bool

	cmd := &cobra.Command{
		Use:   "force-refresh-start",
		Short: "Run the force-refresh-start action against a live cluster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := flags.build()
			if err != nil {
				return err
			}
			out, err := k.Next(context.Background(), refresh.Event{
				Kind: refresh.ActionEvent,
				Action: &refresh.ActionRequest{
					Name: "force-refresh-start",
					ForceParams: action.ForceRefreshStartParams{
						CheckWorkloadContainer: checkWorkloadContainer,
						CheckCompatibility:     checkCompatibility,
						RunPreRefreshChecks:    runPreRefreshChecks,
					},
				},
			})
			if err != nil {
				return err
			}
			return printOutcome(cmd, out)
		},
	}
	flags.addFlags(cmd.Flags())
	cmd.Flags().BoolVar(&checkWorkloadContainer, "check-workload-container", true, "require the workload container digest to match the pin")
	cmd.Flags().BoolVar(&checkCompatibility, "check-compatibility", true, "require the compatibility check to pass")
	cmd.Flags().BoolVar(&runPreRefreshChecks, "run-pre-refresh-checks", true, "run the charm's pre-refresh hooks")
	return cmd
}
