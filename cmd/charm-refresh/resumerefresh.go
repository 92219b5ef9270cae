package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/canonical/charm-refresh/internal/controller/action"
	"github.com/canonical/charm-refresh/refresh"
)

func newResumeRefreshCmd() *cobra.Command {
	flags := &sharedFlags{}
	var checkHealth bool

	cmd := &cobra.Command{
		Use:   "resume-refresh",
		Short: "Run the resume-refresh action against a live cluster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := flags.build()
			if err != nil {
				return err
			}
			out, err := k.Next(context.Background(), refresh.Event{
				Kind: refresh.ActionEvent,
				Action: &refresh.ActionRequest{
					Name: "resume-refresh",
					ResumeParams: action.ResumeRefreshParams{
						CheckHealthOfRefreshedUnits: checkHealth,
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
	cmd.Flags().BoolVar(&checkHealth, "check-health-of-refreshed-units", true, "require already-refreshed units to be healthy before advancing")
	return cmd
}
