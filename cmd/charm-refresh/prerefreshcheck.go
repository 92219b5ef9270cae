package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canonical/charm-refresh/refresh"
)

func newPreRefreshCheckCmd() *cobra.Command {
	flags := &sharedFlags{}

	cmd := &cobra.Command{
		Use:   "pre-refresh-check",
		Short: "Run the pre-refresh-check action against a live cluster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := flags.build()
			if err != nil {
				return err
			}
			out, err := k.Next(context.Background(), refresh.Event{
				Kind:   refresh.ActionEvent,
				Action: &refresh.ActionRequest{Name: "pre-refresh-check"},
			})
			if err != nil {
				return err
			}
			return printOutcome(cmd, out)
		},
	}
	flags.addFlags(cmd.Flags())
	return cmd
}

func printOutcome(cmd *cobra.Command, out refresh.Outcome) error {
	if out.AppStatus != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "app status: %s %s\n", out.AppStatus.Name, out.AppStatus.Message)
	}
	if out.UnitStatusHigher != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "unit status: %s %s\n", out.UnitStatusHigher.Name, out.UnitStatusHigher.Message)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "unit status: %s %s\n", out.UnitStatusLower.Name, out.UnitStatusLower.Message)
	}
	if out.ActionErr != nil {
		return out.ActionErr
	}
	if out.ActionResult != nil {
		fmt.Fprintln(cmd.OutOrStdout(), out.ActionResult.Result)
		for _, line := range out.ActionResult.Logs {
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
	}
	return nil
}
