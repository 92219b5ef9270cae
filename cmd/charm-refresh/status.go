package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canonical/charm-refresh/refresh"
)

func newStatusCmd() *cobra.Command {
	flags := &sharedFlags{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Compute the app and unit status this unit would currently report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := flags.build()
			if err != nil {
				return err
			}
			out, err := k.Next(context.Background(), refresh.Event{Kind: refresh.ConfigChanged})
			if err != nil {
				return err
			}
			nextAllowed, err := k.NextUnitAllowedToRefresh(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "next_unit_allowed_to_refresh: %t\n", nextAllowed)
			if out.AppStatus != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "app: %s %s\n", out.AppStatus.Name, out.AppStatus.Message)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "app: (unchanged)")
			}
			if out.UnitStatusHigher != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "unit: %s %s\n", out.UnitStatusHigher.Name, out.UnitStatusHigher.Message)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "unit: %s %s\n", out.UnitStatusLower.Name, out.UnitStatusLower.Message)
			}
			return nil
		},
	}
	flags.addFlags(cmd.Flags())
	return cmd
}
