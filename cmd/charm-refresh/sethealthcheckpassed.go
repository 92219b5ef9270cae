package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// newSetHealthCheckPassedCmd wires the charm-author-supplied
// next_unit_allowed_to_refresh setter onto the CLI. In the charm
// library proper this is called directly from the unit's own
// health-check code (e.g. from a charm's update-status or relation
// event handler, right after the unit confirms it is healthy
// post-refresh) rather than from a separate operator action; this
// subcommand exists so the setter has an exercised, documented call
// site outside the library's own tests.
func newSetHealthCheckPassedCmd() *cobra.Command {
	flags := &sharedFlags{}

	cmd := &cobra.Command{
		Use:   "set-health-check-passed",
		Short: "Record that this unit has confirmed health and the next unit may refresh",
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := flags.build()
			if err != nil {
				return err
			}
			if err := k.SetNextUnitAllowedToRefresh(context.Background()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "next_unit_allowed_to_refresh recorded for the current app controller revision")
			return nil
		},
	}
	flags.addFlags(cmd.Flags())
	return cmd
}
