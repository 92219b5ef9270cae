// The charm-refresh command exposes the three operator actions
// (pre-refresh-check, force-refresh-start, resume-refresh) plus a status
// inspection command against a live cluster, the way cloudnative-pg's
// cmd/manager wraps its reconciler in cobra subcommands
// (backup/bootstrap/instance/...) behind a shared --log-level/
// --log-destination flag set.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/canonical/charm-refresh/internal/charmlog"
)

func main() {
	logFlags := &charmlog.Flags{}

	cmd := &cobra.Command{
		Use:          "charm-refresh [cmd]",
		Short:        "Coordinate an in-place refresh across a Juju Kubernetes application",
		SilenceUsage: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logFlags.Configure()
		},
	}
	logFlags.AddFlags(cmd.PersistentFlags())

	cmd.AddCommand(newPreRefreshCheckCmd())
	cmd.AddCommand(newForceRefreshStartCmd())
	cmd.AddCommand(newResumeRefreshCmd())
	cmd.AddCommand(newSetHealthCheckPassedCmd())
	cmd.AddCommand(newStatusCmd())

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
