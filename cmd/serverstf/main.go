// Command serverstf is the entry point for the cache, poller, sync,
// websocket, and ui subcommands.
package main

import (
	"os"

	"github.com/spf13/cobra"

	cachecli "serverstf/internal/interfaces/cli/cache"
	pollercli "serverstf/internal/interfaces/cli/poller"
	synccli "serverstf/internal/interfaces/cli/sync"
	uicli "serverstf/internal/interfaces/cli/ui"
	websocketcli "serverstf/internal/interfaces/cli/websocket"
	serrors "serverstf/internal/shared/errors"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "serverstf",
		Short: "serverstf discovers, polls, caches, and fans out Source-engine server status",
		Long:  `serverstf is a Redis-backed cache, interest-driven poller pool, tag rule engine, and WebSocket fan-out gateway for Source-engine game server status.`,
	}

	rootCmd.AddCommand(
		cachecli.NewCommand(),
		pollercli.NewCommand(),
		synccli.NewCommand(),
		websocketcli.NewCommand(),
		uicli.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitStatus(err))
	}
}

// exitStatus maps a returned error to the process exit code: 0 OK,
// 1 fatal error, 2 unexpected error. Errors that never
// escape as a *serrors.Error (e.g. cobra's own usage errors) are treated as
// unexpected.
func exitStatus(err error) int {
	if kind, ok := serrors.KindOf(err); ok {
		return int(kind.ExitStatus())
	}
	return int(serrors.ExitUnexpected)
}
