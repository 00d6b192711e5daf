package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/simbridge/simbridge/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "simbridge",
	Short: "Loopback byte-stream bridge for simulation harnesses",
	Long: `simbridge bridges a polling host process (typically a hardware
simulator) with a peer over loopback TCP.

Transfers are hybrid non-blocking/blocking: polls never stall while no
data is pending, but a block transfer that has made partial progress
always completes, so the peer never sees half a block.

Ports come from the <NAME>_PORT environment variable when set, else the
--port default.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.ConfigureRuntime()
	},
}

func main() {
	rootCmd.AddCommand(listenCmd, sendCmd, channelsCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
