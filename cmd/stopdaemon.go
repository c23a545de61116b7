package cmd

import (
	"github.com/mcfleet/mcfleet/internal/protocol"
	"github.com/spf13/cobra"
)

var stopDaemonCmd = &cobra.Command{
	Use:   "stop-daemon",
	Short: "Stop every running unit and shut down the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSimpleCommand(protocol.Command{Type: protocol.CmdStopDaemon})
	},
}

func init() {
	rootCmd.AddCommand(stopDaemonCmd)
}
