package cmd

import (
	"github.com/mcfleet/mcfleet/internal/protocol"
	"github.com/spf13/cobra"
)

var stopWait bool

var stopCmd = &cobra.Command{
	Use:   "stop <unit-id>",
	Short: "Stop a unit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSimpleCommand(protocol.Command{Type: protocol.CmdStop, ID: args[0], Wait: stopWait})
	},
}

func init() {
	stopCmd.Flags().BoolVar(&stopWait, "wait", false, "Wait for ServerStopped before returning")
	rootCmd.AddCommand(stopCmd)
}
