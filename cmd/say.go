package cmd

import (
	"strings"

	"github.com/mcfleet/mcfleet/internal/protocol"
	"github.com/spf13/cobra"
)

var sayCmd = &cobra.Command{
	Use:   "say <unit-id> <message...>",
	Short: "Broadcast a chat message to a running unit",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args[1:], " ")
		return runSimpleCommand(protocol.Command{Type: protocol.CmdSendMessage, ID: args[0], Text: text})
	},
}

func init() {
	rootCmd.AddCommand(sayCmd)
}
