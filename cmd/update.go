package cmd

import (
	"github.com/mcfleet/mcfleet/internal/protocol"
	"github.com/spf13/cobra"
)

var updateVersion string

var updateCmd = &cobra.Command{
	Use:   "update <unit-id>",
	Short: "Update an installed unit to a newer artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		command := protocol.Command{Type: protocol.CmdUpdateServer, ID: args[0]}
		if updateVersion != "" {
			v := updateVersion
			command.Version = &v
		}
		return runSimpleCommand(command)
	},
}

func init() {
	updateCmd.Flags().StringVar(&updateVersion, "version", "", "Target Paper version (defaults to latest)")
	rootCmd.AddCommand(updateCmd)
}
