package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mcfleet",
	Short: "Minecraft server fleet manager",
	Long:  "mcfleet supervises a fleet of Minecraft-flavored server processes and exposes them over a local socket.",
}

var clientSocketPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&clientSocketPath, "socket", "mcfleet.sock", "Path to the daemon's socket")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
