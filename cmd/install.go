package cmd

import (
	"github.com/mcfleet/mcfleet/internal/protocol"
	"github.com/spf13/cobra"
)

var (
	installPath       string
	installUnitFile   string
	installVersion    string
	installKind       string
	installAcceptEula bool
	installDisplay    string
)

var installCmd = &cobra.Command{
	Use:   "install <unit-id>",
	Short: "Install a new unit by downloading and patching a server artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &protocol.InstallServerRequest{
			UnitID:       args[0],
			InstallPath:  installPath,
			UnitFilePath: installUnitFile,
			Kind:         installKind,
			AcceptEula:   installAcceptEula,
		}
		if installVersion != "" {
			v := installVersion
			req.Version = &v
		}
		if installDisplay != "" {
			d := installDisplay
			req.DisplayName = &d
		}
		return runSimpleCommand(protocol.Command{Type: protocol.CmdInstallServer, Install: req})
	},
}

func init() {
	installCmd.Flags().StringVar(&installPath, "path", "", "Directory to install the server into (required)")
	installCmd.Flags().StringVar(&installUnitFile, "unit-file", "", "Path to write the resulting unit file to (required)")
	installCmd.Flags().StringVar(&installVersion, "version", "", "Target Paper version (defaults to latest)")
	installCmd.Flags().StringVar(&installKind, "kind", "Paper", "Server kind")
	installCmd.Flags().BoolVar(&installAcceptEula, "accept-eula", false, "Write eula=true to the install directory")
	installCmd.Flags().StringVar(&installDisplay, "display-name", "", "Display name for the unit (defaults to unit id)")
	installCmd.MarkFlagRequired("path")
	installCmd.MarkFlagRequired("unit-file")
	rootCmd.AddCommand(installCmd)
}
