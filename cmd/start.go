package cmd

import (
	"fmt"

	"github.com/mcfleet/mcfleet/internal/protocol"
	"github.com/spf13/cobra"
)

var startWait bool

var startCmd = &cobra.Command{
	Use:   "start <unit-id>",
	Short: "Start a unit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSimpleCommand(protocol.Command{Type: protocol.CmdStart, ID: args[0], Wait: startWait})
	},
}

func init() {
	startCmd.Flags().BoolVar(&startWait, "wait", false, "Wait for ServerStarted before returning")
	rootCmd.AddCommand(startCmd)
}

// runSimpleCommand sends cmd and prints the daemon's direct response. When
// cmd.Wait is set it keeps reading and printing events until a terminal
// event or the daemon's stop broadcast arrives. It exits 1 on any
// connection failure.
func runSimpleCommand(cmd protocol.Command) error {
	s, err := dial(clientSocketPath, "mcfleet-cli")
	if err != nil {
		exitConnectionError(err)
		return nil
	}
	defer s.close()

	if err := s.send(cmd); err != nil {
		exitConnectionError(err)
		return nil
	}

	for {
		env, err := s.next()
		if err != nil {
			exitConnectionError(err)
			return nil
		}
		switch env.Type {
		case protocol.MsgResponse:
			if env.Response != nil {
				printResponse(*env.Response)
			}
			if !cmd.Wait {
				return nil
			}
		case protocol.MsgServerEvent:
			if env.Event != nil {
				printEvent(*env.Event)
				if isTerminalEvent(env.Event.Kind) {
					return nil
				}
			}
		case protocol.MsgDaemonEvent:
			fmt.Println("daemon stopped")
			return nil
		}
	}
}

func printResponse(r protocol.Response) {
	switch r.Type {
	case protocol.RespServerNotFound:
		fmt.Printf("unit %q not found\n", r.ID)
	case protocol.RespServerStarted:
		fmt.Printf("%s: started\n", r.ID)
	case protocol.RespServerStopped:
		fmt.Printf("%s: stopped\n", r.ID)
	case protocol.RespOk:
		// Acknowledged — a later event (if --wait) carries the real outcome.
	}
}

func printEvent(e protocol.ServerEvent) {
	if e.Error != "" {
		fmt.Printf("%s: %s: %s\n", e.UnitID, e.Kind, e.Error)
		return
	}
	if e.Action != "" {
		fmt.Printf("%s: %s\n", e.UnitID, e.Action)
		return
	}
	fmt.Printf("%s: %s\n", e.UnitID, e.Kind)
}

func isTerminalEvent(kind protocol.EventKind) bool {
	switch kind {
	case protocol.EventServerStarted, protocol.EventServerStopped, protocol.EventServerFailed,
		protocol.EventInstallationComplete, protocol.EventInstallationFailed,
		protocol.EventUpdateComplete, protocol.EventUpdateFailed:
		return true
	default:
		return false
	}
}
