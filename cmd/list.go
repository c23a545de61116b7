package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/mcfleet/mcfleet/internal/protocol"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known units and their status",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := dial(clientSocketPath, "mcfleet-cli")
		if err != nil {
			exitConnectionError(err)
			return nil
		}
		defer s.close()

		if err := s.send(protocol.Command{Type: protocol.CmdList}); err != nil {
			exitConnectionError(err)
			return nil
		}

		env, err := s.next()
		if err != nil {
			exitConnectionError(err)
			return nil
		}
		if env.Type != protocol.MsgResponse || env.Response == nil {
			return fmt.Errorf("unexpected reply: %s", env.Type)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tKIND\tVERSION\tSTATUS\tPATH")
		for _, srv := range env.Response.Servers {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", srv.Name, srv.Kind, srv.Version, srv.Status, srv.Path)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
