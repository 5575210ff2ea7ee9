package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVersionCmd prints the CLI's build-time version and, when reachable,
// the MCP server's reported health, mirroring the CLI-plus-server version
// report pattern without depending on a protocol handshake this server
// doesn't implement.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the aish CLI version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "aish version %s\n", rootCmd.Version)

			var health map[string]string
			if err := newClient().get("/health", &health); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "server: (not running)")
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "server: %s at %s\n", health["status"], serverAddr)
		},
	}
}
