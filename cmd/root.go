// Package cmd implements the aish command-line surface (spec §6.1): a thin
// HTTP client over the MCP Server's JSON API, plus two standalone wrapper
// commands (ci-terminal, ci-tool) that drive the Socket Bridge directly.
package cmd

import (
	"errors"
	"os"

	"aish/internal/api"

	"github.com/spf13/cobra"
)

var serverAddr string

// rootCmd is the entry point when aish is invoked with no subcommand, and
// also doubles as the `aish <ci-name> "message"` send shorthand (spec
// §6.1), since that form has no leading verb to dispatch on.
var rootCmd = &cobra.Command{
	Use:   "aish <ci-name> <message>",
	Short: "Talk to Companion Intelligences through the orchestration core",
	Long: `aish is the command-line surface for the CI orchestration core. Run
without a subcommand it sends a message to a named CI and prints the
reply; its subcommands manage the registry, tool lifecycle, and the
MCP server that backs them.`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE: func(c *cobra.Command, args []string) error {
		if len(args) == 0 {
			return c.Help()
		}
		if len(args) < 2 {
			return errors.New("usage: aish <ci-name> \"message\" [-x]")
		}
		return runSend(c, args[0], args[1])
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultServerAddr(), "MCP server base URL")
	registerSendFlags(rootCmd)

	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newToolsCmd())
	rootCmd.AddCommand(newForwardCmd())
	rootCmd.AddCommand(newUnforwardCmd())
	rootCmd.AddCommand(newForwardsCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newRestartCmd())
	rootCmd.AddCommand(newLogsCmd())
	rootCmd.AddCommand(newDebugMCPCmd())
	rootCmd.AddCommand(newCITerminalCmd())
	rootCmd.AddCommand(newCIToolCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// SetVersion injects the build-time version into the root command, called
// from main before Execute.
func SetVersion(v string) { rootCmd.Version = v }

// GetVersion returns the version previously set by SetVersion.
func GetVersion() string { return rootCmd.Version }

// Execute runs the root command and translates any returned error into the
// process exit code spec §6.1 documents.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps a command error to the process exit code api.ExitCode
// documents (spec §6.1). A request that never reached the server carries
// a concrete api error type already; one that did carries only the wire-
// level code string from the JSON envelope, so it's translated back into
// the matching concrete type first.
func getExitCode(err error) int {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return api.ExitCode(apiErr.asDomainError())
	}
	return api.ExitCode(err)
}
