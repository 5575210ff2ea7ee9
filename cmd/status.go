package cmd

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"aish/internal/config"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report MCP server health and registry status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl := newClient()

			var health map[string]string
			healthErr := cl.get("/health", &health)

			out := cmd.OutOrStdout()
			if healthErr != nil {
				fmt.Fprintf(out, "server:   unreachable (%v)\n", healthErr)
				return nil
			}
			fmt.Fprintf(out, "server:   %s\n", health["status"])

			var regStatus map[string]int
			if err := cl.get("/tools/registry/status", &regStatus); err != nil {
				return err
			}
			fmt.Fprintf(out, "entries:  %d\n", regStatus["entry_count"])
			return nil
		},
	}
}

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the systemd-managed aish MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := exec.Command("systemctl", "--user", "restart", "aish").CombinedOutput()
			if err != nil {
				return fmt.Errorf("systemctl restart failed: %w: %s", err, out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "aish restarted")
			return nil
		},
	}
}

func newLogsCmd() *cobra.Command {
	var lines int
	c := &cobra.Command{
		Use:   "logs",
		Short: "Tail the MCP server's most recent log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			matches, err := filepath.Glob(filepath.Join(cfg.LogsDir(), "aish-*.log"))
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No log files found in", cfg.LogsDir())
				return nil
			}
			sort.Strings(matches)
			latest := matches[len(matches)-1]

			f, err := os.Open(latest)
			if err != nil {
				return err
			}
			defer f.Close()

			var tail []string
			scanner := bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				tail = append(tail, scanner.Text())
				if len(tail) > lines {
					tail = tail[1:]
				}
			}
			for _, line := range tail {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return scanner.Err()
		},
	}
	c.Flags().IntVar(&lines, "lines", 100, "number of trailing lines to print")
	return c
}

func newDebugMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "debug-mcp",
		Short: "Print the MCP server's advertised tool capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw map[string]interface{}
			if err := newClient().get("/capabilities", &raw); err != nil {
				return err
			}
			return printIndented(cmd, mustMarshal(raw))
		},
	}
}
