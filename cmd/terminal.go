package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aish/internal/api"
	"aish/internal/bridge"
	"aish/internal/config"
	"aish/internal/portalloc"

	"github.com/spf13/cobra"
)

// newWrapperCmd builds the shared implementation behind ci-terminal and
// ci-tool (spec §6.1): both allocate a port, bridge a child process onto
// it in the given mode, print the listening port, and block until the
// bridge's child exits or the process receives an interrupt.
func newWrapperCmd(use, short string, mode bridge.Mode) *cobra.Command {
	var (
		name      string
		delimiter string
	)
	c := &cobra.Command{
		Use:                use,
		Short:              short,
		Args:               cobra.MinimumNArgs(1),
		DisableFlagParsing: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("-n <name> is required")
			}
			delim, err := config.ParseDelimiter(delimiter)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ports := portalloc.New(api.PortModeDynamic, cfg.PortRangeLo, cfg.PortRangeHi)
			port, err := ports.Acquire(name, 0)
			if err != nil {
				return err
			}

			b, err := bridge.Start(bridge.StartSpec{
				Executable: args[0],
				Args:       args[1:],
				Env:        os.Environ(),
				Mode:       mode,
				Port:       port,
				Delimiter:  delim,
			})
			if err != nil {
				ports.Release(port, name)
				return fmt.Errorf("starting bridge for %s: %w", name, err)
			}
			defer ports.Release(port, name)

			fmt.Fprintf(cmd.OutOrStdout(), "%s listening on 127.0.0.1:%d (pid %d)\n", name, port, b.PID())

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			ticker := time.NewTicker(200 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-sigCh:
					b.Stop()
					return nil
				case <-ticker.C:
					if !b.IsAlive() {
						return nil
					}
				}
			}
		},
	}
	c.Flags().StringVarP(&name, "name", "n", "", "CI name this bridge instance represents")
	c.Flags().StringVarP(&delimiter, "delimiter", "d", "", "framing delimiter (default newline)")
	return c
}

func newCITerminalCmd() *cobra.Command {
	return newWrapperCmd("ci-terminal -- <cmd> [args...]", "Wrap a command's PTY as a reachable CI", bridge.ModePTY)
}

func newCIToolCmd() *cobra.Command {
	return newWrapperCmd("ci-tool -- <cmd> [args...]", "Wrap a command's stdio as a reachable CI", bridge.ModeStdio)
}
