package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newForwardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forward <ci> <terminal>",
		Short: "Mirror a CI's traffic to an observing terminal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{"action": "add", "ai_name": args[0], "terminal": args[1]}
			if err := newClient().post("/tools/forward", req, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forwarding %s -> %s\n", args[0], args[1])
			return nil
		},
	}
}

func newUnforwardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unforward <ci>",
		Short: "Stop mirroring a CI's traffic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{"action": "remove", "ai_name": args[0]}
			if err := newClient().post("/tools/forward", req, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stopped forwarding %s\n", args[0])
			return nil
		},
	}
}

func newForwardsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forwards",
		Short: "List active forwards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{"action": "list"}
			var forwards map[string]string
			if err := newClient().post("/tools/forward", req, &forwards); err != nil {
				return err
			}
			if len(forwards) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No active forwards.")
				return nil
			}
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.Style().Options.DrawBorder = false
			t.Style().Options.SeparateColumns = false
			t.AppendHeader(table.Row{"CI", "TERMINAL"})
			for ci, terminal := range forwards {
				t.AppendRow(table.Row{ci, terminal})
			}
			t.Render()
			return nil
		},
	}
}
