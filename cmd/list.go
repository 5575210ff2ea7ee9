package cmd

import (
	"encoding/json"
	"fmt"

	"aish/internal/api"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var (
		ciType   string
		asJSON   bool
	)
	c := &cobra.Command{
		Use:   "list",
		Short: "List registered CIs, optionally filtered by type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var req struct {
				Type string `json:"type,omitempty"`
			}
			req.Type = ciType

			var entries []*api.CIEntry
			if err := newClient().post("/tools/list-ais", req, &entries); err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			renderCITable(cmd, entries)
			return nil
		},
	}
	c.Flags().StringVar(&ciType, "type", "", "filter by CI type (greek|terminal|project|tool)")
	c.Flags().BoolVar(&asJSON, "json", false, "print raw JSON instead of a table")
	return c
}

// renderCITable prints a kubectl-style plain (no box-drawing) go-pretty
// table of CI entries.
func renderCITable(cmd *cobra.Command, entries []*api.CIEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No CIs registered.")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.Style().Options.DrawBorder = false
	t.Style().Options.SeparateColumns = false
	t.AppendHeader(table.Row{"NAME", "TYPE", "FORMAT", "DEFINED BY", "STATUS"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.Name, e.Type, e.MessageFormat, e.DefinedBy, e.Status})
	}
	t.Render()
}
