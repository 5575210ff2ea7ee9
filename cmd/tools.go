package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"aish/internal/api"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newToolsCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "tools",
		Short: "Manage tool-class CIs and their running instances",
	}
	c.AddCommand(newToolsListCmd())
	c.AddCommand(newToolsLaunchCmd())
	c.AddCommand(newToolsTerminateCmd())
	c.AddCommand(newToolsStatusCmd())
	c.AddCommand(newToolsInstancesCmd())
	c.AddCommand(newToolsDefineCmd())
	c.AddCommand(newToolsUndefineCmd())
	c.AddCommand(newToolsDefinedCmd())
	c.AddCommand(newToolsCapabilitiesCmd())
	return c
}

func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every tool-class CI entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []*api.CIEntry
			if err := newClient().get("/tools/ci-tools", &entries); err != nil {
				return err
			}
			renderCITable(cmd, entries)
			return nil
		},
	}
}

func newToolsLaunchCmd() *cobra.Command {
	var instance, session string
	c := &cobra.Command{
		Use:   "launch <name>",
		Short: "Launch a tool-class CI instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Port int `json:"port"`
			}
			req := map[string]string{"tool_name": args[0]}
			if session != "" {
				req["session_id"] = session
			}
			if instance != "" {
				req["instance_name"] = instance
			}

			sp := newSpinner(fmt.Sprintf(" launching %s...", args[0]))
			sp.Start()
			err := newClient().post("/tools/ci-tools/launch", req, &out)
			sp.Stop()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "launched %s on port %d\n", args[0], out.Port)
			return nil
		},
	}
	c.Flags().StringVar(&instance, "instance", "", "instance name")
	c.Flags().StringVar(&session, "session", "", "session id")
	return c
}

func newToolsTerminateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "terminate <name>",
		Short: "Terminate a running tool-class CI instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().post("/tools/ci-tools/terminate", map[string]string{"tool_name": args[0]}, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "terminated %s\n", args[0])
			return nil
		},
	}
}

func newToolsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [name]",
		Short: "Report running status of one or every tool-class instance",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/tools/ci-tools/status/"
			if len(args) == 1 {
				path += args[0]
			}
			var raw json.RawMessage
			if err := newClient().get(path, &raw); err != nil {
				return err
			}
			return printIndented(cmd, raw)
		},
	}
}

func newToolsInstancesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "instances",
		Short: "List every running tool instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var instances []*api.ToolInstance
			if err := newClient().get("/tools/ci-tools/instances", &instances); err != nil {
				return err
			}
			if len(instances) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No running instances.")
				return nil
			}
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.Style().Options.DrawBorder = false
			t.Style().Options.SeparateColumns = false
			t.AppendHeader(table.Row{"NAME", "TOOL", "PID", "PORT", "ADAPTER", "SESSION"})
			for _, inst := range instances {
				t.AppendRow(table.Row{inst.Name, inst.ToolName, inst.PID, inst.Port, inst.AdapterKind, inst.SessionID})
			}
			t.Render()
			return nil
		},
	}
}

func newToolsDefineCmd() *cobra.Command {
	var (
		adapterType  string
		executable   string
		port         string
		capabilities []string
		launchArgs   string
		env          []string
		healthCheck  string
		delimiter    string
		autoRestart  bool
	)
	c := &cobra.Command{
		Use:   "define <name>",
		Short: "Persist a new tool-class CI definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			envMap := map[string]string{}
			for _, kv := range env {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid --env value %q, expected K=V", kv)
				}
				envMap[k] = v
			}
			var launchArgList []string
			if launchArgs != "" {
				launchArgList = strings.Fields(launchArgs)
			}

			req := map[string]interface{}{
				"name":       args[0],
				"type":       adapterType,
				"executable": executable,
				"options": map[string]interface{}{
					"port":         port,
					"capabilities": capabilities,
					"launch_args":  launchArgList,
					"env":          envMap,
					"health_check": healthCheck,
					"delimiter":    delimiter,
					"auto_restart": autoRestart,
				},
			}
			if err := newClient().post("/tools/ci-tools/define", req, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "defined %s\n", args[0])
			return nil
		},
	}
	c.Flags().StringVar(&adapterType, "type", "generic", "adapter kind (generic|claude-code)")
	c.Flags().StringVar(&executable, "executable", "", "path to the executable")
	c.Flags().StringVar(&port, "port", "auto", "\"auto\" or a literal port number")
	c.Flags().StringSliceVar(&capabilities, "capabilities", nil, "comma-separated capability list")
	c.Flags().StringVar(&launchArgs, "launch-args", "", "space-separated launch arguments")
	c.Flags().StringArrayVar(&env, "env", nil, "K=V environment variable, may be repeated")
	c.Flags().StringVar(&healthCheck, "health-check", "", "health check command")
	c.Flags().StringVar(&delimiter, "delimiter", "", "framing delimiter (default newline)")
	c.Flags().BoolVar(&autoRestart, "auto-restart", false, "restart the instance if it exits unexpectedly")
	c.MarkFlagRequired("executable")
	return c
}

func newToolsUndefineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undefine <name>",
		Short: "Remove a persisted tool-class CI definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().delete("/tools/ci-tools/"+args[0], nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "undefined %s\n", args[0])
			return nil
		},
	}
}

func newToolsDefinedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "defined [name]",
		Short: "Show one or every persisted tool-class CI definition",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				var entry api.CIEntry
				if err := newClient().get("/tools/ci/"+args[0], &entry); err != nil {
					return err
				}
				renderCITable(cmd, []*api.CIEntry{&entry})
				return nil
			}
			var entries []*api.CIEntry
			if err := newClient().get("/tools/ci-tools", &entries); err != nil {
				return err
			}
			renderCITable(cmd, entries)
			return nil
		},
	}
}

func newToolsCapabilitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities <name>",
		Short: "Show a tool-class CI's declared capabilities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var caps []string
			if err := newClient().get("/tools/ci-tools/capabilities/"+args[0], &caps); err != nil {
				return err
			}
			for _, cap := range caps {
				fmt.Fprintln(cmd.OutOrStdout(), cap)
			}
			return nil
		},
	}
}
