package main

import (
	"context"
	"fmt"
	"os"

	"aish/cmd"
	"aish/internal/bus"
	"aish/internal/config"
	"aish/internal/health"
	"aish/internal/lifecycle"
	"aish/internal/mcpapi"
	"aish/internal/portalloc"
	"aish/internal/registry"
	"aish/internal/router"
	"aish/internal/supervisor"
	"aish/pkg/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

// runServe is aish's server entry point: it wires every core component in
// dependency order behind a Lifecycle Coordinator and blocks until
// interrupted. The cobra CLI surface (cmd.Execute) is a separate client
// process that talks to this server over HTTP; this binary doubles as
// both, selected by the AISH_SERVE environment variable so a single
// compiled artifact can run as either role.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureLayout(); err != nil {
		return fmt.Errorf("preparing layout: %w", err)
	}

	logFile, err := os.OpenFile(dailyLogPath(cfg), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()
	logging.Init(logging.LevelInfo, logFile)

	coord := lifecycle.New(cfg)

	reg, recovered, err := registry.Open(cfg)
	if err != nil {
		return fmt.Errorf("opening registry: %w", err)
	}
	if recovered != nil {
		logging.Warn("main", "registry recovered from backup: %s", recovered.RestoredFrom)
	}

	ports := portalloc.New(cfg.PortMode, cfg.PortRangeLo, cfg.PortRangeHi)
	b := bus.New(cfg.QueuesDir())
	rt, err := router.New(reg, b)
	if err != nil {
		return fmt.Errorf("constructing router: %w", err)
	}
	sup, err := supervisor.New(cfg, reg, ports)
	if err != nil {
		return fmt.Errorf("constructing supervisor: %w", err)
	}
	mon := health.New(reg, rt, sup)
	srv := mcpapi.New(cfg, reg, rt, sup, mon)

	coord.AddStep(lifecycle.Step{
		Name: "registry",
		Start: func(ctx context.Context) error { return nil },
		Stop:  func(ctx context.Context) error { return reg.Close() },
	})
	coord.AddStep(lifecycle.Step{
		Name:  "tool-supervisor",
		Start: func(ctx context.Context) error { return nil },
		Stop:  func(ctx context.Context) error { return sup.Close() },
	})

	var monCancel context.CancelFunc
	coord.AddStep(lifecycle.Step{
		Name: "health-monitor",
		Start: func(ctx context.Context) error {
			var monCtx context.Context
			monCtx, monCancel = context.WithCancel(context.Background())
			go mon.Run(monCtx)
			return nil
		},
		Stop: func(ctx context.Context) error {
			if monCancel != nil {
				monCancel()
			}
			return nil
		},
	})

	coord.AddStep(lifecycle.Step{
		Name:  "mcp-server",
		Start: func(ctx context.Context) error { return srv.Start() },
		Stop:  func(ctx context.Context) error { return srv.Shutdown(ctx) },
		HealthCheck: func(ctx context.Context) error {
			return nil
		},
	})

	ctx := context.Background()
	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("starting core: %w", err)
	}

	waitForSignal()
	return coord.Stop(ctx)
}

func main() {
	cmd.SetVersion(version)
	if os.Getenv("AISH_SERVE") == "true" {
		if err := runServe(); err != nil {
			fmt.Fprintln(os.Stderr, "aish:", err)
			os.Exit(1)
		}
		return
	}
	cmd.Execute()
}
