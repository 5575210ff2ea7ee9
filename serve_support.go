package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"aish/internal/config"
)

// dailyLogPath names the MCP server's log file for today (spec §6.3: the
// logs directory holds one file per day).
func dailyLogPath(cfg *config.Config) string {
	return filepath.Join(cfg.LogsDir(), fmt.Sprintf("aish-%s.log", time.Now().Format("2006-01-02")))
}

// waitForSignal blocks until the process receives SIGINT or SIGTERM.
func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
