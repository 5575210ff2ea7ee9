// Package lifecycle implements the Lifecycle Coordinator (spec §4.9): it
// sequences startup and shutdown of the orchestration core's own
// components and, once the core is healthy, the platform-wide
// supervisory AIs layered on top of it.
package lifecycle

import (
	"context"
	"sync"

	"aish/internal/config"
	"aish/pkg/logging"

	"github.com/coreos/go-systemd/v22/daemon"
)

const subsystem = "lifecycle"

// Step is one named unit of startup/shutdown work. HealthCheck may be nil
// for a step with no meaningful readiness probe.
type Step struct {
	Name        string
	Start       func(ctx context.Context) error
	Stop        func(ctx context.Context) error
	HealthCheck func(ctx context.Context) error
}

// Coordinator sequences core steps leaves-first, then platform-wide AI
// steps once every core step reports healthy (spec §4.9 Rules).
type Coordinator struct {
	cfg *config.Config

	mu            sync.Mutex
	steps         []Step // core components, started in order, stopped in reverse
	platformSteps []Step // platform-wide AIs, gated by REGISTER_AI
	startedCore   []Step
	startedPlat   []Step
}

// New constructs a Coordinator for cfg. REGISTER_AI (spec §6.4) gates
// whether AddPlatformStep entries ever run.
func New(cfg *config.Config) *Coordinator {
	return &Coordinator{cfg: cfg}
}

// AddStep registers an ordinary core component, appended to the leaves-
// first startup sequence (spec §4.9: "Registry Store, Port Allocator,
// Message Bus, MCP Server, Tool Supervisor").
func (c *Coordinator) AddStep(step Step) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, step)
}

// AddPlatformStep registers a platform-wide AI ("Numa"-class) step. It
// only runs once every core step has started and (if it defines one)
// passed its health check, and only when REGISTER_AI is true.
func (c *Coordinator) AddPlatformStep(step Step) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.platformSteps = append(c.platformSteps, step)
}

// Start runs every core step in registration order, then — if every
// health check passes and REGISTER_AI is set — every platform step in
// registration order. A core step failure aborts startup and returns the
// error; platform step failures are logged and do not abort (spec §4.9
// "best-effort teardown" extended here to best-effort platform startup,
// since a supervisory AI failing to launch must not take the core down
// with it).
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	steps := append([]Step(nil), c.steps...)
	platformSteps := append([]Step(nil), c.platformSteps...)
	c.mu.Unlock()

	for _, step := range steps {
		logging.Info(subsystem, "starting %s", step.Name)
		if err := step.Start(ctx); err != nil {
			return err
		}
		c.mu.Lock()
		c.startedCore = append(c.startedCore, step)
		c.mu.Unlock()
	}

	if !c.healthy(ctx, steps) {
		logging.Warn(subsystem, "not all core steps are healthy, skipping platform AI launch")
		return nil
	}

	if !c.cfg.RegisterAI {
		logging.Info(subsystem, "REGISTER_AI is false, tool supervisor runs without platform AIs")
		return nil
	}

	for _, step := range platformSteps {
		logging.Info(subsystem, "launching platform AI %s", step.Name)
		if err := step.Start(ctx); err != nil {
			logging.Error(subsystem, err, "platform AI %s failed to launch", step.Name)
			continue
		}
		c.mu.Lock()
		c.startedPlat = append(c.startedPlat, step)
		c.mu.Unlock()
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logging.Warn(subsystem, "systemd readiness notify failed: %v", err)
	} else if ok {
		logging.Debug(subsystem, "notified systemd: ready")
	}
	return nil
}

func (c *Coordinator) healthy(ctx context.Context, steps []Step) bool {
	for _, step := range steps {
		if step.HealthCheck == nil {
			continue
		}
		if err := step.HealthCheck(ctx); err != nil {
			logging.Warn(subsystem, "health check failed for %s: %v", step.Name, err)
			return false
		}
	}
	return true
}

// Stop tears down platform AIs first, then core steps, in strict reverse
// of their respective start order (spec §4.9 Rules). A crash in any step
// is logged but never prevents the remaining steps from running.
func (c *Coordinator) Stop(ctx context.Context) error {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err == nil && ok {
		logging.Debug(subsystem, "notified systemd: stopping")
	}

	c.mu.Lock()
	platform := append([]Step(nil), c.startedPlat...)
	core := append([]Step(nil), c.startedCore...)
	c.mu.Unlock()

	for i := len(platform) - 1; i >= 0; i-- {
		step := platform[i]
		logging.Info(subsystem, "stopping platform AI %s", step.Name)
		if err := step.Stop(ctx); err != nil {
			logging.Error(subsystem, err, "stopping platform AI %s failed", step.Name)
		}
	}

	for i := len(core) - 1; i >= 0; i-- {
		step := core[i]
		logging.Info(subsystem, "stopping %s", step.Name)
		if err := step.Stop(ctx); err != nil {
			logging.Error(subsystem, err, "stopping %s failed", step.Name)
		}
	}
	return nil
}
