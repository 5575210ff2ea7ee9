// Package health implements the Health Monitor (spec §4.7): it observes
// per-CI activity and probes tools that have gone quiet, escalating to a
// restart request when a probe goes unanswered.
package health

import (
	"context"
	"sync"
	"time"

	"aish/internal/api"
	"aish/internal/registry"
	"aish/internal/router"
	"aish/pkg/logging"

	"golang.org/x/sync/semaphore"
)

const subsystem = "health"

const (
	// tickInterval is how often the monitor sweeps every tool CI (spec
	// §4.7 "one monitor tick per interval (default 60 seconds)").
	tickInterval = 60 * time.Second

	// silenceThreshold is how long a tool may go without activity before
	// it's probed (spec §4.7).
	silenceThreshold = 5 * time.Minute

	// probeTimeout bounds how long the monitor waits for a probe reply
	// before marking the CI unresponsive (spec §4.7).
	probeTimeout = 30 * time.Second

	// maxConcurrentProbes caps how many probes run at once, so a sweep
	// over many stalled tools doesn't itself become a thundering herd.
	maxConcurrentProbes = 8
)

// restarter is the subset of the Tool Supervisor the monitor needs,
// narrowed to avoid a hard dependency on the concrete supervisor type.
type restarter interface {
	AutoRestartEnabled(nameOrInstance string) bool
	Restart(nameOrInstance string) error
}

// Monitor ticks on an interval, probing any tool CI that's gone quiet.
type Monitor struct {
	reg *registry.Store
	rt  *router.Router
	sup restarter

	mu          sync.Mutex
	lastProbe   map[string]time.Time
	probeStatus map[string]string
}

// New constructs a Monitor. sup may be nil in configurations without a
// Tool Supervisor (auto-restart is then simply unavailable).
func New(reg *registry.Store, rt *router.Router, sup restarter) *Monitor {
	return &Monitor{
		reg:         reg,
		rt:          rt,
		sup:         sup,
		lastProbe:   make(map[string]time.Time),
		probeStatus: make(map[string]string),
	}
}

// ProbeStatus returns the most recent probe outcome recorded for name,
// or "" if it has never been probed.
func (m *Monitor) ProbeStatus(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.probeStatus[name]
}

// Run blocks, ticking every tickInterval until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep runs one probing pass immediately, exposed for callers (and
// tests) that don't want to wait for the next tick.
func (m *Monitor) Sweep(ctx context.Context) {
	tools := m.reg.List(api.EntryFilter{Type: api.CITypeTool})
	sem := semaphore.NewWeighted(maxConcurrentProbes)

	for _, entry := range tools {
		if entry.Status != api.ToolStatusRunning {
			continue
		}
		if m.silenceFor(entry.Name) <= silenceThreshold {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func(e *api.CIEntry) {
			defer sem.Release(1)
			m.probe(e.Name)
		}(entry)
	}
}

func (m *Monitor) silenceFor(name string) time.Duration {
	state, err := m.reg.GetContext(name)
	lastActivity := time.Time{}
	if err == nil {
		lastActivity = state.LastOutputAt
	}
	m.mu.Lock()
	last, probed := m.lastProbe[name]
	m.mu.Unlock()
	if probed && last.After(lastActivity) {
		lastActivity = last
	}
	if lastActivity.IsZero() {
		return 0
	}
	return time.Since(lastActivity)
}

func (m *Monitor) probe(name string) {
	m.mu.Lock()
	m.lastProbe[name] = time.Now()
	m.mu.Unlock()

	result := make(chan error, 1)
	go func() {
		_, err := m.rt.Send(name, api.Message{
			From:     api.SenderSystem,
			To:       name,
			Type:     api.MessageCommand,
			Content:  "ping",
			Priority: 0,
		})
		result <- err
	}()

	select {
	case err := <-result:
		if err != nil {
			m.onUnresponsive(name, err)
			return
		}
		m.setStatus(name, "healthy")
	case <-time.After(probeTimeout):
		m.onUnresponsive(name, context.DeadlineExceeded)
	}
}

func (m *Monitor) setStatus(name, status string) {
	m.mu.Lock()
	m.probeStatus[name] = status
	m.mu.Unlock()
}

func (m *Monitor) onUnresponsive(name string, cause error) {
	m.setStatus(name, "unresponsive")
	logging.Warn(subsystem, "%s is unresponsive: %v", name, cause)

	if m.sup == nil || !m.sup.AutoRestartEnabled(name) {
		return
	}
	if err := m.sup.Restart(name); err != nil {
		logging.Error(subsystem, err, "restart of %s after unresponsive probe failed", name)
	}
}
