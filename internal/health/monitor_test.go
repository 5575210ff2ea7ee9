package health

import (
	"context"
	"testing"
	"time"

	"aish/internal/api"
	"aish/internal/bus"
	"aish/internal/config"
	"aish/internal/registry"
	"aish/internal/router"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRestarter struct {
	autoRestart bool
	restarted   chan string
}

func (f *fakeRestarter) AutoRestartEnabled(string) bool { return f.autoRestart }
func (f *fakeRestarter) Restart(name string) error {
	f.restarted <- name
	return nil
}

func newTestMonitor(t *testing.T, sup restarter) (*Monitor, *registry.Store) {
	t.Helper()
	cfg := &config.Config{Root: t.TempDir()}
	require.NoError(t, cfg.EnsureLayout())

	reg, _, err := registry.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	b := bus.New(cfg.QueuesDir())
	rt, err := router.New(reg, b)
	require.NoError(t, err)

	return New(reg, rt, sup), reg
}

func TestSweepSkipsRecentlyActiveTools(t *testing.T) {
	restarter := &fakeRestarter{autoRestart: true, restarted: make(chan string, 1)}
	m, reg := newTestMonitor(t, restarter)

	require.NoError(t, reg.Register(&api.CIEntry{
		Name: "claude-code", Type: api.CITypeTool, Status: api.ToolStatusRunning, DefinedBy: api.DefinedByUser,
	}))
	require.NoError(t, reg.SetContext("claude-code", api.ContextPatch{LastOutput: strPtr("hi")}))

	m.Sweep(context.Background())
	select {
	case <-restarter.restarted:
		t.Fatal("should not have probed a recently active tool")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSweepProbesAndRestartsSilentTool(t *testing.T) {
	restarter := &fakeRestarter{autoRestart: true, restarted: make(chan string, 1)}
	m, reg := newTestMonitor(t, restarter)

	require.NoError(t, reg.Register(&api.CIEntry{
		Name: "claude-code", Type: api.CITypeTool, Status: api.ToolStatusRunning,
		MessageFormat: api.FormatJSONSimple, Endpoint: "http://127.0.0.1:1", DefinedBy: api.DefinedByUser,
	}))

	m.mu.Lock()
	m.lastProbe["claude-code"] = time.Now().Add(-10 * time.Minute)
	m.mu.Unlock()

	m.Sweep(context.Background())

	select {
	case name := <-restarter.restarted:
		assert.Equal(t, "claude-code", name)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a restart request for the unresponsive tool")
	}
}

func strPtr(s string) *string { return &s }
