package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"aish/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) record(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func recordingStep(log *callLog, name string) Step {
	return Step{
		Name:  name,
		Start: func(ctx context.Context) error { log.record("start:" + name); return nil },
		Stop:  func(ctx context.Context) error { log.record("stop:" + name); return nil },
	}
}

func TestStartRunsCoreStepsInOrderThenPlatformSteps(t *testing.T) {
	log := &callLog{}
	cfg := &config.Config{Root: t.TempDir(), RegisterAI: true}
	c := New(cfg)
	c.AddStep(recordingStep(log, "registry"))
	c.AddStep(recordingStep(log, "bus"))
	c.AddPlatformStep(recordingStep(log, "numa"))

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, []string{"start:registry", "start:bus", "start:numa"}, log.snapshot())
}

func TestStartSkipsPlatformStepsWhenRegisterAIFalse(t *testing.T) {
	log := &callLog{}
	cfg := &config.Config{Root: t.TempDir(), RegisterAI: false}
	c := New(cfg)
	c.AddStep(recordingStep(log, "registry"))
	c.AddPlatformStep(recordingStep(log, "numa"))

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, []string{"start:registry"}, log.snapshot())
}

func TestStartAbortsOnCoreStepFailure(t *testing.T) {
	log := &callLog{}
	cfg := &config.Config{Root: t.TempDir(), RegisterAI: true}
	c := New(cfg)
	c.AddStep(recordingStep(log, "registry"))
	c.AddStep(Step{
		Name:  "bus",
		Start: func(ctx context.Context) error { return errors.New("boom") },
	})
	c.AddStep(recordingStep(log, "mcp"))

	err := c.Start(context.Background())
	assert.Error(t, err)
	assert.Equal(t, []string{"start:registry"}, log.snapshot())
}

func TestStartSkipsPlatformStepsWhenHealthCheckFails(t *testing.T) {
	log := &callLog{}
	cfg := &config.Config{Root: t.TempDir(), RegisterAI: true}
	c := New(cfg)
	c.AddStep(Step{
		Name:        "registry",
		Start:       func(ctx context.Context) error { log.record("start:registry"); return nil },
		HealthCheck: func(ctx context.Context) error { return errors.New("unhealthy") },
	})
	c.AddPlatformStep(recordingStep(log, "numa"))

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, []string{"start:registry"}, log.snapshot())
}

func TestStopReversesPlatformThenCoreOrder(t *testing.T) {
	log := &callLog{}
	cfg := &config.Config{Root: t.TempDir(), RegisterAI: true}
	c := New(cfg)
	c.AddStep(recordingStep(log, "registry"))
	c.AddStep(recordingStep(log, "bus"))
	c.AddPlatformStep(recordingStep(log, "numa"))

	require.NoError(t, c.Start(context.Background()))
	log.mu.Lock()
	log.calls = nil
	log.mu.Unlock()

	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, []string{"stop:numa", "stop:bus", "stop:registry"}, log.snapshot())
}

func TestStopContinuesPastAStepFailure(t *testing.T) {
	log := &callLog{}
	cfg := &config.Config{Root: t.TempDir(), RegisterAI: true}
	c := New(cfg)
	c.AddStep(recordingStep(log, "registry"))
	c.AddStep(Step{
		Name:  "bus",
		Start: func(ctx context.Context) error { return nil },
		Stop:  func(ctx context.Context) error { return errors.New("crash") },
	})

	require.NoError(t, c.Start(context.Background()))
	log.mu.Lock()
	log.calls = nil
	log.mu.Unlock()

	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, []string{"stop:registry"}, log.snapshot())
}
