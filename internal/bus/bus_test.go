package bus

import (
	"errors"
	"sync"
	"testing"
	"time"

	"aish/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	b := New(t.TempDir())
	t.Cleanup(func() {
		b.mu.Lock()
		names := make([]string, 0, len(b.queues))
		for n := range b.queues {
			names = append(names, n)
		}
		b.mu.Unlock()
		for _, n := range names {
			b.Destroy(n)
		}
	})
	return b
}

func TestSendReceiveRoundTrip(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, b.Create("rhetor"))

	require.NoError(t, b.Send("rhetor", api.Message{From: "numa", To: "rhetor", Content: "hi"}))

	msg, ok, err := b.Receive("rhetor", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hi", msg.Content)
}

func TestReceiveTimesOutWhenEmpty(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, b.Create("rhetor"))

	_, ok, err := b.Receive("rhetor", 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSendToUnknownQueueIsNotFound(t *testing.T) {
	b := newTestBus(t)
	err := b.Send("nobody", api.Message{})
	assert.True(t, api.IsNotFound(err))
}

func TestSendHigherPriorityDequeuesFirst(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, b.Create("rhetor"))

	require.NoError(t, b.Send("rhetor", api.Message{Content: "low", Priority: 1}))
	require.NoError(t, b.Send("rhetor", api.Message{Content: "high", Priority: 10}))
	require.NoError(t, b.Send("rhetor", api.Message{Content: "low-2", Priority: 1}))

	first, _, err := b.Receive("rhetor", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "high", first.Content)

	second, _, err := b.Receive("rhetor", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "low", second.Content, "equal priority dequeues in arrival order")
}

func TestQueueFullIsReturnedSynchronously(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, b.Create("rhetor"))

	b.mu.Lock()
	q := b.queues["rhetor"]
	b.mu.Unlock()
	q.mu.Lock()
	for i := 0; i < maxQueueSize; i++ {
		q.seq++
		q.heap = append(q.heap, queuedMessage{msg: api.Message{Content: "x"}, seq: q.seq})
	}
	q.mu.Unlock()

	err := b.Send("rhetor", api.Message{Content: "overflow"})
	var qf *api.QueueFullError
	assert.ErrorAs(t, err, &qf)
}

func TestConcurrentSendsNeverOverCommitCapacity(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, b.Create("rhetor"))

	b.mu.Lock()
	q := b.queues["rhetor"]
	b.mu.Unlock()
	q.mu.Lock()
	for i := 0; i < maxQueueSize-1; i++ {
		q.seq++
		q.heap = append(q.heap, queuedMessage{msg: api.Message{Content: "x"}, seq: q.seq})
	}
	q.mu.Unlock()

	const racers = 8
	results := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- b.Send("rhetor", api.Message{Content: "racer"})
		}()
	}
	wg.Wait()
	close(results)

	var accepted, full int
	for err := range results {
		var qf *api.QueueFullError
		switch {
		case err == nil:
			accepted++
		case errors.As(err, &qf):
			full++
		default:
			require.NoError(t, err)
		}
	}

	assert.Equal(t, 1, accepted, "exactly one slot was free")
	assert.Equal(t, racers-1, full, "the rest must see queue_full, not be dropped silently")

	// Give readLoop a moment to convert the accepted reservation into a
	// committed heap entry before asserting the final count.
	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.heap) == maxQueueSize
	}, time.Second, 10*time.Millisecond)
}
