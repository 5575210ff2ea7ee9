package portalloc

import (
	"net"
	"testing"

	"aish/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freeRange finds a small contiguous range of likely-free ports by binding
// and releasing three listeners back to back.
func freeRange(t *testing.T) (lo, hi int) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	lo = l.Addr().(*net.TCPAddr).Port
	l.Close()
	return lo, lo + 4
}

func TestAcquireReturnsBindablePort(t *testing.T) {
	lo, hi := freeRange(t)
	a := New(api.PortModeDynamic, lo, hi)

	port, err := a.Acquire("claude-code", 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, lo)
	assert.LessOrEqual(t, port, hi)

	leases := a.Leases()
	require.Len(t, leases, 1)
	assert.Equal(t, "claude-code", leases[0].Owner)
}

func TestAcquireDoesNotDoubleLeaseSamePort(t *testing.T) {
	lo, hi := freeRange(t)
	a := New(api.PortModeDynamic, lo, hi)

	seen := make(map[int]bool)
	for i := 0; i < hi-lo+1; i++ {
		port, err := a.Acquire("owner", 0)
		require.NoError(t, err)
		assert.False(t, seen[port], "port %d leased twice", port)
		seen[port] = true
	}
}

func TestAcquireExhaustedReturnsTypedError(t *testing.T) {
	lo, hi := freeRange(t)
	a := New(api.PortModeDynamic, lo, hi)
	retryDelay = 0

	for i := 0; i < hi-lo+1; i++ {
		_, err := a.Acquire("owner", 0)
		require.NoError(t, err)
	}

	_, err := a.Acquire("owner", 0)
	assert.ErrorIs(t, err, api.ErrPortsExhausted)
}

func TestReleaseRequiresMatchingOwner(t *testing.T) {
	lo, hi := freeRange(t)
	a := New(api.PortModeDynamic, lo, hi)
	port, err := a.Acquire("owner-a", 0)
	require.NoError(t, err)

	err = a.Release(port, "owner-b")
	assert.ErrorIs(t, err, api.ErrLeaseNotHeld)

	require.NoError(t, a.Release(port, "owner-a"))
	assert.Empty(t, a.Leases())
}

func TestRebuildRestoresLeasesFromLiveInstances(t *testing.T) {
	a := New(api.PortModeDynamic, 8400, 8449)
	a.Rebuild([]*api.ToolInstance{
		{Name: "claude-code", Port: 8401},
		{Name: "aider", Port: 8402},
	})

	leases := a.Leases()
	require.Len(t, leases, 2)

	err := a.Release(8401, "claude-code")
	assert.NoError(t, err)
}
