package router

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"aish/internal/api"
	"aish/internal/bus"
	"aish/internal/config"
	"aish/internal/registry"

	"github.com/stretchr/testify/require"
)

// startFakeBridge emulates the Socket Bridge's wire framing directly: it
// echoes the inbound content back as a stdout delta, then emits a Done
// sentinel, then keeps the connection open exactly like a tool whose
// process stays alive after answering.
func startFakeBridge(t *testing.T, respond func(content string) []string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		if !scanner.Scan() {
			return
		}
		var msg api.Message
		json.Unmarshal(scanner.Bytes(), &msg)

		for _, delta := range respond(msg.Content) {
			frame, _ := json.Marshal(bridgeFrame{Stream: "stdout", Delta: delta})
			conn.Write(append(frame, '\n'))
		}
		// Give a cancellation test room to fire before Done arrives.
		time.Sleep(300 * time.Millisecond)
		done, _ := json.Marshal(bridgeFrame{Done: true})
		conn.Write(append(done, '\n'))

		// Stay alive past the Done sentinel, like a REPL-style tool that
		// never closes its own socket after answering.
		time.Sleep(2 * time.Second)
	}()
	return ln.Addr().String()
}

func newToolClassRouter(t *testing.T, name, endpoint string) (*Router, *registry.Store) {
	t.Helper()
	cfg := &config.Config{Root: t.TempDir()}
	require.NoError(t, cfg.EnsureLayout())
	reg, _, err := registry.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	require.NoError(t, reg.Register(&api.CIEntry{
		Name: name, Type: api.CITypeTool, MessageFormat: "generic",
		Endpoint: "tcp://" + endpoint, DefinedBy: api.DefinedByUser,
	}))

	b := bus.New(cfg.QueuesDir())
	r, err := New(reg, b)
	require.NoError(t, err)
	return r, reg
}

func TestSendToolClassReturnsOnDoneSentinelNotEOF(t *testing.T) {
	addr := startFakeBridge(t, func(content string) []string {
		return []string{"hello"}
	})
	r, _ := newToolClassRouter(t, "echo-ci", addr)

	start := time.Now()
	resp, err := r.Send("echo-ci", api.Message{Content: "hi"})
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Equal(t, "hello", resp.Content)
	require.Less(t, elapsed, 2*time.Second, "send must not block for the fallback deadline once Done arrives")
}

func TestStreamToolClassRelaysDeltasUntilDone(t *testing.T) {
	addr := startFakeBridge(t, func(content string) []string {
		return []string{"he", "ll", "o"}
	})
	r, _ := newToolClassRouter(t, "echo-ci", addr)

	chunks := make(chan api.StreamChunk)
	var got string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for c := range chunks {
			if c.Done {
				return
			}
			got += c.Delta
		}
	}()

	err := r.SendStream(context.Background(), "echo-ci", api.Message{Content: "hi"}, chunks)
	<-done
	require.NoError(t, err)
	require.Equal(t, "hello", got)
}

func TestStreamToolClassStopsOnContextCancel(t *testing.T) {
	addr := startFakeBridge(t, func(content string) []string {
		return []string{"partial"}
	})
	r, _ := newToolClassRouter(t, "echo-ci", addr)

	ctx, cancel := context.WithCancel(context.Background())
	chunks := make(chan api.StreamChunk)
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.SendStream(ctx, "echo-ci", api.Message{Content: "hi"}, chunks)
	}()

	<-chunks // consume the first delta so the goroutine reaches its next read
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("SendStream did not observe context cancellation")
	}
}
