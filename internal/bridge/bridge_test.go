package bridge

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"aish/internal/api"

	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestStdioModeEchoesContentToClient(t *testing.T) {
	port := freePort(t)
	b, err := Start(StartSpec{
		Executable: "cat",
		Mode:       ModeStdio,
		Port:       port,
		Delimiter:  []byte{'\n'},
	})
	require.NoError(t, err)
	t.Cleanup(func() { b.Stop() })

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()

	msg := api.Message{Content: "hello\n", Type: api.MessageChat}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	_, err = conn.Write(append(data, '\n'))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadBytes('\n')
	require.NoError(t, err)

	var frame outboundFrame
	require.NoError(t, json.Unmarshal(line, &frame))
	require.Equal(t, "stdout", frame.Stream)
	require.Contains(t, frame.Delta, "hello")
}

func TestDoneSentinelFollowsQuiescenceNotEOF(t *testing.T) {
	port := freePort(t)
	b, err := Start(StartSpec{
		Executable: "cat",
		Mode:       ModeStdio,
		Port:       port,
		Delimiter:  []byte{'\n'},
	})
	require.NoError(t, err)
	t.Cleanup(func() { b.Stop() })

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()

	msg := api.Message{Content: "hello", Type: api.MessageChat, Execute: true}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	_, err = conn.Write(append(data, '\n'))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	scanner := bufio.NewScanner(conn)
	var gotStdout, gotDone bool
	for scanner.Scan() {
		var frame outboundFrame
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &frame))
		if frame.Done {
			gotDone = true
			break
		}
		if frame.Stream == "stdout" {
			gotStdout = true
		}
	}
	require.NoError(t, scanner.Err())
	require.True(t, gotStdout, "expected at least one stdout delta before Done")
	require.True(t, gotDone, "cat never exits on its own; Done must come from output quiescence, not EOF")

	// cat is still alive past the sentinel: the connection would block
	// forever on a subsequent read if Done were mistaken for EOF.
	require.True(t, b.IsAlive())
}

func TestIsAliveReflectsChildState(t *testing.T) {
	port := freePort(t)
	b, err := Start(StartSpec{Executable: "cat", Mode: ModeStdio, Port: port})
	require.NoError(t, err)
	require.True(t, b.IsAlive())

	require.NoError(t, b.Stop())
	require.Eventually(t, func() bool { return !b.IsAlive() }, time.Second, 10*time.Millisecond)
}
