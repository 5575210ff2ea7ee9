// Package bridge implements the Socket Bridge (spec §4.4): it marries a
// child process's stdio or PTY to a TCP listening socket, so every
// wrapped tool behaves like a CI reachable at 127.0.0.1:<port>.
package bridge

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"aish/pkg/logging"

	"github.com/creack/pty"
)

const subsystem = "bridge"

// Mode selects how the Bridge talks to its child process.
type Mode string

const (
	ModeStdio Mode = "stdio"
	ModePTY   Mode = "pty"
)

// killGrace is how long Stop waits after SIGTERM before escalating to
// SIGKILL (spec §4.4 "stop() terminates the child (SIGTERM, then SIGKILL
// after grace)").
const killGrace = 5 * time.Second

// StartSpec describes the child process and adapter behavior to bridge.
type StartSpec struct {
	Executable string
	Args       []string
	Env        []string
	Mode       Mode
	Port       int
	Delimiter  []byte // appended to content when a message's execute flag is set
	CancelSeq  []byte // written to the child on a cancel message; defaults to ESC
}

// Bridge owns one child process and its TCP listener.
type Bridge struct {
	spec StartSpec
	cmd  *exec.Cmd

	childIn  io.WriteCloser
	childOut io.ReadCloser
	childErr io.ReadCloser
	ptyFile  *os.File

	listener net.Listener

	// exited is closed exactly once, by watchExit, after cmd.Wait
	// returns. watchExit is the sole caller of cmd.Wait: os/exec does not
	// document Cmd.Wait as safe to call concurrently, so Stop waits on
	// this channel instead of issuing its own Wait call.
	exited chan struct{}

	mu      sync.Mutex
	alive   bool
	curConn net.Conn
}

// Start launches the child process per spec.Mode and begins listening on
// 127.0.0.1:spec.Port for the single client the Socket Bridge contract
// allows at a time.
func Start(spec StartSpec) (*Bridge, error) {
	if len(spec.Delimiter) == 0 {
		spec.Delimiter = []byte{'\n'}
	}
	if len(spec.CancelSeq) == 0 {
		spec.CancelSeq = []byte{0x1b}
	}

	b := &Bridge{spec: spec, exited: make(chan struct{})}
	cmd := exec.Command(spec.Executable, spec.Args...)
	cmd.Env = spec.Env
	setPdeathsig(cmd)
	b.cmd = cmd

	switch spec.Mode {
	case ModePTY:
		f, err := pty.Start(cmd)
		if err != nil {
			return nil, fmt.Errorf("bridge: start pty: %w", err)
		}
		b.ptyFile = f
	case ModeStdio:
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("bridge: stdin pipe: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("bridge: stdout pipe: %w", err)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("bridge: stderr pipe: %w", err)
		}
		ignoreSIGPIPE()
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("bridge: start child: %w", err)
		}
		b.childIn, b.childOut, b.childErr = stdin, stdout, stderr
	default:
		return nil, fmt.Errorf("bridge: unknown mode %q", spec.Mode)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", spec.Port))
	if err != nil {
		b.killChild()
		return nil, fmt.Errorf("bridge: listen on %d: %w", spec.Port, err)
	}
	b.listener = ln
	b.alive = true

	go b.acceptLoop()
	go b.watchExit()

	logging.Info(subsystem, "bridge started for %s on port %d (%s mode)", spec.Executable, spec.Port, spec.Mode)
	return b, nil
}

// PID returns the child process's PID, or 0 if it hasn't started.
func (b *Bridge) PID() int {
	if b.cmd.Process == nil {
		return 0
	}
	return b.cmd.Process.Pid
}

// IsAlive reports whether the child process is still running.
func (b *Bridge) IsAlive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.alive
}

// Stop terminates the child with SIGTERM, escalating to SIGKILL after
// killGrace, and closes the listener.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	ln := b.listener
	b.listener = nil
	b.mu.Unlock()
	if ln != nil {
		ln.Close()
	}

	if b.cmd.Process == nil {
		return nil
	}
	b.cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-b.exited:
	case <-time.After(killGrace):
		b.cmd.Process.Kill()
		<-b.exited
	}
	return nil
}

func (b *Bridge) killChild() {
	if b.cmd.Process != nil {
		b.cmd.Process.Kill()
	}
}

func (b *Bridge) watchExit() {
	b.cmd.Wait()
	close(b.exited)
	b.mu.Lock()
	b.alive = false
	ln := b.listener
	b.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
	logging.Info(subsystem, "child for port %d exited", b.spec.Port)
}

func (b *Bridge) acceptLoop() {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			return // listener closed
		}
		b.mu.Lock()
		if b.curConn != nil {
			b.curConn.Close()
		}
		b.curConn = conn
		b.mu.Unlock()
		b.serveClient(conn)
	}
}

// ignoreSIGPIPE is called once per bridge start; signal.Ignore is
// idempotent so repeated calls across multiple bridges are harmless.
func ignoreSIGPIPE() {
	signalIgnore()
}

// childWriter returns the writer end the Bridge should push inbound
// client bytes to, regardless of mode.
func (b *Bridge) childWriter() io.Writer {
	if b.ptyFile != nil {
		return b.ptyFile
	}
	return b.childIn
}
