//go:build !linux

package bridge

import (
	"os/exec"
	"os/signal"
	"syscall"
)

func signalIgnore() {
	signal.Ignore(syscall.SIGPIPE)
}

// setPdeathsig is a no-op outside Linux. On these platforms nothing in the
// bridge makes the child notice its parent's death: no liveness check is
// run, and a child outlives a bridge that dies without calling Stop.
func setPdeathsig(cmd *exec.Cmd) {}
