//go:build linux

package bridge

import (
	"os/exec"
	"os/signal"
	"syscall"
)

func signalIgnore() {
	signal.Ignore(syscall.SIGPIPE)
}

// setPdeathsig asks the kernel to SIGKILL the child if this process dies
// first, so an abnormal parent exit never leaves an orphaned tool process
// behind (spec §4.4 "inherit PDEATHSIG on Linux").
func setPdeathsig(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Pdeathsig = syscall.SIGKILL
}
