//go:build !windows

package cli

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr detaches the child from the controlling terminal so the
// background server survives the parent exiting.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}
