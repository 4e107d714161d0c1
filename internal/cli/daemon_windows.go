//go:build windows

package cli

import (
	"os/exec"
)

// setSysProcAttr is a no-op on Windows; Setsid is Unix-only and detached
// start is already the default for console-less children.
func setSysProcAttr(cmd *exec.Cmd) {
}
