//go:build windows

package proc

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr detaches the child from the supervisor's console control
// group so Ctrl-C handling stays with the supervisor.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
