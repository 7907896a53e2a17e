//go:build unix

package proc

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr gives the child its own process group so signals aimed at
// the supervisor's terminal do not reach it and the whole group can be
// enumerated for teardown.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
