package osext

import (
	"os/exec"
	"syscall"
)

// KillAfterParent makes the OS kill the process started by cmd when the
// current process dies.
func KillAfterParent(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Pdeathsig = syscall.SIGKILL
}
