//go:build windows

package sandbox

import (
	"os/exec"
	"syscall"
)

// setupProcessGroup puts the child in a new process group on Windows.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags = syscall.CREATE_NEW_PROCESS_GROUP
}

// killProcessGroup kills the child process. Windows has no grouped
// SIGKILL; descendants are reparented and bounded by their own I/O.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
