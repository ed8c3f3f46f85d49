//go:build !windows

package shell

import (
	"os/exec"
	"syscall"
)

// setDetached runs the process in a new session so it outlives the updater
func setDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}
