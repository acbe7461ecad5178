//go:build darwin
// +build darwin

package procrunner

import (
	"os/exec"
	"syscall"
)

// setProcessGroup makes cmd the leader of a new process group so that
// killProcessTree's negative-pid signal reaches every descendant.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
