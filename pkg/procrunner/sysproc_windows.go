//go:build windows
// +build windows

package procrunner

import "os/exec"

// setProcessGroup is a no-op on Windows; killProcessTree falls back to
// killing the direct child process only.
func setProcessGroup(cmd *exec.Cmd) {
}
