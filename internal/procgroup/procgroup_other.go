//go:build !unix

package procgroup

import (
	"os"
	"os/exec"
)

// Set is a no-op where process groups are unavailable.
func Set(cmd *exec.Cmd) {}

// Terminate interrupts the root process only.
func Terminate(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(os.Interrupt)
}

// Kill kills the root process only.
func Kill(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
