//go:build unix

// Package procgroup starts helper processes in their own process group so
// the whole tree can be signalled at once.
package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
)

// Set configures cmd to start in a new process group.
func Set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// Terminate sends SIGTERM to the process group of cmd.
func Terminate(cmd *exec.Cmd) error { return signal(cmd, syscall.SIGTERM) }

// Kill sends SIGKILL to the process group of cmd.
func Kill(cmd *exec.Cmd) error { return signal(cmd, syscall.SIGKILL) }

// signal is a no-op for commands that never started or already exited.
func signal(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return err
	}
	if err := syscall.Kill(-pgid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}
