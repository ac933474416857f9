//go:build !windows

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Isolate configures cmd to start as the leader of a new process group.
func Isolate(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// SharesGroup reports whether pid belongs to the caller's process group.
func SharesGroup(pid int) (bool, error) {
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		return false, fmt.Errorf("looking up process group of %d: %w", pid, err)
	}
	return pgid == unix.Getpgrp(), nil
}

// TerminateGroup asks every process in pid's group to exit (SIGTERM).
func TerminateGroup(pid int) error {
	return signalGroup(pid, unix.SIGTERM)
}

// KillGroup kills a process and all its children by sending SIGKILL
// to the process group.
func KillGroup(pid int) error {
	return signalGroup(pid, unix.SIGKILL)
}

// signalGroup delivers sig to the group of pid. A group that no longer
// exists is not an error: ESRCH comes from the group lookup and EPERM
// from a group whose last member vanished in between.
func signalGroup(pid int, sig unix.Signal) error {
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("looking up process group of %d: %w", pid, err)
	}
	if pgid == unix.Getpgrp() {
		return fmt.Errorf("%w: pid %d", ErrSameGroup, pid)
	}
	if err := unix.Kill(-pgid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) || errors.Is(err, unix.EPERM) {
			return nil
		}
		return fmt.Errorf("sending %v to process group %d: %w", sig, pgid, err)
	}
	return nil
}

// ExitCode returns the exit status of a finished process. A process
// killed by a signal reports the negated signal number (-9 for SIGKILL).
func ExitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -int(ws.Signal())
	}
	return state.ExitCode()
}
