//go:build windows

package process

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

// Isolate configures cmd to start in a new process group.
func Isolate(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
}

// SharesGroup always reports false: Windows has no process group ids to
// compare, Isolate is trusted instead.
func SharesGroup(int) (bool, error) {
	return false, nil
}

// TerminateGroup asks the process tree rooted at pid to exit.
// /T = terminate child processes (tree kill).
func TerminateGroup(pid int) error {
	if err := exec.Command("taskkill", "/T", "/PID", strconv.Itoa(pid)).Run(); err != nil {
		return fmt.Errorf("taskkill %d: %w", pid, err)
	}
	return nil
}

// KillGroup kills a process and all its children using taskkill.
// /F = force kill, /T = terminate child processes (tree kill).
func KillGroup(pid int) error {
	if err := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run(); err != nil {
		return fmt.Errorf("taskkill /F %d: %w", pid, err)
	}
	return nil
}

// ExitCode returns the exit status of a finished process.
func ExitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	return state.ExitCode()
}
