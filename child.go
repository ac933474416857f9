package pixelsafe

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/alnah/go-pixelsafe/internal/process"
)

// Process is a running converter child. The Controller owns it from
// Start until Use returns.
type Process interface {
	PID() int

	// Stdin receives the untrusted document.
	Stdin() io.WriteCloser
	// Stdout carries the framed pixel stream.
	Stdout() io.ReadCloser
	// Stderr is nil unless the child was started with CaptureStderr.
	Stderr() io.Reader

	// Exited reports whether the child has exited. It never blocks.
	Exited() bool
	// Wait waits at most timeout for the child to exit and returns its
	// exit status. It returns ErrWaitTimeout when the child is still
	// running.
	Wait(timeout time.Duration) (int, error)

	// Terminate asks the whole process group to stop.
	Terminate() error
	// Kill forcefully stops the whole process group.
	Kill() error
	// KillProcess forcefully stops the child alone, for when its group
	// must not be signaled.
	KillProcess() error

	// Close releases every stream still held by the parent. It is
	// idempotent.
	Close() error
}

// StartOptions control how a converter child is started.
type StartOptions struct {
	// CaptureStderr keeps the child's stderr for debug logging. When
	// false it goes to the null device.
	CaptureStderr bool
}

// Child is the exec.Cmd-backed Process. Its streams are raw pipes owned
// by the parent, so reaping the child never closes them behind a reader.
type Child struct {
	cmd    *exec.Cmd
	stdin  *os.File
	stdout *os.File
	stderr *os.File

	done      chan struct{}
	exitCode  int
	waitErr   error
	closeOnce sync.Once
}

// Compile-time interface check.
var _ Process = (*Child)(nil)

// StartCommand starts cmd in a new process group with pipes for stdin,
// stdout and, optionally, stderr. cmd must not have its streams set.
func StartCommand(cmd *exec.Cmd, opts StartOptions) (*Child, error) {
	if cmd.Stdin != nil || cmd.Stdout != nil || cmd.Stderr != nil {
		return nil, errors.New("pixelsafe: command streams are managed by StartCommand")
	}

	var parentEnds, childEnds []*os.File
	closeAll := func(files []*os.File) {
		for _, f := range files {
			_ = f.Close()
		}
	}
	pipe := func() (r, w *os.File, err error) {
		r, w, err = os.Pipe()
		if err != nil {
			return nil, nil, fmt.Errorf("creating pipe: %w", err)
		}
		return r, w, nil
	}

	stdinR, stdinW, err := pipe()
	if err != nil {
		return nil, err
	}
	parentEnds, childEnds = append(parentEnds, stdinW), append(childEnds, stdinR)

	stdoutR, stdoutW, err := pipe()
	if err != nil {
		closeAll(parentEnds)
		closeAll(childEnds)
		return nil, err
	}
	parentEnds, childEnds = append(parentEnds, stdoutR), append(childEnds, stdoutW)

	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW

	var stderrR *os.File
	if opts.CaptureStderr {
		r, w, err := pipe()
		if err != nil {
			closeAll(parentEnds)
			closeAll(childEnds)
			return nil, err
		}
		stderrR = r
		parentEnds, childEnds = append(parentEnds, r), append(childEnds, w)
		cmd.Stderr = w
	}

	process.Isolate(cmd)
	if err := cmd.Start(); err != nil {
		closeAll(parentEnds)
		closeAll(childEnds)
		return nil, fmt.Errorf("starting %s: %w", cmd.Path, err)
	}
	// The child holds its own copies now.
	closeAll(childEnds)

	c := &Child{
		cmd:    cmd,
		stdin:  stdinW,
		stdout: stdoutR,
		stderr: stderrR,
		done:   make(chan struct{}),
	}
	go c.reap()
	return c, nil
}

func (c *Child) reap() {
	err := c.cmd.Wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		c.waitErr = err
	}
	c.exitCode = process.ExitCode(c.cmd.ProcessState)
	close(c.done)
}

func (c *Child) PID() int { return c.cmd.Process.Pid }

func (c *Child) Stdin() io.WriteCloser { return c.stdin }

func (c *Child) Stdout() io.ReadCloser { return c.stdout }

func (c *Child) Stderr() io.Reader {
	if c.stderr == nil {
		return nil
	}
	return c.stderr
}

func (c *Child) Exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Child) Wait(timeout time.Duration) (int, error) {
	if !c.Exited() {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-c.done:
		case <-timer.C:
			return 0, fmt.Errorf("%w after %s (PID: %d)", ErrWaitTimeout, timeout, c.PID())
		}
	}
	if c.waitErr != nil {
		return 0, fmt.Errorf("waiting for PID %d: %w", c.PID(), c.waitErr)
	}
	return c.exitCode, nil
}

// Terminate and Kill never signal a reaped child: its pid may have been
// reused.
func (c *Child) Terminate() error {
	if c.Exited() {
		return nil
	}
	return process.TerminateGroup(c.PID())
}

func (c *Child) Kill() error {
	if c.Exited() {
		return nil
	}
	return process.KillGroup(c.PID())
}

func (c *Child) KillProcess() error {
	if c.Exited() {
		return nil
	}
	if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing PID %d: %w", c.PID(), err)
	}
	return nil
}

func (c *Child) Close() error {
	var errs []error
	c.closeOnce.Do(func() {
		for _, f := range []*os.File{c.stdin, c.stdout, c.stderr} {
			if f == nil {
				continue
			}
			if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
