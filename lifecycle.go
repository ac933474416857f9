package pixelsafe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alnah/go-pixelsafe/internal/process"
	"github.com/alnah/go-pixelsafe/internal/textutil"
)

// Provider is an isolation backend: it knows how to start a
// document-to-pixels child inside its sandbox and how to ask it to stop.
type Provider interface {
	// Name identifies the backend in logs.
	Name() string
	// Install prepares the backend (e.g. loads a container image).
	Install(ctx context.Context) error
	// MaxParallelConversions bounds how many children the backend can
	// run at once.
	MaxParallelConversions() int
	// Start launches the child for doc. The returned process must run in
	// its own process group.
	Start(ctx context.Context, doc Document, opts StartOptions) (Process, error)
	// Terminate requests a graceful stop. ctx bounds any helper command.
	Terminate(ctx context.Context, doc Document, p Process) error
}

// Timeout defaults.
const (
	DefaultExceptionTimeout = 15 * time.Second
	DefaultGraceTimeout     = 15 * time.Second
	DefaultForceTimeout     = 5 * time.Second
)

// Debug log capture.
const (
	// MaxConversionLogChars caps the child stderr kept in debug mode
	// (about 150 lines of 50 characters).
	MaxConversionLogChars = 150 * 50

	DocToPixelsLogStart = "----- DOC TO PIXELS LOG START -----"
	DocToPixelsLogEnd   = "----- DOC TO PIXELS LOG END -----"
)

// Timeouts bound every wait on a child.
type Timeouts struct {
	// Exception bounds the wait for an exit status after an I/O failure.
	Exception time.Duration
	// Grace is how long a graceful stop may take.
	Grace time.Duration
	// Force is how long to wait after a forceful kill.
	Force time.Duration
}

// DefaultTimeouts returns the default timeouts.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Exception: DefaultExceptionTimeout,
		Grace:     DefaultGraceTimeout,
		Force:     DefaultForceTimeout,
	}
}

// withDefaults fills zero fields.
func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Exception <= 0 {
		t.Exception = d.Exception
	}
	if t.Grace <= 0 {
		t.Grace = d.Grace
	}
	if t.Force <= 0 {
		t.Force = d.Force
	}
	return t
}

// ControllerConfig holds configuration for creating a Controller.
type ControllerConfig struct {
	// Provider is the isolation backend. Required.
	Provider Provider

	// Timeouts for teardown; zero fields take the defaults.
	Timeouts Timeouts

	// Debug captures the child's stderr and logs it after teardown.
	Debug bool

	// Logger for lifecycle events.
	Logger *slog.Logger
}

// Controller owns converter children from start to guaranteed
// termination.
type Controller struct {
	provider    Provider
	timeouts    Timeouts
	debug       bool
	logger      *slog.Logger
	sharesGroup func(pid int) (bool, error)
}

// NewController creates a Controller.
func NewController(config ControllerConfig) (*Controller, error) {
	if config.Provider == nil {
		return nil, ErrNoProvider
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		provider:    config.Provider,
		timeouts:    config.Timeouts.withDefaults(),
		debug:       config.Debug,
		logger:      logger,
		sharesGroup: process.SharesGroup,
	}, nil
}

// Provider returns the controller's isolation backend.
func (c *Controller) Provider() Provider {
	return c.provider
}

// Timeouts returns the effective timeouts.
func (c *Controller) Timeouts() Timeouts {
	return c.timeouts
}

// Start launches a child for doc and checks that it does not share the
// parent's process group, so that group signals can never reach us.
func (c *Controller) Start(ctx context.Context, doc Document) (Process, error) {
	p, err := c.provider.Start(ctx, doc, StartOptions{CaptureStderr: c.debug})
	if err != nil {
		return nil, fmt.Errorf("starting conversion process (%s): %w", c.provider.Name(), err)
	}

	shared, err := c.sharesGroup(p.PID())
	if err != nil {
		// The child is already gone; reading its output will fail and be
		// classified from its exit status.
		c.logger.Debug("could not look up conversion process group", "doc", doc.ID(), "pid", p.PID(), "error", err)
		return p, nil
	}
	if shared {
		// Signaling the group would hit the parent too.
		if err := p.KillProcess(); err != nil {
			c.logger.Error("killing conversion process failed", "doc", doc.ID(), "pid", p.PID(), "error", err)
		}
		if stillRunning(p, c.timeouts.Force) {
			c.logger.Warn(fmt.Sprintf("Conversion process did not terminate forcefully after %s. Resources may linger...", c.timeouts.Force),
				"doc", doc.ID(), "pid", p.PID())
		}
		_ = p.Close()
		return nil, fmt.Errorf("%w (PID: %d)", ErrSharedProcessGroup, p.PID())
	}
	return p, nil
}

// EnsureStopped verifies that p has exited, or stops it: gracefully
// first, then by killing its process group. It never blocks much longer
// than grace+force and never fails; a child that survives is logged.
func (c *Controller) EnsureStopped(doc Document, p Process, grace, force time.Duration) {
	if p.Exited() {
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	if err := c.provider.Terminate(ctx, doc, p); err != nil {
		c.logger.Warn("graceful stop request failed", "doc", doc.ID(), "pid", p.PID(), "error", err)
	}
	cancel()

	if stillRunning(p, grace-time.Since(start)) {
		c.logger.Warn(fmt.Sprintf("Conversion process did not terminate gracefully after %s. Killing it forcefully...", grace),
			"doc", doc.ID(), "pid", p.PID())

		if err := p.Kill(); err != nil {
			c.logger.Error("killing conversion process group failed", "doc", doc.ID(), "pid", p.PID(), "error", err)
		}
		if stillRunning(p, force) {
			c.logger.Warn(fmt.Sprintf("Conversion process did not terminate forcefully after %s. Resources may linger...", force),
				"doc", doc.ID(), "pid", p.PID())
		}
	}
}

// stillRunning waits up to timeout and reports whether p is still alive.
func stillRunning(p Process, timeout time.Duration) bool {
	if timeout < 0 {
		timeout = 0
	}
	_, err := p.Wait(timeout)
	return errors.Is(err, ErrWaitTimeout)
}

// Use starts a child, hands it to fn and tears it down on every exit
// path, panics included. An I/O failure returned by fn is replaced by an
// error classified from the child's exit status; the failure is kept as
// its cause.
func (c *Controller) Use(ctx context.Context, doc Document, fn func(Process) error) (err error) {
	p, err := c.Start(ctx, doc)
	if err != nil {
		return err
	}
	defer c.release(doc, p)

	err = fn(p)
	if isProcessIOFailure(err) {
		err = Classify(p, c.timeouts.Exception, err)
	}
	return err
}

// release is the single teardown of a child started by Use.
func (c *Controller) release(doc Document, p Process) {
	c.EnsureStopped(doc, p, c.timeouts.Grace, c.timeouts.Force)

	// Only read stderr of a child that has exited, else we risk hanging.
	if c.debug && p.Exited() {
		if stderr := p.Stderr(); stderr != nil {
			text, err := textutil.ReadDebugText(stderr, MaxConversionLogChars, c.timeouts.Force)
			if err != nil {
				c.logger.Debug("reading conversion output failed", "doc", doc.ID(), "error", err)
			}
			c.logger.Info("Conversion output (doc to pixels)\n"+DocToPixelsLogStart+"\n"+text+DocToPixelsLogEnd,
				"doc", doc.ID())
		}
	}

	if err := p.Close(); err != nil {
		c.logger.Debug("closing conversion process streams failed", "doc", doc.ID(), "error", err)
	}
}
