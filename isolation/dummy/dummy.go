// Package dummy runs the converter without any isolation. It exists for
// tests and development on machines without a sandbox, and must never be
// used with untrusted documents.
package dummy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/alnah/go-pixelsafe"
)

// Compile-time interface check.
var _ pixelsafe.Provider = (*Provider)(nil)

// ErrNoCommand is returned when no converter command is configured.
var ErrNoCommand = errors.New("dummy: converter command is required")

// Config configures the dummy backend.
type Config struct {
	// Command is the converter and its arguments, e.g. ["doc2pixels"].
	Command []string
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Provider starts the converter as a plain child process.
type Provider struct {
	command []string
	logger  *slog.Logger
}

// New creates a dummy Provider.
func New(cfg Config) (*Provider, error) {
	if len(cfg.Command) == 0 {
		return nil, ErrNoCommand
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{command: append([]string(nil), cfg.Command...), logger: logger}, nil
}

func (p *Provider) Name() string { return "dummy" }

// Install checks that the converter can be found.
func (p *Provider) Install(context.Context) error {
	if _, err := exec.LookPath(p.command[0]); err != nil {
		return fmt.Errorf("dummy: converter not found: %w", err)
	}
	return nil
}

// MaxParallelConversions is 1: nothing bounds an unisolated child.
func (p *Provider) MaxParallelConversions() int { return 1 }

func (p *Provider) Start(_ context.Context, doc pixelsafe.Document, opts pixelsafe.StartOptions) (pixelsafe.Process, error) {
	p.logger.Warn("Dummy converter will NOT isolate the document conversion", "doc", doc.ID())
	cmd := exec.Command(p.command[0], p.command[1:]...) // #nosec G204 -- configured converter
	return pixelsafe.StartCommand(cmd, opts)
}

func (p *Provider) Terminate(_ context.Context, _ pixelsafe.Document, proc pixelsafe.Process) error {
	return proc.Terminate()
}
