// Package bwrap isolates the converter with bubblewrap: every namespace
// is unshared (no network), the host filesystem is bound read-only and
// only the converter binary and system libraries are visible.
package bwrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"

	"github.com/alnah/go-pixelsafe"
)

// Compile-time interface check.
var _ pixelsafe.Provider = (*Provider)(nil)

// Defaults.
const (
	DefaultBinary = "bwrap"
	// ConverterPath is where the converter is bound inside the sandbox.
	ConverterPath = "/opt/pixelsafe/doc2pixels"
)

// Bind modes.
const (
	ModeRO = "ro"
	ModeRW = "rw"
)

// ErrNoConverter is returned when no converter binary is configured.
var ErrNoConverter = errors.New("bwrap: converter binary is required")

// systemBinds are bound read-only when they exist on the host.
var systemBinds = []string{"/usr", "/lib", "/lib64", "/bin", "/sbin", "/etc/fonts", "/etc/ssl", "/etc/alternatives"}

// Config configures the bubblewrap backend.
type Config struct {
	// Binary is the bwrap executable. Defaults to DefaultBinary.
	Binary string
	// Converter is the host path of the doc2pixels binary.
	Converter string
	// ConverterArgs are passed to the converter.
	ConverterArgs []string
	// ExtraBinds are additional mounts, "source:dest[:ro|rw]".
	ExtraBinds []string
	// Env is set inside the sandbox after the environment is cleared.
	Env map[string]string
	// MaxParallel bounds parallel conversions; zero means half the CPUs.
	MaxParallel int
	Logger      *slog.Logger
}

// Provider starts the converter under bubblewrap.
type Provider struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a bubblewrap Provider.
func New(cfg Config) (*Provider, error) {
	if cfg.Converter == "" {
		return nil, ErrNoConverter
	}
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	for _, bind := range cfg.ExtraBinds {
		if _, _, _, err := parseBindSpec(bind); err != nil {
			return nil, err
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{cfg: cfg, logger: logger}, nil
}

func (p *Provider) Name() string { return "bwrap" }

// Install checks that bwrap and the converter are present.
func (p *Provider) Install(context.Context) error {
	if _, err := exec.LookPath(p.cfg.Binary); err != nil {
		return fmt.Errorf("bwrap: %w", err)
	}
	info, err := os.Stat(p.cfg.Converter)
	if err != nil {
		return fmt.Errorf("bwrap: converter: %w", err)
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("bwrap: converter %s is not executable", p.cfg.Converter)
	}
	return nil
}

func (p *Provider) MaxParallelConversions() int {
	if p.cfg.MaxParallel > 0 {
		return p.cfg.MaxParallel
	}
	return max(runtime.NumCPU()/2, 1)
}

func (p *Provider) Start(_ context.Context, doc pixelsafe.Document, opts pixelsafe.StartOptions) (pixelsafe.Process, error) {
	args, err := NewBuilder().Build(p.cfg, statExists)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("starting sandboxed converter", "doc", doc.ID(), "binary", p.cfg.Binary)
	cmd := exec.Command(p.cfg.Binary, args...) // #nosec G204 -- arguments built from config
	return pixelsafe.StartCommand(cmd, opts)
}

// Terminate signals the bwrap process group; --die-with-parent and the
// pid namespace take the converter down with it.
func (p *Provider) Terminate(_ context.Context, _ pixelsafe.Document, proc pixelsafe.Process) error {
	return proc.Terminate()
}

func statExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Builder builds bubblewrap command-line arguments.
type Builder struct {
	args []string
}

// NewBuilder creates a new builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build constructs the bwrap arguments. exists filters the optional
// system binds.
func (b *Builder) Build(cfg Config, exists func(string) bool) ([]string, error) {
	if cfg.Converter == "" {
		return nil, ErrNoConverter
	}
	b.args = []string{}

	// Namespaces and session. bwrap always drops capabilities and sets
	// PR_SET_NO_NEW_PRIVS.
	b.args = append(b.args,
		"--unshare-all",
		"--die-with-parent",
		"--new-session",
	)

	b.args = append(b.args, "--proc", "/proc", "--dev", "/dev", "--tmpfs", "/tmp")

	for _, dir := range systemBinds {
		if exists(dir) {
			b.args = append(b.args, "--ro-bind", dir, dir)
		}
	}

	for _, bind := range cfg.ExtraBinds {
		source, dest, mode, err := parseBindSpec(bind)
		if err != nil {
			return nil, err
		}
		if mode == ModeRO {
			b.args = append(b.args, "--ro-bind", source, dest)
		} else {
			b.args = append(b.args, "--bind", source, dest)
		}
	}

	b.args = append(b.args, "--ro-bind", cfg.Converter, ConverterPath)

	b.args = append(b.args, "--clearenv")
	env := map[string]string{
		"PATH": "/usr/bin:/bin",
		"HOME": "/tmp",
	}
	for key, value := range cfg.Env {
		env[key] = value
	}
	// Sort keys for deterministic output.
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.args = append(b.args, "--setenv", key, env[key])
	}

	b.args = append(b.args, "--", ConverterPath)
	b.args = append(b.args, cfg.ConverterArgs...)
	return b.args, nil
}

// parseBindSpec parses "source:dest[:mode]". Paths must not contain
// colons.
func parseBindSpec(spec string) (source, dest, mode string, err error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("invalid bind spec %q: must be source:dest[:mode]", spec)
	}

	source, dest, mode = parts[0], parts[1], ModeRO
	if len(parts) == 3 {
		if parts[2] != ModeRO && parts[2] != ModeRW {
			return "", "", "", fmt.Errorf("invalid bind mode %q: must be ro or rw", parts[2])
		}
		mode = parts[2]
	}
	return source, dest, mode, nil
}
