// Package container isolates the converter in a Podman or Docker
// container with no network, no capabilities and a read-only root.
package container

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/alnah/go-pixelsafe"
	"github.com/alnah/go-pixelsafe/internal/textutil"
)

// Compile-time interface check.
var _ pixelsafe.Provider = (*Provider)(nil)

// Defaults.
const (
	DefaultImage = "pixelsafe/doc2pixels:latest"
	// namePrefix starts every container name, so leftovers are easy to find.
	namePrefix = "pixelsafe-"
)

// DefaultCommand runs the converter inside the image.
var DefaultCommand = []string{"/usr/local/bin/doc2pixels"}

// knownRuntimes are looked up in order when no runtime is configured.
var knownRuntimes = []string{"podman", "docker"}

// Sentinel errors.
var (
	// ErrNoRuntime is returned when neither Podman nor Docker is found.
	ErrNoRuntime = errors.New("container: no container runtime found (install podman or docker)")
	// ErrImageMissing is returned by Install when the image is absent and
	// no archive is configured.
	ErrImageMissing = errors.New("container: converter image is not installed")
)

// Archive magic numbers.
var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Config configures the container backend.
type Config struct {
	// Runtime is a runtime name or path. Empty means podman, then docker.
	Runtime string
	// Image is the converter image. Defaults to DefaultImage.
	Image string
	// Archive is an image tarball, optionally gzip or zstd compressed,
	// loaded by Install when the image is missing.
	Archive string
	// Command runs inside the container. Defaults to DefaultCommand.
	Command []string
	// MaxParallel bounds parallel conversions; zero means half the CPUs.
	MaxParallel int
	Logger      *slog.Logger
}

// Provider starts one throwaway container per conversion.
type Provider struct {
	cfg     Config
	runtime string
	logger  *slog.Logger
}

// New creates a container Provider and resolves the runtime.
func New(cfg Config) (*Provider, error) {
	rt, err := resolveRuntime(cfg.Runtime)
	if err != nil {
		return nil, err
	}
	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}
	if len(cfg.Command) == 0 {
		cfg.Command = DefaultCommand
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{cfg: cfg, runtime: rt, logger: logger}, nil
}

func resolveRuntime(name string) (string, error) {
	candidates := knownRuntimes
	if name != "" {
		candidates = []string{name}
	}
	for _, c := range candidates {
		if path, err := exec.LookPath(c); err == nil {
			return path, nil
		}
	}
	if name != "" {
		return "", fmt.Errorf("container: runtime %q not found", name)
	}
	return "", ErrNoRuntime
}

// Name is "container:<runtime>".
func (p *Provider) Name() string {
	return "container:" + filepath.Base(p.runtime)
}

// Runtime returns the resolved runtime path.
func (p *Provider) Runtime() string {
	return p.runtime
}

func (p *Provider) MaxParallelConversions() int {
	if p.cfg.MaxParallel > 0 {
		return p.cfg.MaxParallel
	}
	return max(runtime.NumCPU()/2, 1)
}

// RunArgs returns the runtime arguments starting a container named name.
func (p *Provider) RunArgs(name string) []string {
	args := []string{
		"run",
		"--rm",
		"-i",
		"--name", name,
		"--log-driver", "none",
		"--network", "none",
		"--cap-drop", "all",
		"--security-opt", "no-new-privileges",
		"--read-only",
		"--tmpfs", "/tmp",
		p.cfg.Image,
	}
	return append(args, p.cfg.Command...)
}

// containerProcess remembers the container behind a runtime client.
type containerProcess struct {
	pixelsafe.Process
	name string
}

func (p *Provider) Start(_ context.Context, doc pixelsafe.Document, opts pixelsafe.StartOptions) (pixelsafe.Process, error) {
	name := namePrefix + doc.ID() + "-" + uuid.NewString()[:8]
	cmd := exec.Command(p.runtime, p.RunArgs(name)...) // #nosec G204 -- arguments built from config
	p.logger.Debug("starting conversion container", "doc", doc.ID(), "container", name)

	child, err := pixelsafe.StartCommand(cmd, opts)
	if err != nil {
		return nil, err
	}
	return &containerProcess{Process: child, name: name}, nil
}

// Terminate kills the container, then signals the runtime client. Killing
// the client alone may leave the container running.
func (p *Provider) Terminate(ctx context.Context, doc pixelsafe.Document, proc pixelsafe.Process) error {
	if cp, ok := proc.(*containerProcess); ok {
		out, err := exec.CommandContext(ctx, p.runtime, "kill", cp.name).CombinedOutput() // #nosec G204 -- generated name
		if err != nil {
			p.logger.Warn("killing conversion container failed",
				"doc", doc.ID(), "container", cp.name, "error", err,
				"output", textutil.ReplaceControlChars(string(bytes.TrimSpace(out)), false))
		}
	}
	return proc.Terminate()
}

// Install loads the image from the configured archive unless the runtime
// already has it.
func (p *Provider) Install(ctx context.Context) error {
	if p.ImageInstalled(ctx) {
		p.logger.Debug("container image already installed", "image", p.cfg.Image)
		return nil
	}
	if p.cfg.Archive == "" {
		return fmt.Errorf("%w: %s (no archive configured)", ErrImageMissing, p.cfg.Image)
	}

	f, err := os.Open(p.cfg.Archive)
	if err != nil {
		return fmt.Errorf("container: opening image archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	r, closeArchive, err := Decompress(f)
	if err != nil {
		return fmt.Errorf("container: reading %s: %w", p.cfg.Archive, err)
	}
	defer closeArchive()

	p.logger.Info("Installing container image", "image", p.cfg.Image, "archive", p.cfg.Archive)
	cmd := exec.CommandContext(ctx, p.runtime, "load") // #nosec G204 -- resolved runtime
	cmd.Stdin = r
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("container: loading image: %w: %s", err,
			textutil.ReplaceControlChars(string(bytes.TrimSpace(out)), true))
	}

	if !p.ImageInstalled(ctx) {
		return fmt.Errorf("container: image %s is still missing after loading %s", p.cfg.Image, p.cfg.Archive)
	}
	return nil
}

// Image returns the converter image name.
func (p *Provider) Image() string {
	return p.cfg.Image
}

// ImageInstalled reports whether the runtime already has the image.
func (p *Provider) ImageInstalled(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, p.runtime, "image", "inspect", p.cfg.Image) // #nosec G204 -- configured image
	return cmd.Run() == nil
}

// Decompress detects gzip or zstd compression from the magic number and
// returns a reader of the plain tarball. Uncompressed input is returned
// as is.
func Decompress(r io.Reader) (io.Reader, func(), error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, err
	}

	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, func() { _ = zr.Close() }, nil
	case bytes.HasPrefix(magic, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd: %w", err)
		}
		return zr, zr.Close, nil
	default:
		return br, func() {}, nil
	}
}
