package pixelsafe

import (
	"context"
	"io"
	"log/slog"
)

// PageRenderer turns validated pixel frames into output pages and joins
// them into the final document. It runs in the parent and only ever sees
// pixels.
type PageRenderer interface {
	// RenderPage returns one output page for a width x height RGB buffer.
	// A non-empty ocrLang adds a text layer in that language.
	RenderPage(ctx context.Context, pixels []byte, width, height int, ocrLang string) ([]byte, error)
	// Assemble writes the document made of pages, in order, to w.
	Assemble(ctx context.Context, pages []io.ReadSeeker, w io.Writer) error
}

// Option configures a Converter.
type Option func(*Converter)

// converterConfig holds internal configuration for Converter.
type converterConfig struct {
	timeouts Timeouts
	debug    bool
	tempDir  string
	progress ProgressFunc
	logger   *slog.Logger
	renderer PageRenderer
}

// WithTimeouts sets the teardown timeouts. Zero fields keep their defaults.
func WithTimeouts(t Timeouts) Option {
	return func(c *Converter) {
		c.cfg.timeouts = t
	}
}

// WithDebug captures the converter child's stderr and logs it after
// every conversion.
func WithDebug(debug bool) Option {
	return func(c *Converter) {
		c.cfg.debug = debug
	}
}

// WithTempDir sets the parent directory of per-conversion working
// directories. Defaults to os.TempDir().
func WithTempDir(dir string) Option {
	return func(c *Converter) {
		c.cfg.tempDir = dir
	}
}

// WithProgress sets the progress sink.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Converter) {
		c.cfg.progress = fn
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Converter) {
		c.cfg.logger = logger
	}
}

// WithRenderer replaces the default pdfcpu page renderer.
// Panics if r is nil (programmer error).
func WithRenderer(r PageRenderer) Option {
	if r == nil {
		panic("pixelsafe: WithRenderer renderer must not be nil")
	}
	return func(c *Converter) {
		c.cfg.renderer = r
	}
}
