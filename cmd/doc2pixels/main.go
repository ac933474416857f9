// Command doc2pixels runs inside the sandbox. It reads one untrusted
// document on stdin and writes its pages as raw RGB frames on stdout.
// Diagnostics go to stderr; the exit status tells the parent what failed.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/alnah/go-pixelsafe"
	"github.com/alnah/go-pixelsafe/internal/doc2pixels"
	"github.com/alnah/go-pixelsafe/internal/hints"
)

// Version is set at build time via ldflags.
var Version = "dev"

type options struct {
	dpi      int
	timeout  time.Duration
	maxInput int64
	plain    bool
	verbose  bool
	version  bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("doc2pixels", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVar(&opts.dpi, "dpi", doc2pixels.DefaultDPI, "rendering resolution for text documents")
	fs.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "abort the conversion after this long")
	fs.Int64Var(&opts.maxInput, "max-input", doc2pixels.DefaultMaxInput, "largest accepted document in bytes")
	fs.BoolVar(&opts.plain, "plain", false, "render text verbatim instead of as Markdown")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "log each step to stderr")
	fs.BoolVar(&opts.version, "version", false, "print version and exit")
	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}
	if opts.dpi < 1 {
		return nil, fmt.Errorf("--dpi must be positive, got %d", opts.dpi)
	}
	return opts, nil
}

func main() {
	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return pixelsafe.CodeUnspecified
	}
	if opts.version {
		fmt.Fprintln(stderr, "doc2pixels", Version)
		return 0
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	rasterizer := doc2pixels.NewRodRasterizer(opts.timeout)
	defer func() { _ = rasterizer.Close() }()

	conv := doc2pixels.New(doc2pixels.Config{
		DPI:        opts.dpi,
		MaxInput:   opts.maxInput,
		PlainText:  opts.plain,
		Rasterizer: rasterizer,
		Logger:     logger,
	})

	err = conv.Run(ctx, stdin, stdout)
	code := doc2pixels.ExitCode(err)
	if err != nil {
		attrs := []any{"code", code, "error", err}
		if errors.Is(err, doc2pixels.ErrBrowserConnect) {
			if hint := hints.ForBrowserConnect(); hint != "" {
				attrs = append(attrs, "hint", strings.TrimPrefix(hint, "\n  hint: "))
			}
		}
		logger.Error("conversion failed", attrs...)
	}
	return code
}
