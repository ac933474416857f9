package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-pixelsafe"
	"github.com/alnah/go-pixelsafe/internal/config"
	"github.com/alnah/go-pixelsafe/internal/fileutil"
)

// ErrDocumentsFailed is returned when at least one document of a batch
// could not be made safe.
var ErrDocumentsFailed = errors.New("documents failed")

// ConversionResult holds the outcome of a single conversion.
type ConversionResult struct {
	InputPath  string
	OutputPath string
	Err        error
	Duration   time.Duration
}

// runConvert orchestrates the conversion process.
func runConvert(ctx context.Context, args []string, env *Environment) error {
	flags, inputs, err := parseConvertFlags(args, env.Stderr)
	if err != nil {
		return err
	}
	if err := validateWorkers(flags.workers); err != nil {
		return err
	}

	cfg, err := loadConfig(flags.common.config)
	if err != nil {
		return err
	}
	mergeFlags(flags, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	files, err := discoverFiles(inputs, flags.output, cfg.Output.Suffix)
	if err != nil {
		return err
	}

	logger := newLogger(env.Stderr, flags.common)
	provider, err := env.NewProvider(cfg, logger)
	if err != nil {
		return err
	}
	timeouts, err := cfg.Timeouts.Parse()
	if err != nil {
		return err
	}

	printer := newProgressPrinter(env.Stderr, flags.common.quiet)
	size := pixelsafe.ResolvePoolSize(cfg.Workers, provider.MaxParallelConversions())
	logger.Debug("starting conversions", "backend", provider.Name(), "documents", len(files), "workers", size)

	pool := pixelsafe.NewConverterPool(size, func() (*pixelsafe.Converter, error) {
		renderer, err := newRenderer(cfg.OCR.Language)
		if err != nil {
			return nil, err
		}
		return pixelsafe.NewConverter(provider,
			pixelsafe.WithRenderer(renderer),
			pixelsafe.WithTimeouts(timeouts),
			pixelsafe.WithDebug(cfg.Debug),
			pixelsafe.WithTempDir(cfg.TempDir),
			pixelsafe.WithProgress(printer.handle),
			pixelsafe.WithLogger(logger),
		)
	})
	defer func() { _ = pool.Close() }()

	opts := pixelsafe.DocumentOptions{
		OutputSuffix: cfg.Output.Suffix,
		OCRLanguage:  cfg.OCR.Language,
		Archive:      cfg.Output.Archive,
	}
	results := convertBatch(ctx, pool, files, opts, printer, env.Now)

	failed := printResults(results, flags.common.quiet, flags.common.verbose, env)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if failed > 0 {
		// A lone failure carries its own cause and exit code.
		if len(results) == 1 {
			return results[0].Err
		}
		return fmt.Errorf("%w: %d of %d", ErrDocumentsFailed, failed, len(results))
	}
	return nil
}

// loadConfig loads the named config, or the defaults when name is empty.
func loadConfig(name string) (*config.Config, error) {
	if name == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(name)
}

// mergeFlags applies explicitly set flags over the config.
func mergeFlags(flags *convertFlags, cfg *config.Config) {
	mergeCommonFlags(flags.common, flags.backend, cfg)
	if flags.workers > 0 {
		cfg.Workers = flags.workers
	}
	if flags.suffix != "" {
		cfg.Output.Suffix = flags.suffix
	}
	if flags.ocrLang != "" {
		cfg.OCR.Language = flags.ocrLang
	}
	if flags.archive {
		cfg.Output.Archive = true
	}
}

func mergeCommonFlags(common commonFlags, backend backendFlags, cfg *config.Config) {
	if backend.backend != "" {
		cfg.Backend.Type = backend.backend
	}
	if backend.image != "" {
		cfg.Backend.Container.Image = backend.image
	}
	if common.debug {
		cfg.Debug = true
	}
}

// convertBatch converts files concurrently, at most pool.Size() at once.
// A canceled context fails the documents not yet started.
func convertBatch(ctx context.Context, pool *pixelsafe.ConverterPool, files []FileToConvert, opts pixelsafe.DocumentOptions, printer *progressPrinter, now func() time.Time) []ConversionResult {
	results := make([]ConversionResult, len(files))

	var g errgroup.Group
	g.SetLimit(pool.Size())
	for i, f := range files {
		g.Go(func() error {
			results[i] = convertFile(ctx, pool, f, opts, printer, now)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// convertFile converts a single file and returns the result. now times
// the conversion.
func convertFile(ctx context.Context, pool *pixelsafe.ConverterPool, f FileToConvert, opts pixelsafe.DocumentOptions, printer *progressPrinter, now func() time.Time) ConversionResult {
	start := now()
	result := ConversionResult{InputPath: f.InputPath}
	finish := func(err error) ConversionResult {
		result.Err = err
		result.Duration = now().Sub(start)
		return result
	}

	if err := ctx.Err(); err != nil {
		return finish(err)
	}

	opts.OutputFilename = f.OutputPath
	doc, err := pixelsafe.NewFileDocument(f.InputPath, opts)
	if err != nil {
		return finish(err)
	}
	result.OutputPath = doc.OutputFilename()

	if err := os.MkdirAll(filepath.Dir(doc.OutputFilename()), fileutil.DirPermissions); err != nil {
		return finish(fmt.Errorf("creating output directory: %w", err))
	}

	conv, err := pool.Acquire(ctx)
	if err != nil {
		return finish(err)
	}
	defer pool.Release(conv)

	printer.track(doc)
	return finish(conv.Convert(ctx, doc))
}

// countResults returns the number of failed conversions.
func countResults(results []ConversionResult) (succeeded, failed int) {
	for _, r := range results {
		if r.Err != nil {
			failed++
		} else {
			succeeded++
		}
	}
	return succeeded, failed
}

// printResults outputs conversion results and returns the failure count.
func printResults(results []ConversionResult, quiet, verbose bool, env *Environment) int {
	succeeded, failed := countResults(results)

	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(env.Stderr, "FAILED %s: %v\n", r.InputPath, r.Err)
			continue
		}
		if quiet {
			continue
		}
		if verbose {
			fmt.Fprintf(env.Stdout, "%s -> %s (%v)\n", r.InputPath, r.OutputPath, r.Duration.Round(time.Millisecond))
		} else {
			fmt.Fprintf(env.Stdout, "Created %s\n", r.OutputPath)
		}
	}

	if !quiet && len(results) > 1 {
		fmt.Fprintf(env.Stdout, "\n%d succeeded, %d failed\n", succeeded, failed)
	}
	return failed
}
