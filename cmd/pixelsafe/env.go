package main

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/alnah/go-pixelsafe"
	"github.com/alnah/go-pixelsafe/internal/config"
)

// Environment holds injectable dependencies for testability.
type Environment struct {
	Now    func() time.Time
	Stdout io.Writer
	Stderr io.Writer
	// NewProvider builds the isolation backend from the loaded config.
	NewProvider func(cfg *config.Config, logger *slog.Logger) (pixelsafe.Provider, error)
}

// DefaultEnv returns the production environment.
func DefaultEnv() *Environment {
	return &Environment{
		Now:         time.Now,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		NewProvider: newProvider,
	}
}

// newLogger builds the stderr logger. Progress is shown by the progress
// printer, so library info records only appear with --verbose.
func newLogger(w io.Writer, f commonFlags) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case f.quiet:
		level = slog.LevelError
	case f.verbose:
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
