package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/alnah/go-pixelsafe"
	"github.com/alnah/go-pixelsafe/internal/config"
	"github.com/alnah/go-pixelsafe/internal/pdfrender"
	"github.com/alnah/go-pixelsafe/isolation/bwrap"
	"github.com/alnah/go-pixelsafe/isolation/container"
	"github.com/alnah/go-pixelsafe/isolation/dummy"
)

// Exit codes for the pixelsafe CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess     = 0 // Every document converted
	ExitGeneral     = 1 // General/unexpected error
	ExitUsage       = 2 // Invalid flags, config, or validation
	ExitIO          = 3 // File not found, permission denied
	ExitConversion  = 4 // At least one document could not be made safe
	ExitInterrupted = 5 // Canceled by a signal
)

// ErrUsage wraps flag parsing errors.
var ErrUsage = errors.New("usage error")

func usageError(err error) error {
	if errors.Is(err, flag.ErrHelp) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUsage, err)
}

func errUnexpectedArgs(args []string) error {
	return fmt.Errorf("unexpected arguments: %s", strings.Join(args, " "))
}

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return ExitSuccess
	}

	if errors.Is(err, context.Canceled) {
		return ExitInterrupted
	}

	// Conversion errors (exit 4)
	if errors.Is(err, ErrDocumentsFailed) {
		return ExitConversion
	}
	if _, ok := pixelsafe.AsConversionError(err); ok {
		return ExitConversion
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, ErrNoInput) {
		return ExitIO
	}

	// Usage/config/validation errors (exit 2)
	if errors.Is(err, ErrUsage) ||
		errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrFieldTooLong) ||
		errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, config.ErrEmptyConfigName) ||
		errors.Is(err, ErrInvalidWorkerCount) ||
		errors.Is(err, ErrOutputNotDir) ||
		errors.Is(err, ErrUnknownBackend) ||
		errors.Is(err, ErrUnsupportedShell) ||
		errors.Is(err, pdfrender.ErrOCRUnavailable) ||
		errors.Is(err, container.ErrNoRuntime) ||
		errors.Is(err, bwrap.ErrNoConverter) ||
		errors.Is(err, dummy.ErrNoCommand) {
		return ExitUsage
	}

	return ExitGeneral
}
