package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	flag "github.com/spf13/pflag"

	"github.com/alnah/go-pixelsafe"
	"github.com/alnah/go-pixelsafe/internal/config"
	"github.com/alnah/go-pixelsafe/internal/pdfrender"
	"github.com/alnah/go-pixelsafe/isolation/container"
)

func TestExitCodeFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"help", flag.ErrHelp, ExitSuccess},
		{"canceled", fmt.Errorf("converting: %w", context.Canceled), ExitInterrupted},
		{"batch failure", fmt.Errorf("%w: 1 of 2", ErrDocumentsFailed), ExitConversion},
		{"conversion error", &pixelsafe.ConversionError{Kind: pixelsafe.KindExitCode, Code: pixelsafe.CodeMaxPages}, ExitConversion},
		{"missing input", fmt.Errorf("input document: %w", os.ErrNotExist), ExitIO},
		{"no input", ErrNoInput, ExitIO},
		{"usage", usageError(errors.New("unknown flag: --nope")), ExitUsage},
		{"config", fmt.Errorf("%w: x", config.ErrConfigParse), ExitUsage},
		{"invalid value", fmt.Errorf("%w: x", config.ErrInvalidValue), ExitUsage},
		{"workers", fmt.Errorf("%w: -1", ErrInvalidWorkerCount), ExitUsage},
		{"backend", fmt.Errorf("%w: vm", ErrUnknownBackend), ExitUsage},
		{"no runtime", container.ErrNoRuntime, ExitUsage},
		{"ocr", fmt.Errorf("%w: rebuild", pdfrender.ErrOCRUnavailable), ExitUsage},
		{"other", errors.New("boom"), ExitGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, exitCodeFor(tt.err))
		})
	}
}
