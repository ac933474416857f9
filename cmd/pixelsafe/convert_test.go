package main

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alnah/go-pixelsafe"
)

// steppingClock advances by step on every call.
func steppingClock(step time.Duration) func() time.Time {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

func TestConvertFile_TimedWithEnvironmentClock(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := pixelsafe.NewConverterPool(1, nil)
	defer func() { _ = pool.Close() }()

	f := FileToConvert{InputPath: filepath.Join(t.TempDir(), "a.pdf")}
	result := convertFile(ctx, pool, f, pixelsafe.DocumentOptions{}, newProgressPrinter(io.Discard, true), steppingClock(1500*time.Millisecond))

	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Equal(t, 1500*time.Millisecond, result.Duration)
}

func TestPrintResults(t *testing.T) {
	t.Parallel()

	results := []ConversionResult{
		{InputPath: "a.pdf", OutputPath: "a-safe.pdf", Duration: 1500 * time.Millisecond},
		{InputPath: "b.png", Err: errors.New("boom")},
	}

	tests := []struct {
		name       string
		quiet      bool
		verbose    bool
		wantStdout []string
	}{
		{"default", false, false, []string{"Created a-safe.pdf", "1 succeeded, 1 failed"}},
		{"verbose shows duration", false, true, []string{"a.pdf -> a-safe.pdf (1.5s)"}},
		{"quiet", true, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env, stdout, stderr := testEnv(t, &stubProvider{}, nil)
			failed := printResults(results, tt.quiet, tt.verbose, env)

			assert.Equal(t, 1, failed)
			assert.Contains(t, stderr.String(), "FAILED b.png: boom")
			if tt.wantStdout == nil {
				assert.Empty(t, strings.TrimSpace(stdout.String()))
			}
			for _, want := range tt.wantStdout {
				assert.Contains(t, stdout.String(), want)
			}
		})
	}
}

func TestConvertBatch_CanceledFailsEveryDocument(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := pixelsafe.NewConverterPool(2, nil)
	defer func() { _ = pool.Close() }()

	files := []FileToConvert{{InputPath: "a.pdf"}, {InputPath: "b.pdf"}, {InputPath: "c.pdf"}}
	results := convertBatch(ctx, pool, files, pixelsafe.DocumentOptions{}, newProgressPrinter(io.Discard, true), time.Now)

	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, files[i].InputPath, r.InputPath)
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}
