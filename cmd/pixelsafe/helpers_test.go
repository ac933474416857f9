package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alnah/go-pixelsafe"
	"github.com/alnah/go-pixelsafe/internal/config"
)

// stubProvider records the config it was built from and never starts
// anything.
type stubProvider struct {
	installErr error
	installed  bool
}

func (s *stubProvider) Name() string                 { return "stub" }
func (s *stubProvider) MaxParallelConversions() int  { return 2 }
func (s *stubProvider) Install(context.Context) error { s.installed = true; return s.installErr }

func (s *stubProvider) Start(context.Context, pixelsafe.Document, pixelsafe.StartOptions) (pixelsafe.Process, error) {
	return nil, errors.New("stub provider cannot start converters")
}

func (s *stubProvider) Terminate(context.Context, pixelsafe.Document, pixelsafe.Process) error {
	return nil
}

// testEnv returns an environment writing to buffers. provider is used
// for every command; gotCfg receives the config it was built from.
func testEnv(t *testing.T, provider pixelsafe.Provider, gotCfg **config.Config) (*Environment, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	env := &Environment{
		Now:    func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
		Stdout: &stdout,
		Stderr: &stderr,
		NewProvider: func(cfg *config.Config, _ *slog.Logger) (pixelsafe.Provider, error) {
			if gotCfg != nil {
				*gotCfg = cfg
			}
			return provider, nil
		},
	}
	return env, &stdout, &stderr
}
