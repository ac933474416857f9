package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/alnah/go-pixelsafe"
	"github.com/alnah/go-pixelsafe/internal/config"
	"github.com/alnah/go-pixelsafe/isolation/bwrap"
	"github.com/alnah/go-pixelsafe/isolation/container"
	"github.com/alnah/go-pixelsafe/isolation/dummy"
)

// ErrUnknownBackend is returned for a backend name no provider implements.
var ErrUnknownBackend = errors.New("unknown isolation backend")

// newProvider builds the isolation backend selected by cfg.
func newProvider(cfg *config.Config, logger *slog.Logger) (pixelsafe.Provider, error) {
	b := cfg.Backend
	switch b.Type {
	case config.BackendContainer, "":
		return container.New(container.Config{
			Runtime:     b.Container.Runtime,
			Image:       b.Container.Image,
			Archive:     b.Container.Archive,
			Command:     b.Container.Command,
			MaxParallel: b.MaxParallel,
			Logger:      logger,
		})
	case config.BackendBwrap:
		return bwrap.New(bwrap.Config{
			Binary:        b.Bwrap.Binary,
			Converter:     b.Bwrap.Converter,
			ConverterArgs: b.Bwrap.Args,
			ExtraBinds:    b.Bwrap.Binds,
			Env:           b.Bwrap.Env,
			MaxParallel:   b.MaxParallel,
			Logger:        logger,
		})
	case config.BackendDummy:
		return dummy.New(dummy.Config{Command: b.Dummy.Command, Logger: logger})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, b.Type)
	}
}
