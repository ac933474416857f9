package main

import (
	"context"
	"fmt"
)

// runInstall prepares the configured isolation backend.
func runInstall(ctx context.Context, args []string, env *Environment) error {
	flags, err := parseInstallFlags(args, env.Stderr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(flags.common.config)
	if err != nil {
		return err
	}
	mergeCommonFlags(flags.common, flags.backend, cfg)
	if flags.archive != "" {
		cfg.Backend.Container.Archive = flags.archive
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(env.Stderr, flags.common)
	provider, err := env.NewProvider(cfg, logger)
	if err != nil {
		return err
	}
	if err := provider.Install(ctx); err != nil {
		return fmt.Errorf("installing %s backend: %w", provider.Name(), err)
	}

	if !flags.common.quiet {
		fmt.Fprintf(env.Stdout, "Backend %s is ready\n", provider.Name())
	}
	return nil
}
