package main

import (
	flag "github.com/spf13/pflag"

	"github.com/alnah/go-pixelsafe/internal/yamlutil"
)

// runConfig prints the effective configuration.
func runConfig(args []string, env *Environment) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	name := fs.StringP("config", "c", "", "config file name or path")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}

	cfg, err := loadConfig(*name)
	if err != nil {
		return err
	}
	out, err := yamlutil.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = env.Stdout.Write(out)
	return err
}
