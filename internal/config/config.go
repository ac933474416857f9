package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alnah/go-pixelsafe"
	"github.com/alnah/go-pixelsafe/internal/fileutil"
	"github.com/alnah/go-pixelsafe/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrFieldTooLong    = errors.New("field exceeds maximum length")
	ErrInvalidValue    = errors.New("invalid config value")
)

// Backend names.
const (
	BackendContainer = "container"
	BackendBwrap     = "bwrap"
	BackendDummy     = "dummy"
)

// Field length limits.
const (
	MaxPathLength     = 4096
	MaxImageLength    = 255 // registry/name:tag
	MaxSuffixLength   = 50
	MaxLanguageLength = 64 // "eng+fra+deu"
	MaxDurationLength = 20
	MaxWorkers        = 64
)

// Config holds all configuration for document conversion.
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	OCR      OCRConfig      `yaml:"ocr"`
	Output   OutputConfig   `yaml:"output"`
	Workers  int            `yaml:"workers"` // 0 = auto
	Debug    bool           `yaml:"debug"`
	TempDir  string         `yaml:"tempDir"` // Empty = system default
}

// BackendConfig selects and configures the isolation backend.
type BackendConfig struct {
	Type        string          `yaml:"type"`        // "container", "bwrap", "dummy" (default: "container")
	MaxParallel int             `yaml:"maxParallel"` // 0 = backend default
	Container   ContainerConfig `yaml:"container"`
	Bwrap       BwrapConfig     `yaml:"bwrap"`
	Dummy       DummyConfig     `yaml:"dummy"`
}

// ContainerConfig configures the container backend.
type ContainerConfig struct {
	Runtime string   `yaml:"runtime"` // Empty = podman, then docker
	Image   string   `yaml:"image"`
	Archive string   `yaml:"archive"` // Image tarball loaded by install
	Command []string `yaml:"command"`
}

// BwrapConfig configures the bubblewrap backend.
type BwrapConfig struct {
	Binary    string            `yaml:"binary"`
	Converter string            `yaml:"converter"` // Host path of doc2pixels
	Args      []string          `yaml:"args"`
	Binds     []string          `yaml:"binds"` // "source:dest[:ro|rw]"
	Env       map[string]string `yaml:"env"`
}

// DummyConfig configures the unisolated backend.
type DummyConfig struct {
	Command []string `yaml:"command"`
}

// TimeoutsConfig holds durations as Go duration strings ("15s", "1m").
type TimeoutsConfig struct {
	Exception string `yaml:"exception"`
	Grace     string `yaml:"grace"`
	Force     string `yaml:"force"`
}

// OCRConfig defines the text layer options.
type OCRConfig struct {
	Language string `yaml:"language"` // Empty = no OCR; "eng+fra" for several
}

// OutputConfig defines where safe documents go.
type OutputConfig struct {
	Suffix  string `yaml:"suffix"`  // Default: "-safe"
	Archive bool   `yaml:"archive"` // Move originals to an "unsafe" directory
}

// Validate checks every field. Called automatically by LoadConfig.
func (c *Config) Validate() error {
	switch c.Backend.Type {
	case "", BackendContainer, BackendBwrap, BackendDummy:
	default:
		return fmt.Errorf("%w: backend.type %q (must be container, bwrap, or dummy)", ErrInvalidValue, c.Backend.Type)
	}
	if c.Backend.MaxParallel < 0 {
		return fmt.Errorf("%w: backend.maxParallel must not be negative, got %d", ErrInvalidValue, c.Backend.MaxParallel)
	}

	paths := map[string]string{
		"backend.container.runtime": c.Backend.Container.Runtime,
		"backend.container.archive": c.Backend.Container.Archive,
		"backend.bwrap.binary":      c.Backend.Bwrap.Binary,
		"backend.bwrap.converter":   c.Backend.Bwrap.Converter,
		"tempDir":                   c.TempDir,
	}
	for name, value := range paths {
		if err := validateFieldLength(name, value, MaxPathLength); err != nil {
			return err
		}
	}
	if err := validateFieldLength("backend.container.image", c.Backend.Container.Image, MaxImageLength); err != nil {
		return err
	}
	if c.Backend.Type == BackendBwrap && c.Backend.Bwrap.Converter == "" {
		return fmt.Errorf("%w: backend.bwrap.converter is required for the bwrap backend", ErrInvalidValue)
	}
	if c.Backend.Type == BackendDummy && len(c.Backend.Dummy.Command) == 0 {
		return fmt.Errorf("%w: backend.dummy.command is required for the dummy backend", ErrInvalidValue)
	}

	if _, err := c.Timeouts.Parse(); err != nil {
		return err
	}

	if err := validateFieldLength("ocr.language", c.OCR.Language, MaxLanguageLength); err != nil {
		return err
	}
	if !ValidLanguage(c.OCR.Language) {
		return fmt.Errorf("%w: ocr.language %q (use tesseract codes like eng or eng+fra)", ErrInvalidValue, c.OCR.Language)
	}

	if err := validateFieldLength("output.suffix", c.Output.Suffix, MaxSuffixLength); err != nil {
		return err
	}
	if strings.ContainsAny(c.Output.Suffix, `/\`) {
		return fmt.Errorf("%w: output.suffix must not contain path separators", ErrInvalidValue)
	}

	if c.Workers < 0 || c.Workers > MaxWorkers {
		return fmt.Errorf("%w: workers must be between 0 and %d, got %d", ErrInvalidValue, MaxWorkers, c.Workers)
	}
	return nil
}

// Parse converts the duration strings. Empty fields keep their defaults.
func (t TimeoutsConfig) Parse() (pixelsafe.Timeouts, error) {
	out := pixelsafe.DefaultTimeouts()
	fields := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"timeouts.exception", t.Exception, &out.Exception},
		{"timeouts.grace", t.Grace, &out.Grace},
		{"timeouts.force", t.Force, &out.Force},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := validateFieldLength(f.name, f.value, MaxDurationLength); err != nil {
			return pixelsafe.Timeouts{}, err
		}
		d, err := time.ParseDuration(f.value)
		if err != nil {
			return pixelsafe.Timeouts{}, fmt.Errorf("%w: %s: %v", ErrInvalidValue, f.name, err)
		}
		if d <= 0 {
			return pixelsafe.Timeouts{}, fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidValue, f.name, f.value)
		}
		*f.dst = d
	}
	return out, nil
}

// ValidLanguage reports whether lang is empty or a "+" separated list of
// tesseract language codes.
func ValidLanguage(lang string) bool {
	if lang == "" {
		return true
	}
	for _, code := range strings.Split(lang, "+") {
		if code == "" {
			return false
		}
		for _, r := range code {
			if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
				return false
			}
		}
	}
	return true
}

// validateFieldLength checks if a field exceeds its maximum allowed length.
func validateFieldLength(fieldName, value string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%w: %s (%d chars, max %d)", ErrFieldTooLong, fieldName, len(value), maxLength)
	}
	return nil
}

// DefaultConfig returns the configuration used without a config file.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{Type: BackendContainer},
		Output:  OutputConfig{Suffix: pixelsafe.DefaultOutputSuffix},
	}
}

// applyDefaults fills fields the file left empty.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Backend.Type == "" {
		c.Backend.Type = d.Backend.Type
	}
	if c.Output.Suffix == "" {
		c.Output.Suffix = d.Output.Suffix
	}
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's searched in standard locations.
// Returns error if the file is not found (no silent fallback).
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	var configPath string
	var err error

	if fileutil.IsFilePath(nameOrPath) {
		configPath = nameOrPath
	} else {
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yamlutil.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// resolveConfigPath searches for a config file by name.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, ~/.config/go-pixelsafe/
func resolveConfigPath(name string) (string, error) {
	extensions := []string{".yaml", ".yml"}
	triedPaths := make([]string, 0, len(extensions)*2)

	for _, ext := range extensions {
		localPath := name + ext
		if fileutil.FileExists(localPath) {
			return localPath, nil
		}
		triedPaths = append(triedPaths, localPath)
	}

	userConfigDir, err := os.UserConfigDir()
	if err == nil {
		for _, ext := range extensions {
			userPath := filepath.Join(userConfigDir, "go-pixelsafe", name+ext)
			if fileutil.FileExists(userPath) {
				return userPath, nil
			}
			triedPaths = append(triedPaths, userPath)
		}
	}

	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(triedPaths, ", "))
}
