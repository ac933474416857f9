package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/alnah/go-pixelsafe/internal/config"
	"github.com/alnah/go-pixelsafe/internal/fileutil"
	"github.com/alnah/go-pixelsafe/internal/hints"
	"github.com/alnah/go-pixelsafe/isolation/bwrap"
	"github.com/alnah/go-pixelsafe/isolation/container"
)

// Doctor statuses.
const (
	statusReady    = "ready"
	statusWarnings = "warnings"
	statusErrors   = "errors"
)

// ErrNotReady is returned by doctor when a check failed.
var ErrNotReady = errors.New("pixelsafe is not ready (see errors above)")

// doctorResult holds all diagnostic information.
type doctorResult struct {
	Status   string      `json:"status"` // "ready", "warnings", "errors"
	Backend  backendInfo `json:"backend"`
	Chrome   chromeInfo  `json:"chrome"`
	OCR      bool        `json:"ocr"`
	Env      envInfo     `json:"environment"`
	System   systemInfo  `json:"system"`
	Warnings []string    `json:"warnings,omitempty"`
	Errors   []string    `json:"errors,omitempty"`
}

// backendInfo holds isolation backend checks.
type backendInfo struct {
	Type       string `json:"type"`
	Name       string `json:"name,omitempty"`
	Ready      bool   `json:"ready"`
	Runtime    string `json:"runtime,omitempty"`
	Image      string `json:"image,omitempty"`
	ImageFound bool   `json:"image_found,omitempty"`
	Isolated   bool   `json:"isolated"`
}

// chromeInfo holds Chrome/Chromium detection results. Only backends
// that run the converter on the host need it.
type chromeInfo struct {
	Checked bool   `json:"checked"`
	Found   bool   `json:"found"`
	Path    string `json:"path,omitempty"`
}

// envInfo holds environment detection results.
type envInfo struct {
	OS         string `json:"os"`
	Arch       string `json:"arch"`
	Container  bool   `json:"container"`
	CI         bool   `json:"ci"`
	BrowserBin string `json:"rod_browser_bin"`
}

// systemInfo holds system check results.
type systemInfo struct {
	TempDir      string `json:"temp_dir"`
	TempWritable bool   `json:"temp_writable"`
}

// runDoctor checks the configured backend and the host, then prints a
// report. Warnings still exit 0.
func runDoctor(ctx context.Context, args []string, env *Environment) error {
	flags, err := parseDoctorFlags(args, env.Stderr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(flags.config)
	if err != nil {
		return err
	}
	mergeCommonFlags(commonFlags{}, flags.backend, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	result := diagnose(ctx, cfg, env)

	if flags.json {
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	} else {
		printDoctorResult(env.Stdout, result)
	}

	if result.Status == statusErrors {
		return ErrNotReady
	}
	return nil
}

// diagnose performs all diagnostic checks.
func diagnose(ctx context.Context, cfg *config.Config, env *Environment) *doctorResult {
	result := &doctorResult{
		Status: statusReady,
		OCR:    newRecognizer != nil,
		Env: envInfo{
			OS:         runtime.GOOS,
			Arch:       runtime.GOARCH,
			BrowserBin: os.Getenv("ROD_BROWSER_BIN"),
		},
	}

	checkEnvironment(result)
	checkBackend(ctx, cfg, env, result)
	if cfg.Backend.Type != config.BackendContainer {
		checkChrome(result)
	}
	checkSystem(cfg.TempDir, result)

	switch {
	case len(result.Errors) > 0:
		result.Status = statusErrors
	case len(result.Warnings) > 0:
		result.Status = statusWarnings
	}
	return result
}

// checkBackend builds the provider without installing anything.
func checkBackend(ctx context.Context, cfg *config.Config, env *Environment, result *doctorResult) {
	result.Backend.Type = cfg.Backend.Type
	result.Backend.Isolated = cfg.Backend.Type != config.BackendDummy

	provider, err := env.NewProvider(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		result.Errors = append(result.Errors, withHint(err))
		return
	}
	result.Backend.Name = provider.Name()

	switch p := provider.(type) {
	case *container.Provider:
		result.Backend.Runtime = p.Runtime()
		result.Backend.Image = p.Image()
		result.Backend.ImageFound = p.ImageInstalled(ctx)
		if !result.Backend.ImageFound {
			result.Errors = append(result.Errors,
				inlineHint(fmt.Sprintf("Image %s is not installed", p.Image()), hints.ForImageMissing()))
			return
		}
	case *bwrap.Provider:
		if err := p.Install(ctx); err != nil {
			result.Errors = append(result.Errors, inlineHint(err.Error(), hints.ForSandbox()))
			return
		}
		if result.Env.Container {
			result.Warnings = append(result.Warnings,
				"Running inside a container: bubblewrap usually cannot create namespaces here")
		}
	}

	if !result.Backend.Isolated {
		result.Warnings = append(result.Warnings,
			"The dummy backend does not isolate the converter. Use it for tests only")
	}
	result.Backend.Ready = true
}

// checkChrome detects the browser the converter uses for text documents.
func checkChrome(result *doctorResult) {
	result.Chrome.Checked = true

	chromePath := result.Env.BrowserBin
	if chromePath == "" {
		var found bool
		chromePath, found = launcher.LookPath()
		if !found {
			result.Warnings = append(result.Warnings,
				"Chrome/Chromium not found: text documents cannot be converted. Install Chrome or set ROD_BROWSER_BIN")
			return
		}
	}
	if !fileutil.FileExists(chromePath) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Chrome not found at %s", chromePath))
		return
	}
	result.Chrome.Found = true
	result.Chrome.Path = chromePath
}

// checkEnvironment detects container and CI environments.
func checkEnvironment(result *doctorResult) {
	result.Env.Container = hints.IsInContainer()

	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"}
	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			result.Env.CI = true
			break
		}
	}
}

// checkSystem verifies that working directories can be created.
func checkSystem(tempDir string, result *doctorResult) {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	result.System.TempDir = tempDir

	testFile := filepath.Join(tempDir, "pixelsafe-doctor-test")
	if err := os.WriteFile(testFile, []byte("test"), fileutil.PrivatePermissions); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Temp directory not writable: %s", tempDir))
		return
	}
	_ = os.Remove(testFile)
	result.System.TempWritable = true
}

// withHint renders err with its actionable hint, on a single report line.
func withHint(err error) string {
	return inlineHint(err.Error(), hintFor(err))
}

// inlineHint appends a formatted hint to msg in parentheses.
func inlineHint(msg, hint string) string {
	if hint = strings.TrimPrefix(hint, "\n  hint: "); hint == "" {
		return msg
	}
	return fmt.Sprintf("%s (hint: %s)", msg, hint)
}

// printDoctorResult outputs human-readable diagnostic results.
func printDoctorResult(w io.Writer, r *doctorResult) {
	fmt.Fprintln(w, "pixelsafe doctor")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Backend")
	if r.Backend.Ready {
		fmt.Fprintf(w, "  [OK] %s\n", r.Backend.Name)
		if r.Backend.Runtime != "" {
			fmt.Fprintf(w, "  [OK] Runtime: %s\n", r.Backend.Runtime)
		}
		if r.Backend.Image != "" {
			fmt.Fprintf(w, "  [OK] Image: %s\n", r.Backend.Image)
		}
	} else {
		fmt.Fprintf(w, "  [ERROR] %s: not ready\n", r.Backend.Type)
	}
	fmt.Fprintln(w)

	if r.Chrome.Checked {
		fmt.Fprintln(w, "Chrome/Chromium")
		if r.Chrome.Found {
			fmt.Fprintf(w, "  [OK] Found at %s\n", r.Chrome.Path)
		} else {
			fmt.Fprintln(w, "  [WARN] Not found")
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "Environment")
	fmt.Fprintf(w, "  [OK] Platform: %s/%s\n", r.Env.OS, r.Env.Arch)
	if r.OCR {
		fmt.Fprintln(w, "  [OK] OCR: available")
	} else {
		fmt.Fprintln(w, "  [OK] OCR: not built in")
	}
	if r.Env.Container {
		fmt.Fprintln(w, "  [OK] Container: detected")
	}
	if r.Env.CI {
		fmt.Fprintln(w, "  [OK] CI: detected")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "System")
	if r.System.TempWritable {
		fmt.Fprintf(w, "  [OK] Temp directory: %s\n", r.System.TempDir)
	} else {
		fmt.Fprintf(w, "  [ERROR] Temp directory: %s not writable\n", r.System.TempDir)
	}
	fmt.Fprintln(w)

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  [WARN] %s\n", warn)
		}
		fmt.Fprintln(w)
	}
	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, err := range r.Errors {
			fmt.Fprintf(w, "  [ERROR] %s\n", err)
		}
		fmt.Fprintln(w)
	}

	switch r.Status {
	case statusReady:
		fmt.Fprintln(w, "Status: Ready to convert")
	case statusWarnings:
		fmt.Fprintln(w, "Status: Ready with warnings")
	case statusErrors:
		fmt.Fprintln(w, "Status: Not ready (see errors above)")
	}
}
