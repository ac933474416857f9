// Package hints provides actionable error hints for common failure scenarios.
// Hints are formatted consistently as "\n  hint: <text>" for appending to error messages.
package hints

import (
	"os"
	"strings"

	"github.com/alnah/go-pixelsafe/internal/fileutil"
)

// IsInContainer detects if running inside a Docker or Podman container.
var IsInContainer = func() bool {
	return fileutil.FileExists("/.dockerenv") || fileutil.FileExists("/run/.containerenv")
}

// ForNoRuntime returns hints when neither Podman nor Docker is installed.
func ForNoRuntime() string {
	return format("install podman or docker, or use --backend bwrap")
}

// ForImageMissing returns hints when the converter image is not loaded.
func ForImageMissing() string {
	return format("run 'pixelsafe install --image-archive <tarball>' first")
}

// ForSandbox returns hints for bubblewrap start failures.
func ForSandbox() string {
	var hints []string
	if IsInContainer() {
		hints = append(hints, "bwrap rarely works inside a container; run pixelsafe on the host")
	}
	hints = append(hints, "bwrap needs unprivileged user namespaces (check kernel.unprivileged_userns_clone)")
	return formatHints(hints)
}

// ForOCRUnavailable returns hints when a text layer is requested from a
// binary built without an OCR engine.
func ForOCRUnavailable() string {
	return format("rebuild with 'go build -tags tesseract ./cmd/pixelsafe' (needs libtesseract)")
}

// ForUnresponsive returns a hint about raising teardown timeouts.
func ForUnresponsive() string {
	return format("on slow machines, raise timeouts.grace in the config file")
}

// ForBrowserConnect returns hints for the converter's browser errors.
// Detects CI/container environments and suggests relevant variables.
func ForBrowserConnect() string {
	var hints []string

	inCI := os.Getenv("CI") != "" ||
		os.Getenv("GITHUB_ACTIONS") != "" ||
		os.Getenv("GITLAB_CI") != ""

	if (inCI || IsInContainer()) && os.Getenv("ROD_BROWSER_BIN") == "" {
		hints = append(hints, "set ROD_BROWSER_BIN to a preinstalled Chromium")
	}
	return formatHints(hints)
}

// ForConfigNotFound returns hints for config file not found errors.
// Suggests --config and the first user config path that was searched.
func ForConfigNotFound(searchedPaths []string) string {
	hint := "use --config /path/to/file.yaml"
	for _, p := range searchedPaths {
		if strings.Contains(p, "go-pixelsafe") {
			hint += " or create " + p
			break
		}
	}
	return format(hint)
}

// format creates a single hint string with consistent formatting.
func format(hint string) string {
	if hint == "" {
		return ""
	}
	return "\n  hint: " + hint
}

// formatHints joins multiple hints with consistent formatting.
func formatHints(hints []string) string {
	if len(hints) == 0 {
		return ""
	}
	return format(strings.Join(hints, "; "))
}
