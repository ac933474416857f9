// Package fileutil provides file and path utility functions.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// File permission constants.
const (
	DirPermissions     = 0o750 // rwxr-x---: owner full, group read+execute
	FilePermissions    = 0o644 // rw-r--r--: owner read+write, others read
	PrivatePermissions = 0o600 // rw-------: intermediate artifacts
)

// WriteViaStaging writes through write into staging, then renames staging
// over dest. staging must be on the same filesystem as dest. On failure
// staging is removed and dest is untouched.
func WriteViaStaging(staging, dest string, write func(io.Writer) error) (err error) {
	f, err := os.OpenFile(staging, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, FilePermissions) // #nosec G304 -- path derived from output path
	if err != nil {
		return fmt.Errorf("creating %s: %w", staging, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(staging)
		}
	}()

	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", staging, err)
	}
	if err := os.Rename(staging, dest); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", staging, dest, err)
	}
	return nil
}

// OpenAll opens every path for reading. The returned closer closes all
// of them; on error nothing is left open.
func OpenAll(paths []string) ([]io.ReadSeeker, func() error, error) {
	files := make([]*os.File, 0, len(paths))
	closeAll := func() error {
		var errs []error
		for _, f := range files {
			if err := f.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	readers := make([]io.ReadSeeker, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p) // #nosec G304 -- paths inside a private temp dir
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("opening %s: %w", p, err)
		}
		files = append(files, f)
		readers = append(readers, f)
	}
	return readers, closeAll, nil
}

// FileExists returns true if the path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// IsFilePath returns true if the string looks like a file path rather than a name.
// A string containing path separators (/, \) is treated as a path.
//
// Examples:
//   - "default" -> false (name)
//   - "./pixelsafe.yaml" -> true (relative path)
//   - "/etc/pixelsafe/strict.yaml" -> true (absolute)
func IsFilePath(s string) bool {
	return strings.ContainsAny(s, "/\\")
}

// SameDir reports whether a and b live in the same directory.
func SameDir(a, b string) bool {
	return filepath.Clean(filepath.Dir(a)) == filepath.Clean(filepath.Dir(b))
}
