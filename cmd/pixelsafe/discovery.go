package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/alnah/go-pixelsafe"
	"github.com/alnah/go-pixelsafe/internal/config"
)

// Sentinel errors for file discovery.
var (
	ErrNoInput            = errors.New("no input specified")
	ErrInvalidWorkerCount = errors.New("invalid worker count")
	ErrOutputNotDir       = errors.New("output must be a directory when converting several documents")
)

// FileToConvert represents a single file to process. An empty OutputPath
// means the default "<stem><suffix>.pdf" next to the input.
type FileToConvert struct {
	InputPath  string
	OutputPath string
}

// discoverFiles expands inputs into documents. Directories are walked
// recursively, skipping hidden entries, archived originals and safe
// copies from earlier runs.
func discoverFiles(inputs []string, output, suffix string) ([]FileToConvert, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInput
	}
	suffix = outputSuffix(suffix)

	var files []FileToConvert
	seen := make(map[string]bool)
	add := func(path, base string) {
		if abs, err := filepath.Abs(path); err == nil {
			if seen[abs] {
				return
			}
			seen[abs] = true
		}
		files = append(files, FileToConvert{InputPath: path, OutputPath: base})
	}

	for _, input := range inputs {
		info, err := os.Stat(input)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(input, "")
			continue
		}

		err = filepath.WalkDir(input, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return fmt.Errorf("scanning %s: %w", path, err)
			}
			name := d.Name()
			if d.IsDir() {
				if path != input && (strings.HasPrefix(name, ".") || name == pixelsafe.ArchiveDirName) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || strings.HasPrefix(name, ".") || isSafeCopy(name, suffix) {
				return nil
			}
			add(path, input)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no documents found in %s", ErrNoInput, strings.Join(inputs, ", "))
	}
	return resolveOutputPaths(files, output, suffix)
}

// resolveOutputPaths places outputs under the --output directory,
// mirroring the layout below each walked input directory. files carry
// their walk root in OutputPath on entry.
func resolveOutputPaths(files []FileToConvert, output, suffix string) ([]FileToConvert, error) {
	suffix = outputSuffix(suffix)
	if output == "" {
		for i := range files {
			files[i].OutputPath = ""
		}
		return files, nil
	}

	if len(files) == 1 && strings.EqualFold(filepath.Ext(output), ".pdf") {
		files[0].OutputPath = output
		return files, nil
	}
	if info, err := os.Stat(output); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrOutputNotDir, output)
	}

	for i, f := range files {
		dir := output
		if root := f.OutputPath; root != "" {
			if rel, err := filepath.Rel(root, filepath.Dir(f.InputPath)); err == nil {
				dir = filepath.Join(output, rel)
			}
		}
		files[i].OutputPath = pixelsafe.DefaultOutputFilename(filepath.Join(dir, filepath.Base(f.InputPath)), suffix)
	}
	return files, nil
}

// isSafeCopy reports whether name is an output of an earlier run.
func isSafeCopy(name, suffix string) bool {
	return strings.HasSuffix(strings.ToLower(name), strings.ToLower(outputSuffix(suffix))+".pdf")
}

// outputSuffix returns suffix, or the default when it is empty.
func outputSuffix(suffix string) string {
	if suffix == "" {
		return pixelsafe.DefaultOutputSuffix
	}
	return suffix
}

// validateWorkers checks that the worker count is within valid bounds.
func validateWorkers(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d (must be >= 0, 0 means auto)", ErrInvalidWorkerCount, n)
	}
	if n > config.MaxWorkers {
		return fmt.Errorf("%w: %d (maximum is %d)", ErrInvalidWorkerCount, n, config.MaxWorkers)
	}
	return nil
}
