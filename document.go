package pixelsafe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Document is the conversion's view of a document. The converter only
// reads its fields and calls its state transitions.
type Document interface {
	ID() string
	InputFilename() string
	OutputFilename() string
	// SanitizedOutputFilename is the staging path the output is written
	// to before being renamed over OutputFilename.
	SanitizedOutputFilename() string
	// OCRLanguage is empty when no text layer is wanted.
	OCRLanguage() string
	ArchiveAfterConversion() bool

	MarkAsConverting()
	MarkAsSafe()
	MarkAsFailed()
	// Archive moves the original out of the way after a safe conversion.
	Archive() error
}

// State is the conversion state of a FileDocument.
type State int

const (
	StatePending State = iota
	StateConverting
	StateSafe
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConverting:
		return "converting"
	case StateSafe:
		return "safe"
	case StateFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Output naming defaults.
const (
	DefaultOutputSuffix = "-safe"
	ArchiveDirName      = "unsafe"
)

// DocumentOptions configure a FileDocument.
type DocumentOptions struct {
	// OutputFilename overrides the default "<stem>-safe.pdf" next to the input.
	OutputFilename string
	// OutputSuffix replaces DefaultOutputSuffix in the default name.
	OutputSuffix string
	OCRLanguage  string
	Archive      bool
}

// FileDocument is a Document backed by files on disk.
type FileDocument struct {
	id      string
	input   string
	output  string
	ocrLang string
	archive bool

	mu    sync.Mutex
	state State
	err   error
}

// Compile-time interface check.
var _ Document = (*FileDocument)(nil)

// NewFileDocument creates a pending document for the input file.
func NewFileDocument(input string, opts DocumentOptions) (*FileDocument, error) {
	abs, err := filepath.Abs(input)
	if err != nil {
		return nil, fmt.Errorf("resolving input path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("input document: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("input document %s is a directory", abs)
	}

	output := opts.OutputFilename
	if output == "" {
		suffix := opts.OutputSuffix
		if suffix == "" {
			suffix = DefaultOutputSuffix
		}
		output = DefaultOutputFilename(abs, suffix)
	}
	if output, err = filepath.Abs(output); err != nil {
		return nil, fmt.Errorf("resolving output path: %w", err)
	}
	if output == abs {
		return nil, fmt.Errorf("output %s would overwrite the input", output)
	}

	return &FileDocument{
		id:      uuid.NewString()[:8],
		input:   abs,
		output:  output,
		ocrLang: opts.OCRLanguage,
		archive: opts.Archive,
	}, nil
}

// DefaultOutputFilename returns "<dir>/<stem><suffix>.pdf" for input.
func DefaultOutputFilename(input, suffix string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(input), stem+suffix+".pdf")
}

func (d *FileDocument) ID() string                   { return d.id }
func (d *FileDocument) OutputFilename() string       { return d.output }
func (d *FileDocument) OCRLanguage() string          { return d.ocrLang }
func (d *FileDocument) ArchiveAfterConversion() bool { return d.archive }

// InputFilename is the current location of the original, which moves
// when archived.
func (d *FileDocument) InputFilename() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.input
}

// SanitizedOutputFilename is ASCII-only whatever the output name is.
func (d *FileDocument) SanitizedOutputFilename() string {
	return filepath.Join(filepath.Dir(d.output), "."+d.id+".sanitizing.pdf")
}

// State returns the current state.
func (d *FileDocument) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Err returns the first rejected transition, if any.
func (d *FileDocument) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *FileDocument) MarkAsConverting() { d.transition(StateConverting) }
func (d *FileDocument) MarkAsSafe()       { d.transition(StateSafe) }
func (d *FileDocument) MarkAsFailed()     { d.transition(StateFailed) }

// transition enforces pending -> converting -> {safe, failed}. A
// terminal document may be converted again.
func (d *FileDocument) transition(to State) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ok := false
	switch to {
	case StateConverting:
		ok = d.state != StateConverting
	case StateSafe, StateFailed:
		ok = d.state == StateConverting
	}
	if !ok {
		if d.err == nil {
			d.err = fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.state, to)
		}
		return
	}
	d.state = to
}

// Archive moves the input into an "unsafe" directory next to it.
func (d *FileDocument) Archive() error {
	input := d.InputFilename()
	dir := filepath.Join(filepath.Dir(input), ArchiveDirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}
	dest := filepath.Join(dir, filepath.Base(input))
	if err := os.Rename(input, dest); err != nil {
		return fmt.Errorf("archiving %s: %w", input, err)
	}
	d.mu.Lock()
	d.input = dest
	d.mu.Unlock()
	return nil
}
