package main

import (
	"io"

	flag "github.com/spf13/pflag"
)

// commonFlags holds flags shared across commands.
type commonFlags struct {
	config  string
	quiet   bool
	verbose bool
	debug   bool
}

// backendFlags override the isolation backend from the config.
type backendFlags struct {
	backend string
	image   string
}

// convertFlags holds all flags for the convert command.
type convertFlags struct {
	common  commonFlags
	backend backendFlags
	output  string
	suffix  string
	workers int
	ocrLang string
	archive bool
}

// installFlags holds flags for the install command.
type installFlags struct {
	common  commonFlags
	backend backendFlags
	archive string
}

// doctorFlags holds flags for the doctor command.
type doctorFlags struct {
	json    bool
	config  string
	backend backendFlags
}

// addCommonFlags adds common flags to a FlagSet.
func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only show errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "show debug logs")
	fs.BoolVar(&f.debug, "debug", false, "log the converter's stderr after each document")
}

// addBackendFlags adds isolation backend flags to a FlagSet.
func addBackendFlags(fs *flag.FlagSet, f *backendFlags) {
	fs.StringVarP(&f.backend, "backend", "b", "", "isolation backend: container, bwrap, dummy")
	fs.StringVar(&f.image, "image", "", "converter container image")
}

// newConvertFlagSet registers the convert flags into f. Parsing and
// shell completion share it.
func newConvertFlagSet(f *convertFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	fs.StringVarP(&f.output, "output", "o", "", "output file (single input) or directory")
	fs.StringVar(&f.suffix, "suffix", "", "suffix of safe copies (default \"-safe\")")
	fs.IntVarP(&f.workers, "workers", "w", 0, "parallel conversions (0 = auto)")
	fs.StringVar(&f.ocrLang, "ocr-lang", "", "add a text layer in this language, e.g. eng or eng+fra")
	fs.BoolVar(&f.archive, "archive", false, "move originals to an \"unsafe\" directory")

	addCommonFlags(fs, &f.common)
	addBackendFlags(fs, &f.backend)
	return fs
}

// newInstallFlagSet registers the install flags into f.
func newInstallFlagSet(f *installFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("install", flag.ContinueOnError)
	fs.StringVar(&f.archive, "image-archive", "", "image tarball to load (gzip or zstd)")
	addCommonFlags(fs, &f.common)
	addBackendFlags(fs, &f.backend)
	return fs
}

// newDoctorFlagSet registers the doctor flags into f.
func newDoctorFlagSet(f *doctorFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.BoolVar(&f.json, "json", false, "print the report as JSON")
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	addBackendFlags(fs, &f.backend)
	return fs
}

// parseConvertFlags parses convert command flags and returns positional args.
func parseConvertFlags(args []string, stderr io.Writer) (*convertFlags, []string, error) {
	f := &convertFlags{}
	fs := newConvertFlagSet(f)
	fs.SetOutput(stderr)
	fs.Usage = func() { printConvertUsage(stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, nil, usageError(err)
	}
	return f, fs.Args(), nil
}

// parseInstallFlags parses install command flags.
func parseInstallFlags(args []string, stderr io.Writer) (*installFlags, error) {
	f := &installFlags{}
	fs := newInstallFlagSet(f)
	fs.SetOutput(stderr)
	fs.Usage = func() { printInstallUsage(stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, usageError(err)
	}
	if fs.NArg() > 0 {
		return nil, usageError(errUnexpectedArgs(fs.Args()))
	}
	return f, nil
}

// parseDoctorFlags parses doctor command flags.
func parseDoctorFlags(args []string, stderr io.Writer) (*doctorFlags, error) {
	f := &doctorFlags{}
	fs := newDoctorFlagSet(f)
	fs.SetOutput(stderr)
	fs.Usage = func() { printDoctorUsage(stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, usageError(err)
	}
	if fs.NArg() > 0 {
		return nil, usageError(errUnexpectedArgs(fs.Args()))
	}
	return f, nil
}
