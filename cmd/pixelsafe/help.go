package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: pixelsafe [command] [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  convert    Convert untrusted documents to safe PDFs (default)")
	fmt.Fprintln(w, "  install    Prepare the isolation backend")
	fmt.Fprintln(w, "  config     Print the effective configuration")
	fmt.Fprintln(w, "  doctor     Check the isolation backend and the host")
	fmt.Fprintln(w, "  completion Generate shell completion script")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w, "  help       Show help for a command")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'pixelsafe help <command>' for details on a specific command.")
}

// printConvertUsage prints usage for the convert command.
func printConvertUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: pixelsafe convert <input>... [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Render documents to pixels in a sandbox and rebuild them as PDFs.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Arguments:")
	fmt.Fprintln(w, "  input    Document file or directory")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output:")
	fmt.Fprintln(w, "  -o, --output <path>       Output file (single input) or directory")
	fmt.Fprintln(w, "      --suffix <s>          Suffix of safe copies (default \"-safe\")")
	fmt.Fprintln(w, "      --archive             Move originals to an \"unsafe\" directory")
	fmt.Fprintln(w, "      --ocr-lang <s>        Add a text layer, e.g. eng or eng+fra")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Isolation:")
	fmt.Fprintln(w, "  -b, --backend <s>         Backend: container, bwrap, dummy")
	fmt.Fprintln(w, "      --image <s>           Converter container image")
	fmt.Fprintln(w, "  -w, --workers <n>         Parallel conversions (0 = auto)")
	fmt.Fprintln(w, "  -c, --config <name>       Config file name or path")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output Control:")
	fmt.Fprintln(w, "  -q, --quiet               Only show errors")
	fmt.Fprintln(w, "  -v, --verbose             Show debug logs")
	fmt.Fprintln(w, "      --debug               Log the converter's stderr")
}

// printInstallUsage prints usage for the install command.
func printInstallUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: pixelsafe install [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Check the isolation backend and load the converter image if missing.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  -b, --backend <s>         Backend: container, bwrap, dummy")
	fmt.Fprintln(w, "      --image <s>           Converter container image")
	fmt.Fprintln(w, "      --image-archive <p>   Image tarball to load (gzip or zstd)")
	fmt.Fprintln(w, "  -c, --config <name>       Config file name or path")
}

// printDoctorUsage prints usage for the doctor command.
func printDoctorUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: pixelsafe doctor [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Check the isolation backend and the host without changing anything.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "      --json                Print the report as JSON")
	fmt.Fprintln(w, "  -b, --backend <s>         Backend: container, bwrap, dummy")
	fmt.Fprintln(w, "      --image <s>           Converter container image")
	fmt.Fprintln(w, "  -c, --config <name>       Config file name or path")
}

// runHelp prints help for a specific command.
func runHelp(args []string, env *Environment) {
	if len(args) == 0 {
		printUsage(env.Stdout)
		return
	}

	switch args[0] {
	case "convert":
		printConvertUsage(env.Stdout)
	case "install":
		printInstallUsage(env.Stdout)
	case "doctor":
		printDoctorUsage(env.Stdout)
	case "completion":
		printCompletionUsage(env.Stdout)
	case "config":
		fmt.Fprintln(env.Stdout, "Usage: pixelsafe config [--config <name>]")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Print the effective configuration as YAML.")
	case "version":
		fmt.Fprintln(env.Stdout, "Usage: pixelsafe version")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show version information.")
	case "help":
		fmt.Fprintln(env.Stdout, "Usage: pixelsafe help [command]")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show help for a command.")
	default:
		fmt.Fprintf(env.Stderr, "Unknown command: %s\n", args[0])
		printUsage(env.Stderr)
	}
}
