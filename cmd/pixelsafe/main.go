package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/alnah/go-pixelsafe"
	"github.com/alnah/go-pixelsafe/internal/config"
	"github.com/alnah/go-pixelsafe/internal/hints"
	"github.com/alnah/go-pixelsafe/internal/pdfrender"
	"github.com/alnah/go-pixelsafe/isolation/container"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	// Error ignored: maxprocs.Set only fails if GOMAXPROCS env is invalid,
	// in which case Go runtime defaults apply.
	_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))

	ctx, stop := notifyContext(context.Background())
	code := runMain(ctx, os.Args, DefaultEnv())
	stop()
	os.Exit(code)
}

// notifyContext returns a context canceled on interrupt or termination.
// Canceling stops pending documents and kills running converters.
func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// runMain dispatches to a command and returns the process exit code.
// Without a command name, arguments are passed to convert.
func runMain(ctx context.Context, args []string, env *Environment) int {
	if len(args) < 2 {
		printUsage(env.Stderr)
		return ExitUsage
	}

	var err error
	switch cmd, rest := args[1], args[2:]; cmd {
	case "convert":
		err = runConvert(ctx, rest, env)
	case "install":
		err = runInstall(ctx, rest, env)
	case "config":
		err = runConfig(rest, env)
	case "doctor":
		err = runDoctor(ctx, rest, env)
	case "completion":
		err = runCompletion(rest, env)
	case "version":
		fmt.Fprintf(env.Stdout, "pixelsafe %s\n", Version)
	case "help", "-h", "--help":
		runHelp(rest, env)
	default:
		if !strings.HasPrefix(cmd, "-") && !looksLikeInput(cmd) {
			fmt.Fprintf(env.Stderr, "Unknown command: %s\n", cmd)
			printUsage(env.Stderr)
			return ExitUsage
		}
		err = runConvert(ctx, args[1:], env)
	}

	if err != nil {
		fmt.Fprintf(env.Stderr, "Error: %v%s\n", err, hintFor(err))
	}
	return exitCodeFor(err)
}

// hintFor returns an actionable hint for well-known failures, or "".
func hintFor(err error) string {
	switch {
	case errors.Is(err, container.ErrNoRuntime):
		return hints.ForNoRuntime()
	case errors.Is(err, container.ErrImageMissing):
		return hints.ForImageMissing()
	case errors.Is(err, pdfrender.ErrOCRUnavailable):
		return hints.ForOCRUnavailable()
	case errors.Is(err, config.ErrConfigNotFound):
		var searched []string
		if _, tried, ok := strings.Cut(err.Error(), "tried "); ok {
			searched = strings.Split(tried, ", ")
		}
		return hints.ForConfigNotFound(searched)
	case errors.Is(err, pixelsafe.ErrProcessUnresponsive):
		return hints.ForUnresponsive()
	}

	var ce *pixelsafe.ConversionError
	if errors.As(err, &ce) && ce.Kind == pixelsafe.KindUnexpected && isBwrapStart(ce) {
		return hints.ForSandbox()
	}
	return ""
}

// isBwrapStart reports whether a conversion failed to start under bwrap.
func isBwrapStart(ce *pixelsafe.ConversionError) bool {
	return strings.Contains(ce.Message, "bwrap") || strings.Contains(fmt.Sprint(ce.Err), "bwrap")
}

// looksLikeInput reports whether arg names an existing file or directory.
func looksLikeInput(arg string) bool {
	_, err := os.Stat(arg)
	return err == nil
}
