package pixelsafe

import (
	"errors"
	"time"
)

// Classify turns the exit behavior of p into a ConversionError after an
// I/O failure (cause) on its streams. It waits at most timeout and never
// invents an exit status: a child that does not exit in time, or whose
// status cannot be read, yields KindProcessUnresponsive.
func Classify(p Process, timeout time.Duration, cause error) error {
	code, err := p.Wait(timeout)
	if errors.Is(err, ErrWaitTimeout) {
		return unresponsiveError(p.PID(), timeout, cause,
			"Encountered an I/O error during document to pixels conversion, but the conversion process is still running after %s (PID: %d)",
			timeout, p.PID())
	}
	if err != nil {
		return unresponsiveError(p.PID(), timeout, errors.Join(cause, err),
			"Encountered an I/O error during document to pixels conversion, but the status of the conversion process is unknown (PID: %d)",
			p.PID())
	}

	// A child that reports success while its stream was cut short is
	// lying about the stream.
	if code == 0 {
		if ce, ok := AsConversionError(cause); ok {
			return ce
		}
		return protocolError(CodeConverterProc, cause)
	}

	ce := ErrorFromExitCode(code)
	ce.Err = cause
	return ce
}
