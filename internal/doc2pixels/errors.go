package doc2pixels

import (
	"context"
	"errors"
	"fmt"

	"github.com/alnah/go-pixelsafe"
)

// ExitError carries the exit status the converter must report.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit %d: %v", e.Code, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}

// ExitCode maps err to the converter's exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return pixelsafe.CodeInterrupted
	}
	// Frame writer refusals carry the code of the broken limit.
	if ce, ok := pixelsafe.AsConversionError(err); ok {
		return ce.Code
	}
	return pixelsafe.CodeUnspecified
}
