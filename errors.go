package pixelsafe

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors matching each ConversionError kind with errors.Is.
var (
	// ErrProtocolViolation marks malformed or out-of-bounds data from the child.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrProcessUnresponsive marks a child whose exit status could not be read in time.
	ErrProcessUnresponsive = errors.New("conversion process unresponsive")
	// ErrConversionFailed marks a child that exited with a documented error code.
	ErrConversionFailed = errors.New("conversion failed")
	// ErrUnexpectedConversion marks any failure outside the documented causes.
	ErrUnexpectedConversion = errors.New("unexpected conversion error")
)

// Sentinel errors for lifecycle and document operations.
var (
	ErrSharedProcessGroup = errors.New("conversion process shares the parent's process group")
	ErrWaitTimeout        = errors.New("timed out waiting for process exit")
	ErrInvalidTransition  = errors.New("invalid document state transition")
	ErrNoProvider         = errors.New("no isolation provider configured")
	ErrNoRenderer         = errors.New("no page renderer configured")
)

// Kind classifies a ConversionError.
type Kind int

const (
	// KindUnexpected is any failure that is not otherwise categorized.
	KindUnexpected Kind = iota
	// KindProtocolViolation is malformed framing data from the child.
	KindProtocolViolation
	// KindProcessUnresponsive is a wait on the child that timed out or failed.
	KindProcessUnresponsive
	// KindExitCode is a child exit status mapped to a documented cause.
	KindExitCode
)

func (k Kind) String() string {
	switch k {
	case KindProtocolViolation:
		return "protocol violation"
	case KindProcessUnresponsive:
		return "process unresponsive"
	case KindExitCode:
		return "exit code"
	default:
		return "unexpected"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindProtocolViolation:
		return ErrProtocolViolation
	case KindProcessUnresponsive:
		return ErrProcessUnresponsive
	case KindExitCode:
		return ErrConversionFailed
	default:
		return ErrUnexpectedConversion
	}
}

// ConversionError is a user-facing conversion failure. Message is safe to
// show to users; Err keeps the low-level cause.
type ConversionError struct {
	Kind    Kind
	Code    int
	Message string

	// PID and Timeout are set for KindProcessUnresponsive.
	PID     int
	Timeout time.Duration

	Err error
}

func (e *ConversionError) Error() string {
	return e.Message
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *ConversionError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// AsConversionError returns the first ConversionError in err's chain.
func AsConversionError(err error) (*ConversionError, bool) {
	var ce *ConversionError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// protocolError builds a KindProtocolViolation error for a table code.
func protocolError(code int, cause error) *ConversionError {
	return &ConversionError{
		Kind:    KindProtocolViolation,
		Code:    code,
		Message: exitCodeMessage(code),
		Err:     cause,
	}
}

// isProcessIOFailure reports whether err is the low-level signal that the
// child's streams broke, which calls for a look at its exit status.
func isProcessIOFailure(err error) bool {
	ce, ok := AsConversionError(err)
	return ok && ce.Kind == KindProtocolViolation && ce.Code == CodeConverterProc
}

func unresponsiveError(pid int, timeout time.Duration, cause error, format string, args ...any) *ConversionError {
	return &ConversionError{
		Kind:    KindProcessUnresponsive,
		Code:    CodeUnexpected,
		Message: fmt.Sprintf(format, args...),
		PID:     pid,
		Timeout: timeout,
		Err:     cause,
	}
}
