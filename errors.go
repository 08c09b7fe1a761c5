package bootimage

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Kind classifies a failure by where it originates. Every kind but IO is
// fatal: the caller must discard whatever partial output exists and abort.
// IO is the only kind that unwinds cleanly to the CLI with a non-zero exit.
type Kind uint8

const (
	// MalformedClass: class-file magic mismatch or unknown constant-pool tag.
	MalformedClass Kind = iota
	// UnsupportedLayout: a field code outside the recognized set.
	UnsupportedLayout
	// CapacityExceeded: the heap or code buffer would overflow.
	CapacityExceeded
	// InvariantViolation: an offset fell outside its TypeMap's declared
	// range, an object lacks a TypeMap, or a deferred constant resolved to
	// index 0.
	InvariantViolation
	// IO: output write or classpath read failure. The only recoverable kind.
	IO
)

func (k Kind) String() string {
	switch k {
	case MalformedClass:
		return "malformed class"
	case UnsupportedLayout:
		return "unsupported layout"
	case CapacityExceeded:
		return "capacity exceeded"
	case InvariantViolation:
		return "invariant violation"
	case IO:
		return "io"
	default:
		return "unknown"
	}
}

// Error wraps a Kind with a message and optional cause. All kinds but IO
// are fatal; Fatal reports whether the caller should abort the process
// outright rather than unwind cleanly through the CLI's exit path.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bootimage: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("bootimage: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Fatal reports whether err (if it is or wraps a *Error) demands aborting
// the process rather than returning a clean exit status.
func (e *Error) Fatal() bool { return e.Kind != IO }

func newErr(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func wrapErr(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: xerrors.Errorf("%w", cause)}
}

// IsFatal reports whether err demands aborting the process: true for every
// Kind except IO, and true for any error that isn't a *Error at all (an
// unexpected condition the caller did not anticipate).
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var be *Error
	if xerrors.As(err, &be) {
		return be.Fatal()
	}
	return true
}
