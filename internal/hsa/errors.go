package hsa

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
)

// Kind classifies a failure by who can fix it.
type Kind int

const (
	// KindEnvironment failures come from the driver or installation: runtime
	// init, missing accelerator or global pool, queue creation, allocation.
	// Retrying without fixing the machine does not help.
	KindEnvironment Kind = iota
	// KindResource failures come from inputs on disk: missing or malformed
	// code objects, missing symbols.
	KindResource
	// KindInput failures come from caller-supplied values.
	KindInput
)

func (k Kind) String() string {
	switch k {
	case KindEnvironment:
		return "environment"
	case KindResource:
		return "resource"
	case KindInput:
		return "input"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// StatusError is returned by a Runtime when a call reports a non-success status.
type StatusError struct {
	Op     string
	Status Status
	Desc   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Desc)
}

// NewStatusError builds the error for a failed runtime call.
func NewStatusError(op string, status Status, desc string) *StatusError {
	if desc == "" {
		desc = status.Text()
	}
	return &StatusError{Op: op, Status: status, Desc: desc}
}

// Error is a classified failure. It names the failing operation, the source
// location that observed it and the runtime's description.
type Error struct {
	Kind   Kind
	Op     string
	Status Status
	Desc   string
	File   string
	Line   int
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("HSA API call failure: %s at line %d, file: %s. Error: %s", e.Op, e.Line, e.File, e.Desc)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fail classifies err as a failure of op, recording the caller's location.
func Fail(kind Kind, op string, err error) error {
	return newError(2, kind, op, err)
}

// Failf is Fail for failures that did not come from a runtime call.
func Failf(kind Kind, op string, format string, args ...any) error {
	return newError(2, kind, op, errors.Errorf(format, args...))
}

func newError(skip int, kind Kind, op string, err error) *Error {
	e := &Error{Kind: kind, Op: op, Status: StatusErrorGeneric, Err: err}
	if err != nil {
		e.Desc = err.Error()
	}
	var se *StatusError
	if errors.As(err, &se) {
		e.Status = se.Status
		e.Desc = se.Desc
	}
	if _, file, line, ok := runtime.Caller(skip); ok {
		e.File = filepath.Base(file)
		e.Line = line
	}
	return e
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// StatusOf returns the runtime status carried by err, or StatusErrorGeneric
// when err did not come from a runtime call.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return StatusErrorGeneric
}

// IsFatal reports whether err leaves the process without a usable accelerator.
// Only environment failures qualify; the rest are returned to the caller.
func IsFatal(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindEnvironment
}
