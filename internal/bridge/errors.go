// Package bridge holds the error taxonomy shared by the components that
// connect native editor objects to the Lua runtime.
package bridge

import (
	"errors"
	"fmt"
)

// Bridge errors. Callers test for them with errors.Is.
var (
	// ErrArgument indicates a typed-call argument does not match its
	// declared type, or an index outside its declared range.
	ErrArgument = errors.New("argument contract violation")

	// ErrOutOfRange indicates a position-based lookup or navigation past
	// the ends of a document or view list.
	ErrOutOfRange = errors.New("index out of range")

	// ErrInitialization indicates an operation disallowed while the
	// runtime is starting up or shutting down.
	ErrInitialization = errors.New("operation not allowed during initialization")

	// ErrScriptHandler indicates an error raised inside a scripted handler.
	ErrScriptHandler = errors.New("script handler error")

	// ErrSpawn indicates process creation failed at the OS level.
	ErrSpawn = errors.New("process spawn failed")

	// ErrRead indicates a process stream read failed. End of stream is
	// reported as io.EOF instead.
	ErrRead = errors.New("process read failed")

	// ErrStale indicates a proxy whose native object was already removed.
	ErrStale = errors.New("stale proxy")
)

// OperationError records the bridge operation that failed and why.
type OperationError struct {
	Op     string // Operation name (e.g. "switch_document", "text_range")
	Target string // Target of the operation, if any
	Err    error  // Underlying error
}

// Errorf wraps a sentinel error with a formatted message for op.
func Errorf(op string, sentinel error, format string, args ...any) *OperationError {
	return &OperationError{
		Op:  op,
		Err: fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)),
	}
}

// NewOperationError creates a new OperationError.
func NewOperationError(op, target string, err error) *OperationError {
	return &OperationError{Op: op, Target: target, Err: err}
}

func (e *OperationError) Error() string {
	if e == nil {
		return ""
	}

	msg := e.Op
	if e.Target != "" {
		msg = fmt.Sprintf("%s %s", e.Op, e.Target)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
