// Package event implements the event emission protocol: a synchronous
// call-out that notifies the scripting layer of a named event, collects its
// "handled" verdict and contains any error the handlers raise.
//
// Emit never propagates a handler error to its caller. Errors are reported
// through a secondary "error" event while a view exists to show them, and
// written to a diagnostic stream otherwise. A reporting guard ensures an
// "error" handler that itself fails cannot recurse without bound.
package event

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/dshills/lumen/internal/bridge/call"
)

// Well-known event names.
const (
	BufferNew          = "buffer_new"
	BufferDeleted      = "buffer_deleted"
	BufferBeforeSwitch = "buffer_before_switch"
	BufferAfterSwitch  = "buffer_after_switch"
	ViewNew            = "view_new"
	ViewBeforeSwitch   = "view_before_switch"
	ViewAfterSwitch    = "view_after_switch"
	Error              = "error"
	Initialized        = "initialized"
	Quit               = "quit"
	Keypress           = "keypress"
	InitChanged        = "init_changed"
	Resize             = "resize"
)

// Kind discriminates an Arg.
type Kind uint8

const (
	Nil Kind = iota
	Int
	Bool
	String
	Table
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Nil:
		return "nil"
	case Int:
		return "int"
	case Bool:
		return "bool"
	case String:
		return "string"
	case Table:
		return "table"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Arg is one typed event argument.
type Arg struct {
	Kind Kind
	Int  int64
	Bool bool
	Str  string
	Ref  *Ref
}

// NilArg returns a nil argument.
func NilArg() Arg { return Arg{Kind: Nil} }

// IntArg returns an integer argument.
func IntArg(v int64) Arg { return Arg{Kind: Int, Int: v} }

// IndexArg returns a native 0-based index converted to the 1-based
// convention scripts use.
func IndexArg(v int64) Arg { return Arg{Kind: Int, Int: call.FromNativeIndex(v)} }

// ColorArg returns a color argument in packed form.
func ColorArg(v int64) Arg { return Arg{Kind: Int, Int: call.PackColor(v)} }

// BoolArg returns a boolean argument.
func BoolArg(v bool) Arg { return Arg{Kind: Bool, Bool: v} }

// StringArg returns a string argument.
func StringArg(s string) Arg { return Arg{Kind: String, Str: s} }

// TableArg returns a structured payload argument. Emit consumes the
// caller's reference to ref.
func TableArg(ref *Ref) Arg { return Arg{Kind: Table, Ref: ref} }

// Value returns the argument as a plain Go value.
func (a Arg) Value() any {
	switch a.Kind {
	case Int:
		return a.Int
	case Bool:
		return a.Bool
	case String:
		return a.Str
	case Table:
		if a.Ref != nil {
			return a.Ref.Value()
		}
	}
	return nil
}

// Ref is a reference-counted structured payload. The release hook runs when
// the last reference is dropped.
type Ref struct {
	refs    atomic.Int32
	value   any
	release func(any)
}

// NewRef creates a payload holding one reference.
func NewRef(value any, release func(any)) *Ref {
	r := &Ref{value: value, release: release}
	r.refs.Store(1)
	return r
}

// Value returns the payload.
func (r *Ref) Value() any { return r.value }

// Refs returns the current reference count.
func (r *Ref) Refs() int { return int(r.refs.Load()) }

// Retain adds a reference.
func (r *Ref) Retain() *Ref {
	r.refs.Add(1)
	return r
}

// Release drops a reference. Releasing an already released payload panics.
func (r *Ref) Release() {
	n := r.refs.Add(-1)
	switch {
	case n == 0:
		if r.release != nil {
			r.release(r.value)
		}
	case n < 0:
		panic("event: Ref released too many times")
	}
}

// Dispatcher delivers an event to the scripting layer's handler chain.
//
// installed is false when no dispatch table exists yet; that is not an
// error. handled is the truthiness of the handler chain's result.
// Dispatchers must not release Table arguments; they may Retain them.
type Dispatcher interface {
	Dispatch(name string, args []Arg) (handled, installed bool, err error)
}

// Logger is the logging interface the emitter uses.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Options configure an Emitter.
type Options struct {
	// HasView reports whether a view exists to display errors. When it
	// returns false, errors go to Diagnostics instead.
	HasView func() bool

	// Diagnostics receives errors that cannot be reported as an event.
	// Defaults to os.Stderr.
	Diagnostics io.Writer

	Logger Logger
}

// Emitter implements Emit.
type Emitter struct {
	dispatcher Dispatcher
	hasView    func() bool
	diag       io.Writer
	logger     Logger

	// reporting is set while an "error" event raised by Emit itself is in
	// flight. A failure inside it goes to the diagnostic stream.
	reporting bool
}

// NewEmitter creates an emitter with no dispatcher attached.
func NewEmitter(opts Options) *Emitter {
	e := &Emitter{
		hasView: opts.HasView,
		diag:    opts.Diagnostics,
		logger:  opts.Logger,
	}
	if e.diag == nil {
		e.diag = os.Stderr
	}
	if e.logger == nil {
		e.logger = nopLogger{}
	}
	return e
}

// SetDispatcher attaches the scripting layer. A nil dispatcher detaches it.
func (e *Emitter) SetDispatcher(d Dispatcher) {
	e.dispatcher = d
}

// Emit notifies handlers of name and returns whether they handled it.
// It returns false when no handlers are installed or a handler failed.
// Table arguments are released exactly once before Emit returns.
func (e *Emitter) Emit(name string, args ...Arg) bool {
	defer releaseTables(args)

	if e.dispatcher == nil {
		return false
	}

	handled, installed, err := e.dispatcher.Dispatch(name, args)
	if !installed {
		return false
	}
	if err != nil {
		e.Report(fmt.Errorf("event %q: %w", name, err))
		return false
	}
	return handled
}

// Report surfaces err to the user without propagating it. It emits an
// "error" event while a view exists and writes to the diagnostic stream
// otherwise, or when the error arose while reporting a previous one.
func (e *Emitter) Report(err error) {
	if err == nil {
		return
	}
	msg := err.Error()
	e.logger.Error("%s", msg)

	if e.reporting || e.dispatcher == nil || e.hasView == nil || !e.hasView() {
		_, _ = fmt.Fprintln(e.diag, msg)
		return
	}

	e.reporting = true
	defer func() { e.reporting = false }()
	e.Emit(Error, StringArg(msg))
}

func releaseTables(args []Arg) {
	for _, a := range args {
		if a.Kind == Table && a.Ref != nil {
			a.Ref.Release()
		}
	}
}
