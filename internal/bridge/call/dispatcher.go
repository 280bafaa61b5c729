// Package call implements the typed call dispatcher: it turns a "send this
// message with these typed arguments" request into a native engine call and
// marshals the results back.
package call

import (
	"fmt"
	"sync"

	"github.com/dshills/lumen/internal/bridge"
	"github.com/dshills/lumen/internal/engine"
)

// Args is a forward-only cursor over a caller's argument list.
// Each method consumes one argument. Type mismatches are reported as errors
// wrapping bridge.ErrArgument.
type Args interface {
	Integer() (int64, error)
	Boolean() (bool, error)
	String() (string, error)
	// Remaining returns the number of unconsumed non-nil arguments.
	Remaining() int
}

// ResultKind discriminates a Result.
type ResultKind uint8

const (
	ResultString ResultKind = iota
	ResultBool
	ResultInt
)

// Result is one value produced by a typed call.
type Result struct {
	Kind ResultKind
	Str  string
	Bool bool
	Int  int64
}

// Dispatcher performs typed calls against an engine.
type Dispatcher struct {
	engine engine.Engine
	bufs   sync.Pool
}

// NewDispatcher creates a dispatcher for e.
func NewDispatcher(e engine.Engine) *Dispatcher {
	return &Dispatcher{engine: e}
}

// Engine returns the engine calls are sent to.
func (d *Dispatcher) Engine() engine.Engine {
	return d.engine
}

// Invoke performs the native call described by desc on target, consuming
// arguments from args. Results are produced in the order string, bool, int.
func (d *Dispatcher) Invoke(desc Descriptor, target engine.Identity, args Args) ([]Result, error) {
	var w [2]engine.Word
	var err error

	switch {
	case desc.Param1 == Length && desc.Param2 == String:
		var s string
		if s, err = args.String(); err != nil {
			return nil, err
		}
		w[0] = engine.IntWord(int64(len(s)))
		w[1] = engine.BufWord([]byte(s))
	case desc.returnsString():
		// Only a leading non-length parameter is taken from the caller.
		if desc.Param1 != Void && desc.Param1 != Length {
			if w[0], err = convert(desc.Param1, args); err != nil {
				return nil, err
			}
		}
	default:
		if w[0], err = convert(desc.Param1, args); err != nil {
			return nil, err
		}
		if w[1], err = convert(desc.Param2, args); err != nil {
			return nil, err
		}
	}
	if n := args.Remaining(); n > 0 {
		return nil, fmt.Errorf("%w: %d unexpected argument(s)", bridge.ErrArgument, n)
	}

	var results []Result
	var ret int64
	if desc.returnsString() {
		var s string
		s, ret = d.callWithBuffer(desc, target, w[0])
		results = append(results, Result{Kind: ResultString, Str: s})
	} else {
		ret = d.engine.Send(target, desc.Msg, w[0], w[1])
	}

	switch {
	case desc.Ret == Bool:
		results = append(results, Result{Kind: ResultBool, Bool: ret != 0})
	case desc.Ret.numeric():
		if desc.Ret == Index {
			ret = FromNativeIndex(ret)
		}
		results = append(results, Result{Kind: ResultInt, Int: ret})
	}
	return results, nil
}

// callWithBuffer probes the required output size, performs the real call
// into a pooled buffer and copies the text out.
func (d *Dispatcher) callWithBuffer(desc Descriptor, target engine.Identity, w0 engine.Word) (string, int64) {
	size := d.engine.Send(target, desc.Msg, w0, engine.Word{})
	if size < 0 {
		size = 0
	}
	n := size
	if desc.Param1 == Length {
		// The engine wants the buffer size in wParam and appends a NUL.
		w0 = engine.IntWord(size)
		n = max(size-1, 0)
	}

	buf := d.buffer(int(size))
	defer d.release(buf)

	ret := d.engine.Send(target, desc.Msg, w0, engine.Word{N: size, P: *buf})
	return string((*buf)[:n]), ret
}

func (d *Dispatcher) buffer(size int) *[]byte {
	if p, ok := d.bufs.Get().(*[]byte); ok && cap(*p) >= size {
		*p = (*p)[:size]
		clear(*p)
		return p
	}
	b := make([]byte, size, max(size, 64))
	return &b
}

func (d *Dispatcher) release(p *[]byte) {
	d.bufs.Put(p)
}

// convert consumes the arguments for one parameter of the given kind.
func convert(kind ParamKind, args Args) (engine.Word, error) {
	switch kind {
	case Void, StringRet:
		return engine.Word{}, nil
	case Int, Length:
		n, err := args.Integer()
		return engine.IntWord(n), err
	case Index:
		n, err := args.Integer()
		return engine.IntWord(ToNativeIndex(n)), err
	case Color:
		n, err := args.Integer()
		return engine.IntWord(PackColor(n)), err
	case Bool:
		b, err := args.Boolean()
		if b {
			return engine.IntWord(1), err
		}
		return engine.IntWord(0), err
	case KeyMod:
		key, err := args.Integer()
		if err != nil {
			return engine.Word{}, err
		}
		mods, err := args.Integer()
		return engine.IntWord(PackKeyMod(key, mods)), err
	case String:
		s, err := args.String()
		return engine.BufWord([]byte(s)), err
	}
	return engine.Word{}, fmt.Errorf("%w: unknown parameter kind %v", bridge.ErrArgument, kind)
}
