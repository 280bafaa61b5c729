package call

import (
	"fmt"

	"github.com/dshills/lumen/internal/bridge"
	"github.com/dshills/lumen/internal/engine"
)

// Call invokes a function entry.
func (d *Dispatcher) Call(op Op, target engine.Identity, args Args) ([]Result, error) {
	e, err := entry(op, Function)
	if err != nil {
		return nil, err
	}
	return d.Invoke(e.Get, target, args)
}

// Get reads a property. Indexed properties consume their index from args.
func (d *Dispatcher) Get(op Op, target engine.Identity, args Args) ([]Result, error) {
	e, err := entry(op, Property)
	if err != nil {
		return nil, err
	}
	if !e.Readable() {
		return nil, fmt.Errorf("%w: property %q is write-only", bridge.ErrArgument, e.Name)
	}
	return d.Invoke(e.Get, target, args)
}

// Set assigns a property. Indexed properties consume their index first.
func (d *Dispatcher) Set(op Op, target engine.Identity, args Args) error {
	e, err := entry(op, Property)
	if err != nil {
		return err
	}
	if !e.Writable() {
		return fmt.Errorf("%w: property %q is read-only", bridge.ErrArgument, e.Name)
	}
	_, err = d.Invoke(e.Set, target, args)
	return err
}

func entry(op Op, kind EntryKind) (Entry, error) {
	if op < 0 || op >= opCount {
		return Entry{}, fmt.Errorf("%w: unknown operation %d", bridge.ErrArgument, op)
	}
	e := Table[op]
	if e.Kind != kind {
		return Entry{}, fmt.Errorf("%w: %q is not a %s", bridge.ErrArgument, e.Name, kind)
	}
	return e, nil
}

// String returns the entry kind name.
func (k EntryKind) String() string {
	if k == Property {
		return "property"
	}
	return "function"
}

// ValueArgs is an Args cursor over plain Go values. It backs calls made from
// Go code rather than from scripts.
type ValueArgs struct {
	vals []any
	pos  int
}

// Values returns a cursor over vals. Accepted element types are int,
// int64, bool and string.
func Values(vals ...any) *ValueArgs {
	return &ValueArgs{vals: vals}
}

func (a *ValueArgs) next() (any, int, bool) {
	if a.pos >= len(a.vals) {
		return nil, a.pos + 1, false
	}
	a.pos++
	return a.vals[a.pos-1], a.pos, true
}

// Integer implements Args.
func (a *ValueArgs) Integer() (int64, error) {
	v, n, ok := a.next()
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	}
	if !ok {
		return 0, fmt.Errorf("%w: argument #%d: integer expected, got no value", bridge.ErrArgument, n)
	}
	return 0, fmt.Errorf("%w: argument #%d: integer expected, got %T", bridge.ErrArgument, n, v)
}

// Boolean implements Args. Any value other than nil and false is true.
func (a *ValueArgs) Boolean() (bool, error) {
	v, _, _ := a.next()
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	}
	return true, nil
}

// String implements Args.
func (a *ValueArgs) String() (string, error) {
	v, n, ok := a.next()
	if s, isStr := v.(string); isStr {
		return s, nil
	}
	if !ok {
		return "", fmt.Errorf("%w: argument #%d: string expected, got no value", bridge.ErrArgument, n)
	}
	return "", fmt.Errorf("%w: argument #%d: string expected, got %T", bridge.ErrArgument, n, v)
}

// Remaining implements Args.
func (a *ValueArgs) Remaining() int {
	n := 0
	for _, v := range a.vals[a.pos:] {
		if v != nil {
			n++
		}
	}
	return n
}
