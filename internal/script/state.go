// Package script hosts the Lua runtime that drives the editor.
//
// The host exposes documents and views as userdata proxies backed by the
// registry, routes property access and method calls through the typed call
// dispatcher, installs the events table the emitter dispatches into, and
// provides os.spawn, timeout and the ui module.
//
// gopher-lua's LState is not goroutine-safe. Every State and Host method
// must run on the main loop goroutine. Calls nest: a Go function called
// from Lua may emit events that run Lua handlers on the same state.
package script

import (
	"errors"
	"fmt"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/lumen/internal/bridge"
)

// ErrStateClosed is returned when operating on a closed state.
var ErrStateClosed = errors.New("lua state is closed")

// State wraps a gopher-lua state.
type State struct {
	L *lua.LState

	home   string
	closed bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithHome adds dir/?.lua and dir/?/init.lua to package.path.
func WithHome(dir string) StateOption {
	return func(s *State) {
		s.home = dir
	}
}

// NewState creates a state with the standard libraries open.
func NewState(opts ...StateOption) *State {
	s := &State{}
	for _, opt := range opts {
		opt(s)
	}

	s.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	s.L.OpenLibs()

	if s.home != "" {
		pkg := s.L.GetGlobal("package")
		path := lua.LVAsString(s.L.GetField(pkg, "path"))
		path = filepath.Join(s.home, "?.lua") + ";" + filepath.Join(s.home, "?", "init.lua") + ";" + path
		s.L.SetField(pkg, "path", lua.LString(path))
	}
	return s
}

// DoFile executes a Lua file.
func (s *State) DoFile(path string) error {
	if s.closed {
		return ErrStateClosed
	}
	return s.doWithRecovery(func() error {
		return s.L.DoFile(path)
	})
}

// DoString executes a Lua chunk.
func (s *State) DoString(code string) error {
	if s.closed {
		return ErrStateClosed
	}
	return s.doWithRecovery(func() error {
		return s.L.DoString(code)
	})
}

// doWithRecovery executes fn with panic recovery.
func (s *State) doWithRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// Call calls fn with args in protected mode and returns its results. The
// stack is left as it was found. Errors raised by fn wrap
// bridge.ErrScriptHandler.
func (s *State) Call(fn lua.LValue, args ...lua.LValue) ([]lua.LValue, error) {
	if s.closed {
		return nil, ErrStateClosed
	}
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%w: %s is not a function", bridge.ErrArgument, fn.Type())
	}

	top := s.L.GetTop()
	s.L.Push(fn)
	for _, a := range args {
		s.L.Push(a)
	}

	err := s.doWithRecovery(func() error {
		return s.L.PCall(len(args), lua.MultRet, nil)
	})
	if err != nil {
		s.L.SetTop(top)
		return nil, scriptError(err)
	}

	n := s.L.GetTop() - top
	results := make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		results[i] = s.L.Get(top + i + 1)
	}
	s.L.SetTop(top)
	return results, nil
}

// CallGlobal calls the global function name.
func (s *State) CallGlobal(name string, args ...lua.LValue) ([]lua.LValue, error) {
	if s.closed {
		return nil, ErrStateClosed
	}
	fn := s.L.GetGlobal(name)
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%w: global %q is not a function", bridge.ErrArgument, name)
	}
	return s.Call(fn, args...)
}

// scriptError strips the Lua traceback from err and tags it as a handler
// failure.
func scriptError(err error) error {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return fmt.Errorf("%w: %s", bridge.ErrScriptHandler, apiErr.Object.String())
	}
	return fmt.Errorf("%w: %v", bridge.ErrScriptHandler, err)
}

// Close releases the state. Further calls return ErrStateClosed.
func (s *State) Close() {
	if s.closed {
		return
	}
	s.L.Close()
	s.closed = true
}

// Closed reports whether Close was called.
func (s *State) Closed() bool { return s.closed }
