package script

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/lumen/internal/bridge"
	"github.com/dshills/lumen/internal/bridge/call"
	"github.com/dshills/lumen/internal/bridge/registry"
	"github.com/dshills/lumen/internal/event"
	"github.com/dshills/lumen/internal/platform"
	"github.com/dshills/lumen/internal/runtime"
	"github.com/dshills/lumen/internal/sched"
)

//go:embed events.lua
var eventsPrelude string

// eventNames are installed as events.NAME constants.
var eventNames = map[string]string{
	"BUFFER_NEW":           event.BufferNew,
	"BUFFER_DELETED":       event.BufferDeleted,
	"BUFFER_BEFORE_SWITCH": event.BufferBeforeSwitch,
	"BUFFER_AFTER_SWITCH":  event.BufferAfterSwitch,
	"VIEW_NEW":             event.ViewNew,
	"VIEW_BEFORE_SWITCH":   event.ViewBeforeSwitch,
	"VIEW_AFTER_SWITCH":    event.ViewAfterSwitch,
	"ERROR":                event.Error,
	"INITIALIZED":          event.Initialized,
	"QUIT":                 event.Quit,
	"KEYPRESS":             event.Keypress,
	"INIT_CHANGED":         event.InitChanged,
	"RESIZE":               event.Resize,
}

// UI is the part of the platform adapter scripts reach through the ui
// module and view proxies.
type UI interface {
	platform.Window
	platform.Panes
	platform.Tabs
	platform.Widgets
	platform.Dialogs
	platform.Clipboard
}

// Logger is the logging interface the host uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}

// Options configure a Host.
type Options struct {
	State     *State
	Runtime   *runtime.Runtime
	Calls     *call.Dispatcher
	UI        UI
	Scheduler *sched.Scheduler

	// Quit is called by the quit() global.
	Quit func()
	// Stdout receives print output. Defaults to os.Stdout.
	Stdout io.Writer
	Logger Logger
}

// Host exposes the editor to Lua.
type Host struct {
	state  *State
	L      *lua.LState
	rt     *runtime.Runtime
	calls  *call.Dispatcher
	ui     UI
	sched  *sched.Scheduler
	quit   func()
	out    io.Writer
	logger Logger

	methods   map[string]*lua.LFunction
	bufferFns map[string]*lua.LFunction
	viewFns   map[string]*lua.LFunction

	buffers *lua.LTable
	views   *lua.LTable
}

var _ event.Dispatcher = (*Host)(nil)

// New creates a host. Install must be called once the runtime has booted.
func New(opts Options) *Host {
	h := &Host{
		state:  opts.State,
		rt:     opts.Runtime,
		calls:  opts.Calls,
		ui:     opts.UI,
		sched:  opts.Scheduler,
		quit:   opts.Quit,
		out:    opts.Stdout,
		logger: opts.Logger,
	}
	if h.state == nil {
		h.state = NewState()
	}
	if h.calls == nil {
		h.calls = call.NewDispatcher(h.rt.Engine())
	}
	if h.out == nil {
		h.out = os.Stdout
	}
	if h.logger == nil {
		h.logger = nopLogger{}
	}
	h.L = h.state.L
	return h
}

// State returns the Lua state.
func (h *Host) State() *State { return h.state }

// Install defines the globals scripts see: buffer, view, _BUFFERS,
// _VIEWS, events, ui, os.spawn, timeout, move_buffer, quit and print.
func (h *Host) Install() error {
	if h.state.Closed() {
		return ErrStateClosed
	}
	L := h.L
	h.installProxies()

	ev := L.NewTable()
	for k, v := range eventNames {
		ev.RawSetString(k, lua.LString(v))
	}
	L.SetGlobal("events", ev)

	h.installUI()
	h.installProcesses()

	h.buffers = L.NewTable()
	h.views = L.NewTable()
	L.SetGlobal("_BUFFERS", h.buffers)
	L.SetGlobal("_VIEWS", h.views)
	L.SetGlobal("move_buffer", L.NewFunction(h.moveBuffer))
	L.SetGlobal("quit", L.NewFunction(h.quitFn))
	L.SetGlobal("print", L.NewFunction(h.print))

	if err := h.state.DoString(eventsPrelude); err != nil {
		return fmt.Errorf("%w: events prelude: %v", bridge.ErrInitialization, err)
	}

	reg := h.rt.Registry()
	reg.OnChange(h.rebuild)
	h.rebuild(registry.Document)
	h.rebuild(registry.View)
	h.syncCurrent()
	h.logger.Debug("lua host installed")
	return nil
}

// LoadFile runs a script file.
func (h *Host) LoadFile(path string) error {
	if err := h.state.DoFile(path); err != nil {
		return fmt.Errorf("load %s: %w", path, scriptError(err))
	}
	h.syncCurrent()
	return nil
}

// Dispatch implements event.Dispatcher by calling events.emit.
func (h *Host) Dispatch(name string, args []event.Arg) (bool, bool, error) {
	if h.state.Closed() {
		return false, false, nil
	}
	events, ok := h.L.GetGlobal("events").(*lua.LTable)
	if !ok {
		return false, false, nil
	}
	emit := events.RawGetString("emit")
	if emit.Type() != lua.LTFunction {
		return false, false, nil
	}

	h.syncCurrent()
	largs := make([]lua.LValue, 0, len(args)+1)
	largs = append(largs, lua.LString(name))
	for _, a := range args {
		largs = append(largs, h.eventValue(a))
	}
	ret, err := h.state.Call(emit, largs...)
	if err != nil {
		return false, true, err
	}
	return len(ret) > 0 && lua.LVAsBool(ret[0]), true, nil
}

// eventValue converts an event argument. Proxies become their userdata.
func (h *Host) eventValue(a event.Arg) lua.LValue {
	switch a.Kind {
	case event.Int:
		return lua.LNumber(a.Int)
	case event.Bool:
		return lua.LBool(a.Bool)
	case event.String:
		return lua.LString(a.Str)
	case event.Table:
		if a.Ref == nil {
			return lua.LNil
		}
		if p, ok := a.Ref.Value().(*registry.Proxy); ok {
			return h.userdata(p)
		}
		return toLua(h.L, a.Ref.Value())
	}
	return lua.LNil
}

// syncCurrent points the buffer and view globals at the current document
// and view.
func (h *Host) syncCurrent() {
	h.L.SetGlobal("buffer", h.proxyValue(h.rt.CurrentDocument()))
	h.L.SetGlobal("view", h.proxyValue(h.rt.CurrentView()))
}

// rebuild refills _BUFFERS or _VIEWS: proxies by position, and each proxy
// mapped back to its position.
func (h *Host) rebuild(kind registry.Kind) {
	var t *lua.LTable
	var seq []*registry.Proxy
	switch kind {
	case registry.Document:
		t, seq = h.buffers, h.rt.Registry().Documents()
	case registry.View:
		t, seq = h.views, h.rt.Registry().Views()
	default:
		return
	}
	if t == nil {
		return
	}

	var keys []lua.LValue
	t.ForEach(func(k, _ lua.LValue) { keys = append(keys, k) })
	for _, k := range keys {
		t.RawSet(k, lua.LNil)
	}
	for i, p := range seq {
		ud := h.userdata(p)
		t.RawSetInt(i+1, ud)
		t.RawSet(ud, lua.LNumber(i+1))
	}
}

// move_buffer(from, to)
func (h *Host) moveBuffer(L *lua.LState) int {
	if err := h.rt.MoveDocument(checkInteger(L, 1), checkInteger(L, 2)); err != nil {
		return raise(L, err)
	}
	return 0
}

// quit()
func (h *Host) quitFn(L *lua.LState) int {
	if h.quit != nil {
		h.quit()
	}
	return 0
}

// print(...) writes its arguments, tab separated, to the host's output.
func (h *Host) print(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = lua.LVAsString(L.ToStringMeta(L.Get(i + 1)))
	}
	_, _ = fmt.Fprintln(h.out, strings.Join(parts, "\t"))
	return 0
}

// Close releases the Lua state.
func (h *Host) Close() {
	h.rt.Registry().OnChange(nil)
	h.state.Close()
}
