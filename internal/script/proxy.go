package script

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/lumen/internal/bridge"
	"github.com/dshills/lumen/internal/bridge/call"
	"github.com/dshills/lumen/internal/bridge/registry"
	"github.com/dshills/lumen/internal/engine"
)

// Metatable names.
const (
	bufferType  = "lumen.buffer"
	viewType    = "lumen.view"
	indexedType = "lumen.indexed"
)

// proxyRef is the Go value behind a buffer or view userdata.
type proxyRef struct {
	handle registry.Handle
	kind   registry.Kind
	id     engine.Identity

	// fields holds values scripts assign to names the proxy does not
	// define, so proxies behave like tables.
	fields *lua.LTable
}

// indexedRef is the Go value behind an indexed property accessor such as
// buffer.style_fore.
type indexedRef struct {
	ref *proxyRef
	op  call.Op
}

// userdata returns the one userdata representing p, creating it on first
// use.
func (h *Host) userdata(p *registry.Proxy) *lua.LUserData {
	if ud, ok := p.Data.(*lua.LUserData); ok {
		return ud
	}
	ud := h.L.NewUserData()
	ud.Value = &proxyRef{handle: p.Handle(), kind: p.Kind(), id: p.ID()}
	typ := bufferType
	if p.Kind() == registry.View {
		typ = viewType
	}
	h.L.SetMetatable(ud, h.L.GetTypeMetatable(typ))
	p.Data = ud
	return ud
}

// proxyValue returns the userdata for p, or nil.
func (h *Host) proxyValue(p *registry.Proxy) lua.LValue {
	if p == nil {
		return lua.LNil
	}
	return h.userdata(p)
}

func refOf(v lua.LValue) (*proxyRef, bool) {
	ud, ok := v.(*lua.LUserData)
	if !ok {
		return nil, false
	}
	ref, ok := ud.Value.(*proxyRef)
	return ref, ok
}

// resolve returns the live proxy behind ref. Deleted objects fail with
// bridge.ErrStale.
func (h *Host) resolve(ref *proxyRef) (*registry.Proxy, error) {
	return h.rt.Registry().Resolve(ref.handle)
}

// checkProxy returns the live proxy at stack index n.
func (h *Host) checkProxy(L *lua.LState, n int) *registry.Proxy {
	ref, ok := refOf(L.Get(n))
	if !ok {
		L.ArgError(n, "buffer or view expected, got "+L.Get(n).Type().String())
		return nil
	}
	p, err := h.resolve(ref)
	if err != nil {
		raise(L, err)
		return nil
	}
	return p
}

func (h *Host) checkBuffer(L *lua.LState, n int) *registry.Proxy {
	p := h.checkProxy(L, n)
	if !p.IsDocument() {
		L.ArgError(n, "buffer expected, got view")
	}
	return p
}

func (h *Host) checkView(L *lua.LState, n int) *registry.Proxy {
	p := h.checkProxy(L, n)
	if p.Kind() != registry.View {
		L.ArgError(n, "view expected, got buffer")
	}
	return p
}

// installProxies creates the buffer, view and indexed-property metatables
// and the method closures shared by every proxy.
func (h *Host) installProxies() {
	L := h.L
	for _, typ := range []string{bufferType, viewType} {
		mt := L.NewTypeMetatable(typ)
		L.SetField(mt, "__index", L.NewFunction(h.proxyIndex))
		L.SetField(mt, "__newindex", L.NewFunction(h.proxyNewIndex))
		L.SetField(mt, "__tostring", L.NewFunction(h.proxyString))
	}
	mt := L.NewTypeMetatable(indexedType)
	L.SetField(mt, "__index", L.NewFunction(h.indexedGet))
	L.SetField(mt, "__newindex", L.NewFunction(h.indexedSet))

	h.methods = make(map[string]*lua.LFunction)
	for _, name := range call.Names(call.Function) {
		op, _ := call.Lookup(name)
		h.methods[name] = L.NewFunction(h.method(op))
	}
	h.bufferFns = map[string]*lua.LFunction{
		"new":        L.NewFunction(h.bufferNew),
		"delete":     L.NewFunction(h.bufferDelete),
		"text_range": L.NewFunction(h.bufferTextRange),
	}
	h.viewFns = map[string]*lua.LFunction{
		"split":       L.NewFunction(h.viewSplit),
		"unsplit":     L.NewFunction(h.viewUnsplit),
		"goto_buffer": L.NewFunction(h.viewGotoBuffer),
	}
}

// method returns the Lua function for a dispatcher function entry. The
// receiver is the first argument: buffer:undo().
func (h *Host) method(op call.Op) lua.LGFunction {
	return func(L *lua.LState) int {
		p := h.checkProxy(L, 1)
		results, err := h.calls.Call(op, p.ID(), stackArgs(L, 2))
		if err != nil {
			return raise(L, err)
		}
		return pushResults(L, results)
	}
}

func (h *Host) proxyIndex(L *lua.LState) int {
	ref, ok := refOf(L.Get(1))
	if !ok {
		L.ArgError(1, "proxy expected")
		return 0
	}
	key := L.CheckString(2)

	fns := h.bufferFns
	if ref.kind == registry.View {
		fns = h.viewFns
	}
	if fn, ok := fns[key]; ok {
		L.Push(fn)
		return 1
	}

	if op, ok := call.Lookup(key); ok {
		e := call.Table[op]
		if e.Kind == call.Function {
			L.Push(h.methods[key])
			return 1
		}
		p, err := h.resolve(ref)
		if err != nil {
			return raise(L, err)
		}
		if e.Indexed {
			acc := L.NewUserData()
			acc.Value = &indexedRef{ref: ref, op: op}
			L.SetMetatable(acc, L.GetTypeMetatable(indexedType))
			L.Push(acc)
			return 1
		}
		results, err := h.calls.Get(op, p.ID(), valueArgs())
		if err != nil {
			return raise(L, err)
		}
		return pushResults(L, results)
	}

	if v, handled, err := h.special(ref, key); handled {
		if err != nil {
			return raise(L, err)
		}
		L.Push(v)
		return 1
	}

	if ref.fields != nil {
		L.Push(ref.fields.RawGetString(key))
		return 1
	}
	L.Push(lua.LNil)
	return 1
}

func (h *Host) proxyNewIndex(L *lua.LState) int {
	ref, ok := refOf(L.Get(1))
	if !ok {
		L.ArgError(1, "proxy expected")
		return 0
	}
	key := L.CheckString(2)
	value := L.Get(3)

	if op, ok := call.Lookup(key); ok {
		e := call.Table[op]
		switch {
		case e.Kind == call.Function:
			return raise(L, fmt.Errorf("%w: cannot assign to method %q", bridge.ErrArgument, key))
		case e.Indexed:
			return raise(L, fmt.Errorf("%w: %q is indexed; assign to %s[i]", bridge.ErrArgument, key, key))
		}
		p, err := h.resolve(ref)
		if err != nil {
			return raise(L, err)
		}
		if err := h.calls.Set(op, p.ID(), valueArgs(value)); err != nil {
			return raise(L, err)
		}
		return 0
	}

	if handled, err := h.setSpecial(ref, key, value); handled {
		if err != nil {
			return raise(L, err)
		}
		return 0
	}

	if ref.fields == nil {
		ref.fields = L.NewTable()
	}
	ref.fields.RawSetString(key, value)
	return 0
}

func (h *Host) proxyString(L *lua.LState) int {
	ref, ok := refOf(L.Get(1))
	if !ok {
		L.Push(lua.LString("proxy"))
		return 1
	}
	p, err := h.resolve(ref)
	switch {
	case err != nil:
		L.Push(lua.LString(fmt.Sprintf("%s (deleted)", ref.kind)))
	case p.Kind() == registry.CommandEntry:
		L.Push(lua.LString("command_entry"))
	default:
		L.Push(lua.LString(fmt.Sprintf("%s: %d", p.Kind(), p.Position())))
	}
	return 1
}

// special reads the members that are not engine messages.
func (h *Host) special(ref *proxyRef, key string) (lua.LValue, bool, error) {
	switch {
	case ref.kind != registry.View && key == "tab_label":
		p, err := h.resolve(ref)
		if err != nil {
			return nil, true, err
		}
		return lua.LString(h.rt.Label(p.ID())), true, nil
	case ref.kind == registry.View && key == "buffer":
		p, err := h.resolve(ref)
		if err != nil {
			return nil, true, err
		}
		return h.proxyValue(h.rt.DocumentOf(p.ID())), true, nil
	case ref.kind == registry.View && key == "size":
		p, err := h.resolve(ref)
		if err != nil {
			return nil, true, err
		}
		info, err := h.ui.PaneInfo(p.ID())
		if err != nil || !info.Split {
			return lua.LNil, true, nil
		}
		return lua.LNumber(info.Size), true, nil
	}
	return nil, false, nil
}

// setSpecial assigns the members that are not engine messages.
func (h *Host) setSpecial(ref *proxyRef, key string, value lua.LValue) (bool, error) {
	switch {
	case ref.kind != registry.View && key == "tab_label":
		p, err := h.resolve(ref)
		if err != nil {
			return true, err
		}
		return true, h.rt.SetLabel(p.ID(), lua.LVAsString(value))
	case ref.kind == registry.View && key == "size":
		p, err := h.resolve(ref)
		if err != nil {
			return true, err
		}
		n, ok := value.(lua.LNumber)
		if !ok {
			return true, fmt.Errorf("%w: view.size must be a number", bridge.ErrArgument)
		}
		return true, h.ui.SetPaneSize(p.ID(), int(n))
	case ref.kind == registry.View && key == "buffer":
		return true, fmt.Errorf("%w: view.buffer is read-only; use view:goto_buffer", bridge.ErrArgument)
	}
	return false, nil
}

func checkIndexed(L *lua.LState) *indexedRef {
	ud := L.CheckUserData(1)
	acc, ok := ud.Value.(*indexedRef)
	if !ok {
		L.ArgError(1, "indexed property expected")
	}
	return acc
}

func (h *Host) indexedGet(L *lua.LState) int {
	acc := checkIndexed(L)
	p, err := h.resolve(acc.ref)
	if err != nil {
		return raise(L, err)
	}
	results, err := h.calls.Get(acc.op, p.ID(), valueArgs(L.Get(2)))
	if err != nil {
		return raise(L, err)
	}
	return pushResults(L, results)
}

func (h *Host) indexedSet(L *lua.LState) int {
	acc := checkIndexed(L)
	p, err := h.resolve(acc.ref)
	if err != nil {
		return raise(L, err)
	}
	if err := h.calls.Set(acc.op, p.ID(), valueArgs(L.Get(2), L.Get(3))); err != nil {
		return raise(L, err)
	}
	return 0
}

// buffer.new() creates a document and returns it.
func (h *Host) bufferNew(L *lua.LState) int {
	p, err := h.rt.NewDocument()
	if err != nil {
		return raise(L, err)
	}
	h.syncCurrent()
	L.Push(h.userdata(p))
	return 1
}

// buffer:delete() closes the document.
func (h *Host) bufferDelete(L *lua.LState) int {
	p := h.checkBuffer(L, 1)
	if err := h.rt.DeleteDocument(p.ID()); err != nil {
		return raise(L, err)
	}
	h.syncCurrent()
	return 0
}

// buffer:text_range(start, end) returns the text from start up to but not
// including end. The target range is restored afterwards.
func (h *Host) bufferTextRange(L *lua.LState) int {
	p := h.checkBuffer(L, 1)
	id := p.ID()

	start, err1 := h.calls.Get(call.OpTargetStart, id, valueArgs())
	end, err2 := h.calls.Get(call.OpTargetEnd, id, valueArgs())
	if err1 != nil || err2 != nil {
		return raise(L, fmt.Errorf("%w: cannot read target range", bridge.ErrArgument))
	}
	if _, err := h.calls.Call(call.OpSetTargetRange, id, valueArgs(L.Get(2), L.Get(3))); err != nil {
		return raise(L, err)
	}
	text, err := h.calls.Get(call.OpTargetText, id, valueArgs())
	_, _ = h.calls.Call(call.OpSetTargetRange, id,
		valueArgs(lua.LNumber(start[0].Int), lua.LNumber(end[0].Int)))
	if err != nil {
		return raise(L, err)
	}
	return pushResults(L, text)
}

// view:split([vertical]) returns the old and the new view.
func (h *Host) viewSplit(L *lua.LState) int {
	p := h.checkView(L, 1)
	nv, err := h.rt.SplitView(p.ID(), L.OptBool(2, false))
	if err != nil {
		return raise(L, err)
	}
	h.syncCurrent()
	L.Push(h.userdata(p))
	L.Push(h.userdata(nv))
	return 2
}

// view:unsplit() reports whether the view was split.
func (h *Host) viewUnsplit(L *lua.LState) int {
	p := h.checkView(L, 1)
	ok, err := h.rt.UnsplitView(p.ID())
	if err != nil {
		return raise(L, err)
	}
	h.syncCurrent()
	L.Push(lua.LBool(ok))
	return 1
}

// view:goto_buffer(buffer | n) shows buffer, or the buffer n positions
// away when given a number.
func (h *Host) viewGotoBuffer(L *lua.LState) int {
	v := h.checkView(L, 1)
	var err error
	if ref, ok := refOf(L.Get(2)); ok {
		b, rerr := h.resolve(ref)
		if rerr != nil {
			return raise(L, rerr)
		}
		if b.Kind() != registry.Document {
			L.ArgError(2, "buffer expected")
		}
		err = h.rt.SwitchDocument(v.ID(), b.Position(), false)
	} else {
		err = h.rt.SwitchDocument(v.ID(), checkInteger(L, 2), true)
	}
	if err != nil {
		return raise(L, err)
	}
	h.syncCurrent()
	return 0
}
