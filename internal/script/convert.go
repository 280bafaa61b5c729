package script

import (
	"fmt"
	"math"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/lumen/internal/bridge"
	"github.com/dshills/lumen/internal/bridge/call"
)

// luaArgs is a call.Args cursor over Lua values.
type luaArgs struct {
	vals []lua.LValue
	pos  int
	// base is the stack index of vals[0], used in messages.
	base int
}

// stackArgs returns a cursor over L's arguments from index from onward.
func stackArgs(L *lua.LState, from int) *luaArgs {
	a := &luaArgs{base: from}
	for i := from; i <= L.GetTop(); i++ {
		a.vals = append(a.vals, L.Get(i))
	}
	return a
}

// valueArgs returns a cursor over vals.
func valueArgs(vals ...lua.LValue) *luaArgs {
	return &luaArgs{vals: vals, base: 1}
}

func (a *luaArgs) next() (lua.LValue, int) {
	n := a.base + a.pos
	if a.pos >= len(a.vals) {
		a.pos++
		return lua.LNil, n
	}
	a.pos++
	return a.vals[a.pos-1], n
}

// Integer implements call.Args.
func (a *luaArgs) Integer() (int64, error) {
	v, n := a.next()
	num, ok := v.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("%w: bad argument #%d (number expected, got %s)", bridge.ErrArgument, n, v.Type())
	}
	f := float64(num)
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: bad argument #%d (number has no integer representation)", bridge.ErrArgument, n)
	}
	return int64(f), nil
}

// Boolean implements call.Args with Lua truthiness.
func (a *luaArgs) Boolean() (bool, error) {
	v, _ := a.next()
	return lua.LVAsBool(v), nil
}

// String implements call.Args. Numbers convert the way Lua coerces them.
func (a *luaArgs) String() (string, error) {
	v, n := a.next()
	switch s := v.(type) {
	case lua.LString:
		return string(s), nil
	case lua.LNumber:
		return s.String(), nil
	}
	return "", fmt.Errorf("%w: bad argument #%d (string expected, got %s)", bridge.ErrArgument, n, v.Type())
}

// Remaining implements call.Args.
func (a *luaArgs) Remaining() int {
	n := 0
	for _, v := range a.vals[min(a.pos, len(a.vals)):] {
		if v != lua.LNil {
			n++
		}
	}
	return n
}

var _ call.Args = (*luaArgs)(nil)

// checkInteger returns argument n as an integer, raising an error for
// anything else, fractional numbers included.
func checkInteger(L *lua.LState, n int) int {
	i, err := (&luaArgs{vals: []lua.LValue{L.Get(n)}, base: n}).Integer()
	if err != nil {
		raise(L, err)
	}
	return int(i)
}

// pushResults pushes typed call results and returns their count.
func pushResults(L *lua.LState, results []call.Result) int {
	for _, r := range results {
		switch r.Kind {
		case call.ResultString:
			L.Push(lua.LString(r.Str))
		case call.ResultBool:
			L.Push(lua.LBool(r.Bool))
		default:
			L.Push(lua.LNumber(r.Int))
		}
	}
	return len(results)
}

// toLua converts a Go value to a Lua value.
func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return val
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []byte:
		return lua.LString(val)
	case []string:
		t := L.NewTable()
		for i, s := range val {
			t.RawSetInt(i+1, lua.LString(s))
		}
		return t
	case []int:
		t := L.NewTable()
		for i, n := range val {
			t.RawSetInt(i+1, lua.LNumber(n))
		}
		return t
	case []any:
		t := L.NewTable()
		for i, x := range val {
			t.RawSetInt(i+1, toLua(L, x))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, x := range val {
			t.RawSetString(k, toLua(L, x))
		}
		return t
	case map[string]string:
		t := L.NewTable()
		for k, s := range val {
			t.RawSetString(k, lua.LString(s))
		}
		return t
	}
	ud := L.NewUserData()
	ud.Value = v
	return ud
}

// stringList reads a Lua value that is either a single string or an
// array of strings.
func stringList(v lua.LValue) []string {
	switch x := v.(type) {
	case lua.LString:
		return []string{string(x)}
	case *lua.LTable:
		out := make([]string, 0, x.Len())
		for i := 1; i <= x.Len(); i++ {
			out = append(out, lua.LVAsString(x.RawGetInt(i)))
		}
		return out
	}
	return nil
}

// environ reads an environment table. Array entries are taken as
// "KEY=value" strings; string keys map to their values.
func environ(t *lua.LTable) []string {
	var env []string
	for i := 1; i <= t.Len(); i++ {
		env = append(env, lua.LVAsString(t.RawGetInt(i)))
	}
	var named []string
	t.ForEach(func(k, v lua.LValue) {
		if ks, ok := k.(lua.LString); ok {
			named = append(named, string(ks)+"="+lua.LVAsString(v))
		}
	})
	sort.Strings(named)
	return append(env, named...)
}

// tableString returns t[key] as a string, or def.
func tableString(t *lua.LTable, key, def string) string {
	if s, ok := t.RawGetString(key).(lua.LString); ok {
		return string(s)
	}
	return def
}

// tableInt returns t[key] as an int, or def.
func tableInt(t *lua.LTable, key string, def int) int {
	if n, ok := t.RawGetString(key).(lua.LNumber); ok {
		return int(n)
	}
	return def
}

// tableBool returns the truthiness of t[key].
func tableBool(t *lua.LTable, key string) bool {
	return lua.LVAsBool(t.RawGetString(key))
}

// raise converts err into a Lua error. It does not return.
func raise(L *lua.LState, err error) int {
	L.RaiseError("%s", err.Error())
	return 0
}
