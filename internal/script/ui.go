package script

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/lumen/internal/bridge"
	"github.com/dshills/lumen/internal/bridge/call"
	"github.com/dshills/lumen/internal/bridge/registry"
	"github.com/dshills/lumen/internal/platform"
)

// installUI creates the ui module: window properties through a metatable,
// plus goto_view, dialogs, find and command_entry.
func (h *Host) installUI() {
	L := h.L
	ui := L.NewTable()
	ui.RawSetString("goto_view", L.NewFunction(h.gotoView))

	dialogs := L.NewTable()
	for name, kind := range map[string]platform.DialogKind{
		"message":  platform.MessageDialog,
		"input":    platform.InputDialog,
		"open":     platform.OpenFileDialog,
		"save":     platform.SaveFileDialog,
		"progress": platform.ProgressDialog,
		"list":     platform.ListDialog,
	} {
		dialogs.RawSetString(name, L.NewFunction(h.dialog(kind)))
	}
	ui.RawSetString("dialogs", dialogs)

	find := L.NewTable()
	find.RawSetString("focus", L.NewFunction(h.findFocus))
	L.SetMetatable(find, L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"__index":    h.findIndex,
		"__newindex": h.findNewIndex,
	}))
	ui.RawSetString("find", find)

	entry := L.NewTable()
	entry.RawSetString("focus", L.NewFunction(h.entryFocus))
	entry.RawSetString("add_history", L.NewFunction(h.entryAddHistory))
	L.SetMetatable(entry, L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"__index":    h.entryIndex,
		"__newindex": h.entryNewIndex,
	}))
	ui.RawSetString("command_entry", entry)

	L.SetMetatable(ui, L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"__index":    h.uiIndex,
		"__newindex": h.uiNewIndex,
	}))
	L.SetGlobal("ui", ui)
}

func (h *Host) uiIndex(L *lua.LState) int {
	switch key := L.CheckString(2); key {
	case "clipboard_text":
		text, err := h.ui.Clipboard()
		if err != nil {
			return raise(L, err)
		}
		L.Push(lua.LString(text))
	case "statusbar_text":
		L.Push(lua.LString(h.ui.Status()))
	case "title":
		L.Push(lua.LString(h.ui.Title()))
	case "size":
		w, hgt := h.ui.Size()
		L.Push(toLua(L, []int{w, hgt}))
	case "maximized":
		L.Push(lua.LBool(h.ui.Maximized()))
	case "tabs":
		L.Push(lua.LBool(h.ui.TabsVisible()))
	case "dark":
		L.Push(lua.LBool(h.ui.Dark()))
	default:
		L.Push(lua.LNil)
	}
	return 1
}

func (h *Host) uiNewIndex(L *lua.LState) int {
	t := L.CheckTable(1)
	key := L.CheckString(2)
	v := L.Get(3)
	switch key {
	case "clipboard_text":
		if err := h.ui.SetClipboard(lua.LVAsString(v)); err != nil {
			return raise(L, err)
		}
	case "statusbar_text":
		h.ui.SetStatus(lua.LVAsString(L.ToStringMeta(v)))
	case "title":
		h.ui.SetTitle(lua.LVAsString(v))
	case "size":
		size, ok := v.(*lua.LTable)
		if !ok || size.Len() != 2 {
			return raise(L, fmt.Errorf("%w: ui.size must be {width, height}", bridge.ErrArgument))
		}
		h.ui.SetSize(int(lua.LVAsNumber(size.RawGetInt(1))), int(lua.LVAsNumber(size.RawGetInt(2))))
	case "maximized":
		h.ui.SetMaximized(lua.LVAsBool(v))
	case "tabs":
		h.ui.ShowTabs(lua.LVAsBool(v))
	case "dark":
		return raise(L, fmt.Errorf("%w: ui.dark is read-only", bridge.ErrArgument))
	default:
		t.RawSetString(key, v)
	}
	return 0
}

// ui.goto_view(view | n) focuses view, or the view n positions away when
// given a number.
func (h *Host) gotoView(L *lua.LState) int {
	var err error
	if _, ok := refOf(L.Get(1)); ok {
		err = h.rt.FocusChanged(h.checkView(L, 1).ID())
	} else {
		err = h.rt.GotoView(checkInteger(L, 1), true)
	}
	if err != nil {
		return raise(L, err)
	}
	h.syncCurrent()
	return 0
}

func (h *Host) findIndex(L *lua.LState) int {
	f := h.ui.FindBox()
	switch key := L.CheckString(2); {
	case key == "find_entry_text":
		L.Push(lua.LString(f.Find.Text))
	case key == "replace_entry_text":
		L.Push(lua.LString(f.Replace.Text))
	case key == "active":
		L.Push(lua.LBool(f.Visible))
	case platform.IsFindOption(key):
		on, _ := f.Option(key)
		L.Push(lua.LBool(on))
	case platform.IsFindLabel(key):
		text, _ := f.Label(key)
		L.Push(lua.LString(text))
	default:
		L.Push(lua.LNil)
	}
	return 1
}

func (h *Host) findNewIndex(L *lua.LState) int {
	f := h.ui.FindBox()
	key := L.CheckString(2)
	v := L.Get(3)
	switch {
	case key == "find_entry_text":
		f.Find.Text = lua.LVAsString(v)
	case key == "replace_entry_text":
		f.Replace.Text = lua.LVAsString(v)
	case key == "active":
		f.Visible = lua.LVAsBool(v)
	case platform.IsFindOption(key):
		_ = f.SetOption(key, lua.LVAsBool(v))
	case platform.IsFindLabel(key):
		_ = f.SetLabel(key, lua.LVAsString(v))
	default:
		return raise(L, fmt.Errorf("%w: unknown find box field %q", bridge.ErrArgument, key))
	}
	h.ui.Repaint()
	return 0
}

// ui.find.focus() shows the find box and focuses its find entry. The
// current find text is added to the history.
func (h *Host) findFocus(L *lua.LState) int {
	f := h.ui.FindBox()
	f.Visible = true
	f.Find.Focused = true
	f.Replace.Focused = false
	f.Find.AddHistory(f.Find.Text)
	h.ui.Repaint()
	return 0
}

func (h *Host) commandEntry() *registry.Proxy {
	return h.rt.Registry().CommandEntry()
}

func (h *Host) entryIndex(L *lua.LState) int {
	box := h.ui.CommandEntry()
	switch key := L.CheckString(2); key {
	case "text":
		entry := h.commandEntry()
		if entry == nil {
			L.Push(lua.LString(""))
			return 1
		}
		results, err := h.calls.Get(call.OpText, entry.ID(), valueArgs())
		if err != nil {
			return raise(L, err)
		}
		return pushResults(L, results)
	case "active":
		L.Push(lua.LBool(box.Visible))
	case "height":
		L.Push(lua.LNumber(box.Height))
	case "buffer":
		L.Push(h.proxyValue(h.commandEntry()))
	case "history":
		L.Push(toLua(L, box.History))
	default:
		L.Push(lua.LNil)
	}
	return 1
}

func (h *Host) entryNewIndex(L *lua.LState) int {
	box := h.ui.CommandEntry()
	key := L.CheckString(2)
	v := L.Get(3)
	switch key {
	case "text":
		entry := h.commandEntry()
		if entry == nil {
			return raise(L, fmt.Errorf("%w: no command entry", bridge.ErrInitialization))
		}
		if err := h.calls.Set(call.OpText, entry.ID(), valueArgs(v)); err != nil {
			return raise(L, err)
		}
	case "active":
		box.Visible = lua.LVAsBool(v)
		if !box.Visible {
			box.Focused = false
		}
	case "height":
		n, ok := v.(lua.LNumber)
		if !ok || n < 1 {
			return raise(L, fmt.Errorf("%w: command entry height must be a positive number", bridge.ErrArgument))
		}
		box.Height = int(n)
	default:
		return raise(L, fmt.Errorf("%w: unknown command entry field %q", bridge.ErrArgument, key))
	}
	h.ui.Repaint()
	return 0
}

// ui.command_entry.focus() shows and focuses the command entry.
func (h *Host) entryFocus(L *lua.LState) int {
	box := h.ui.CommandEntry()
	box.Visible = true
	box.Focused = true
	h.ui.Repaint()
	return 0
}

// ui.command_entry.add_history(text)
func (h *Host) entryAddHistory(L *lua.LState) int {
	text := L.CheckString(1)
	box := h.ui.CommandEntry()
	if n := len(box.History); text != "" && (n == 0 || box.History[n-1] != text) {
		box.History = append(box.History, text)
	}
	return 0
}

// dialog returns the ui.dialogs function for kind. Each takes an options
// table; its results depend on the kind and are nil when cancelled.
func (h *Host) dialog(kind platform.DialogKind) lua.LGFunction {
	return func(L *lua.LState) int {
		t := L.OptTable(1, L.NewTable())
		opts := platform.DialogOptions{
			Kind:         kind,
			Title:        tableString(t, "title", ""),
			Text:         tableString(t, "text", ""),
			Icon:         tableString(t, "icon", ""),
			Value:        tableString(t, "value", ""),
			Dir:          tableString(t, "dir", ""),
			File:         tableString(t, "file", ""),
			Multiple:     tableBool(t, "multiple"),
			OnlyDirs:     tableBool(t, "only_dirs"),
			Columns:      stringList(t.RawGetString("columns")),
			Items:        stringList(t.RawGetString("items")),
			SearchColumn: tableInt(t, "search_column", 1),
		}
		for _, k := range []string{"button1", "button2", "button3"} {
			if b := tableString(t, k, ""); b != "" {
				opts.Buttons = append(opts.Buttons, b)
			}
		}

		var workErr error
		finished := false
		if kind == platform.ProgressDialog {
			work, ok := t.RawGetString("work").(*lua.LFunction)
			if !ok {
				L.ArgError(1, "progress dialog needs a work function")
				return 0
			}
			opts.Work = func() (int, string, bool) {
				ret, err := h.state.Call(work)
				if err != nil {
					workErr = err
					return 100, "", true
				}
				if len(ret) == 0 || ret[0] == lua.LNil {
					finished = true
					return 100, "", true
				}
				text := ""
				if len(ret) > 1 {
					text = lua.LVAsString(ret[1])
				}
				return int(lua.LVAsNumber(ret[0])), text, false
			}
		}

		res, err := h.ui.Dialog(opts)
		if err != nil {
			return raise(L, err)
		}
		if workErr != nil {
			return raise(L, workErr)
		}
		return h.pushDialogResult(L, opts, res, finished)
	}
}

func (h *Host) pushDialogResult(L *lua.LState, opts platform.DialogOptions, res platform.DialogResult, finished bool) int {
	switch opts.Kind {
	case platform.ProgressDialog:
		// true when stopped before the work finished.
		L.Push(lua.LBool(!finished))
		return 1
	case platform.MessageDialog:
		if res.Button == 0 {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LNumber(res.Button))
		return 1
	case platform.InputDialog:
		if res.Button == 0 {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(res.Text))
		L.Push(lua.LNumber(res.Button))
		return 2
	case platform.OpenFileDialog, platform.SaveFileDialog:
		if len(res.Files) == 0 {
			L.Push(lua.LNil)
			return 1
		}
		if opts.Multiple {
			L.Push(toLua(L, res.Files))
		} else {
			L.Push(lua.LString(res.Files[0]))
		}
		return 1
	case platform.ListDialog:
		if len(res.Rows) == 0 {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LNumber(res.Rows[0]))
		L.Push(lua.LNumber(max(res.Button, 1)))
		return 2
	}
	L.Push(lua.LNil)
	return 1
}
