package script

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/lumen/internal/bridge"
	"github.com/dshills/lumen/internal/engine/memory"
	"github.com/dshills/lumen/internal/event"
	"github.com/dshills/lumen/internal/platform/headless"
	"github.com/dshills/lumen/internal/runtime"
	"github.com/dshills/lumen/internal/sched"
)

type hostFixture struct {
	h     *Host
	rt    *runtime.Runtime
	ui    *headless.Adapter
	ev    *event.Emitter
	sched *sched.Scheduler
	out   bytes.Buffer
	diag  bytes.Buffer
	quits int
	// clock is the scheduler's time; tests advance it by hand.
	clock time.Time
}

func newHostFixture(t *testing.T, spawner sched.Spawner) *hostFixture {
	t.Helper()
	f := &hostFixture{ui: headless.New(headless.Options{Spawner: spawner})}
	f.ev = event.NewEmitter(event.Options{
		HasView:     func() bool { return f.rt.HasView() },
		Diagnostics: &f.diag,
	})
	f.rt = runtime.New(runtime.Options{Engine: memory.New(), UI: f.ui, Emitter: f.ev})
	if err := f.rt.Boot(); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	f.clock = time.Unix(1000, 0)
	f.sched = sched.New(f.ui, sched.Options{
		Report: f.ev.Report,
		Now:    func() time.Time { return f.clock },
	})
	f.h = New(Options{
		Runtime:   f.rt,
		UI:        f.ui,
		Scheduler: f.sched,
		Quit:      func() { f.quits++ },
		Stdout:    &f.out,
	})
	if err := f.h.Install(); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	f.ev.SetDispatcher(f.h)
	f.rt.Ready()
	t.Cleanup(func() {
		f.sched.Shutdown()
		f.h.Close()
	})
	return f
}

// run executes code and fails the test on error.
func (f *hostFixture) run(t *testing.T, code string) {
	t.Helper()
	if err := f.h.State().DoString(code); err != nil {
		t.Fatalf("DoString(%q) error = %v", code, err)
	}
}

// eval returns tostring(expr).
func (f *hostFixture) eval(t *testing.T, expr string) string {
	t.Helper()
	f.run(t, "__result = tostring("+expr+")")
	return lua.LVAsString(f.h.State().L.GetGlobal("__result"))
}

type evalCase struct {
	expr string
	want string
}

func (f *hostFixture) check(t *testing.T, cases []evalCase) {
	t.Helper()
	for _, tc := range cases {
		if got := f.eval(t, tc.expr); got != tc.want {
			t.Errorf("%s = %q, want %q", tc.expr, got, tc.want)
		}
	}
}

func TestHost_Globals(t *testing.T) {
	f := newHostFixture(t, nil)
	f.check(t, []evalCase{
		{"buffer", "document: 1"},
		{"view", "view: 1"},
		{"#_BUFFERS", "1"},
		{"#_VIEWS", "1"},
		{"_BUFFERS[1] == buffer", "true"},
		{"_BUFFERS[buffer]", "1"},
		{"_VIEWS[view]", "1"},
		{"view.buffer == buffer", "true"},
		{"ui.command_entry.buffer", "command_entry"},
		{"events.BUFFER_NEW", event.BufferNew},
		{"type(os.spawn)", "function"},
		{"type(timeout)", "function"},
	})
}

func TestHost_Properties(t *testing.T) {
	f := newHostFixture(t, nil)
	f.run(t, `
		buffer:set_text("hello world")
		buffer.current_pos = 3
		buffer.style_fore[3] = 0x7F00FF00
		buffer.style_back[4] = 0x0000FF
	`)
	f.check(t, []evalCase{
		{"buffer.length", "11"},
		{"buffer.text", "hello world"},
		{"buffer.current_pos", "3"},
		{"buffer:get_line(1)", "hello world"},
		{"buffer:can_undo()", "true"},
		{"buffer.style_fore[3]", "2130771712"},
		{"buffer.style_back[4] == 0xFF0000FF", "true"},
		{"buffer:text_range(1, 6)", "hello"},
		{"buffer:text_range(7, 100)", "world"},
	})

	f.run(t, `buffer.text = "abc"`)
	f.check(t, []evalCase{{"buffer.text", "abc"}, {"buffer.length", "3"}})
}

func TestHost_TextRangeKeepsTarget(t *testing.T) {
	f := newHostFixture(t, nil)
	f.run(t, `
		buffer:set_text("one two three")
		buffer:set_target_range(5, 8)
		part = buffer:text_range(9, 14)
	`)
	f.check(t, []evalCase{
		{"part", "three"},
		{"buffer.target_text", "two"},
		{"buffer.target_start", "5"},
	})
}

func TestHost_PropertyErrors(t *testing.T) {
	f := newHostFixture(t, nil)
	tests := []struct {
		name string
		code string
	}{
		{"read-only property", `buffer.length = 3`},
		{"assign to method", `buffer.undo = 1`},
		{"assign to indexed", `buffer.style_fore = 1`},
		{"bad argument type", `buffer:goto_pos("x")`},
		{"fractional position", `buffer:goto_pos(1.5)`},
		{"fractional offset", `view:goto_buffer(1.5)`},
		{"fractional move", `move_buffer(1, 1.5)`},
		{"extra argument", `buffer:undo(1)`},
		{"wrong receiver", `buffer.undo(42)`},
		{"view buffer is read-only", `view.buffer = buffer`},
		{"text_range on a view", `buffer.text_range(view, 1, 2)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.run(t, "ok = pcall(function() "+tt.code+" end)")
			if f.h.State().L.GetGlobal("ok") != lua.LFalse {
				t.Errorf("%s succeeded", tt.code)
			}
		})
	}
}

func TestLuaArgs_Integer(t *testing.T) {
	tests := []struct {
		in      lua.LValue
		want    int64
		wantErr string
	}{
		{lua.LNumber(3), 3, ""},
		{lua.LNumber(-2), -2, ""},
		{lua.LNumber(1.5), 0, "no integer representation"},
		{lua.LNumber(math.Inf(1)), 0, "no integer representation"},
		{lua.LString("3"), 0, "number expected"},
		{lua.LNil, 0, "number expected"},
	}
	for _, tt := range tests {
		got, err := valueArgs(tt.in).Integer()
		if tt.wantErr == "" {
			if err != nil || got != tt.want {
				t.Errorf("Integer(%v) = %d, %v, want %d", tt.in, got, err, tt.want)
			}
			continue
		}
		if !errors.Is(err, bridge.ErrArgument) || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("Integer(%v) error = %v, want %q", tt.in, err, tt.wantErr)
		}
	}
}

func TestHost_Fields(t *testing.T) {
	f := newHostFixture(t, nil)
	f.run(t, `buffer.filename = "/tmp/notes.txt"`)
	f.check(t, []evalCase{
		{"buffer.filename", "/tmp/notes.txt"},
		{"_BUFFERS[1].filename", "/tmp/notes.txt"},
		{"view.filename", "nil"},
	})
}

func TestHost_NewAndDelete(t *testing.T) {
	f := newHostFixture(t, nil)
	f.run(t, `
		first = buffer
		b = buffer.new()
	`)
	f.check(t, []evalCase{
		{"#_BUFFERS", "2"},
		{"buffer == b", "true"},
		{"_BUFFERS[b]", "2"},
		{"view.buffer == b", "true"},
	})

	f.run(t, `
		b:delete()
		ok, err = pcall(function() return b.length end)
	`)
	f.check(t, []evalCase{
		{"#_BUFFERS", "1"},
		{"_BUFFERS[b]", "nil"},
		{"buffer == first", "true"},
		{"ok", "false"},
		{"b", "document (deleted)"},
	})
	if err := f.eval(t, "err"); !strings.Contains(err, "stale proxy") {
		t.Errorf("stale access error = %q", err)
	}
}

func TestHost_TabLabel(t *testing.T) {
	f := newHostFixture(t, nil)
	f.run(t, `buffer.tab_label = "notes"`)
	if got := f.eval(t, "buffer.tab_label"); got != "notes" {
		t.Errorf("tab_label = %q", got)
	}
	if got := f.ui.TabLabels(); len(got) != 1 || got[0] != "notes" {
		t.Errorf("TabLabels() = %v", got)
	}
}

func TestHost_Navigation(t *testing.T) {
	f := newHostFixture(t, nil)
	f.run(t, `
		buffer.tab_label = "a"
		buffer.new().tab_label = "b"
		buffer.new().tab_label = "c"
	`)

	steps := []struct {
		code string
		want string
	}{
		{`view:goto_buffer(_BUFFERS[1])`, "a"},
		{`view:goto_buffer(1)`, "b"},
		{`view:goto_buffer(-2)`, "c"},
		{`move_buffer(3, 1)`, "c"},
	}
	for _, s := range steps {
		f.run(t, s.code)
		if got := f.eval(t, "buffer.tab_label"); got != s.want {
			t.Errorf("after %s: buffer.tab_label = %q, want %q", s.code, got, s.want)
		}
	}
	if got := f.eval(t, "_BUFFERS[buffer]"); got != "1" {
		t.Errorf("position after move = %s, want 1", got)
	}
}

func TestHost_SwitchFromSwitchHandler(t *testing.T) {
	f := newHostFixture(t, nil)
	f.run(t, `
		buffer.tab_label = "a"
		buffer.new().tab_label = "b"
		buffer.new().tab_label = "c"
		nested = false
		events.connect(events.BUFFER_AFTER_SWITCH, function()
			if nested then return end
			nested = true
			view:goto_buffer(_BUFFERS[1])
		end)
		view:goto_buffer(_BUFFERS[2])
	`)
	f.check(t, []evalCase{
		{"nested", "true"},
		{"buffer.tab_label", "a"},
		{"view.buffer == buffer", "true"},
		{"#_BUFFERS", "3"},
		{"_BUFFERS[buffer]", "1"},
		{"_BUFFERS[_BUFFERS[2]]", "2"},
		{"_BUFFERS[3].tab_label", "c"},
	})
	if got := f.ui.SelectedTab(); got != 1 {
		t.Errorf("selected tab = %d, want 1", got)
	}
}

func TestHost_DeleteTargetBeforeSwitch(t *testing.T) {
	f := newHostFixture(t, nil)
	f.run(t, `
		buffer.tab_label = "a"
		buffer.new().tab_label = "b"
		buffer.new().tab_label = "c"
		target = _BUFFERS[1]
		deleted = false
		events.connect(events.BUFFER_BEFORE_SWITCH, function()
			if deleted then return end
			deleted = true
			target:delete()
		end)
		after = 0
		events.connect(events.BUFFER_AFTER_SWITCH, function() after = after + 1 end)
		ok, err = pcall(function() view:goto_buffer(target) end)
	`)
	f.check(t, []evalCase{
		{"ok", "false"},
		{"after", "0"},
		{"target", "document (deleted)"},
		{"#_BUFFERS", "2"},
		{"_BUFFERS[target]", "nil"},
		{"buffer.tab_label", "c"},
		{"view.buffer == buffer", "true"},
		{"_BUFFERS[buffer]", "2"},
		{"_BUFFERS[1].tab_label", "b"},
	})
	if err := f.eval(t, "err"); !strings.Contains(err, "deleted during the switch") {
		t.Errorf("error = %q", err)
	}
}

func TestHost_Split(t *testing.T) {
	f := newHostFixture(t, nil)
	f.run(t, `
		orig = view
		old, new = view:split(true)
	`)
	f.check(t, []evalCase{
		{"old == orig", "true"},
		{"view == new", "true"},
		{"#_VIEWS", "2"},
		{"new.buffer == old.buffer", "true"},
		{"type(old.size)", "number"},
	})

	f.run(t, `ui.goto_view(orig)`)
	f.check(t, []evalCase{{"view == orig", "true"}})
	f.run(t, `ui.goto_view(1)`)
	f.check(t, []evalCase{{"view == new", "true"}})

	f.run(t, `was_split = orig:unsplit()`)
	f.check(t, []evalCase{
		{"was_split", "true"},
		{"#_VIEWS", "1"},
		{"view == orig", "true"},
		{"new", "view (deleted)"},
		{"orig:unsplit()", "false"},
	})
}

func TestHost_Events(t *testing.T) {
	f := newHostFixture(t, nil)
	f.run(t, `
		seen = {}
		events.connect(events.BUFFER_NEW, function(b) seen[#seen + 1] = b end)
		events.connect(events.KEYPRESS, function(code) if code == 65 then return true end end)
		b = buffer.new()
	`)
	f.check(t, []evalCase{
		{"#seen", "1"},
		{"seen[1] == b", "true"},
	})

	if !f.ev.Emit(event.Keypress, event.IntArg(65)) {
		t.Error("Emit(keypress 65) = false, want handled")
	}
	if f.ev.Emit(event.Keypress, event.IntArg(66)) {
		t.Error("Emit(keypress 66) = true, want unhandled")
	}
	if f.ev.Emit("unknown_event") {
		t.Error("Emit(unknown_event) = true")
	}
}

func TestHost_ConnectOrder(t *testing.T) {
	f := newHostFixture(t, nil)
	f.run(t, `
		order = ""
		local function a() order = order .. "a" end
		local function b() order = order .. "b" end
		events.connect("tick", a)
		events.connect("tick", b, 1)
		events.connect("tick", a)
		events.emit("tick")
		events.disconnect("tick", b)
		events.emit("tick")
	`)
	if got := f.eval(t, "order"); got != "baa" {
		t.Errorf("order = %q, want %q", got, "baa")
	}
}

func TestHost_ErrorContainment(t *testing.T) {
	f := newHostFixture(t, nil)
	f.run(t, `events.connect("boom", function() error("handler exploded", 0) end)`)

	if f.ev.Emit("boom") {
		t.Error("failing handler reported handled")
	}
	if got := f.ui.Status(); !strings.Contains(got, "handler exploded") {
		t.Errorf("Status() = %q, want the handler error", got)
	}

	// A failing error handler goes to the diagnostic stream.
	f.run(t, `events.connect(events.ERROR, function() error("error handler exploded", 0) end, 1)`)
	f.ev.Emit("boom")
	if got := f.diag.String(); !strings.Contains(got, "error handler exploded") {
		t.Errorf("diagnostics = %q", got)
	}
}

func TestHost_PrintAndQuit(t *testing.T) {
	f := newHostFixture(t, nil)
	f.run(t, `print("a", 1, true, buffer) quit()`)
	if got, want := f.out.String(), "a\t1\ttrue\tdocument: 1\n"; got != want {
		t.Errorf("print output = %q, want %q", got, want)
	}
	if f.quits != 1 {
		t.Errorf("quit called %d times", f.quits)
	}
}

func TestHost_DispatchAfterClose(t *testing.T) {
	f := newHostFixture(t, nil)
	f.h.Close()
	handled, installed, err := f.h.Dispatch(event.Keypress, nil)
	if handled || installed || err != nil {
		t.Errorf("Dispatch() after Close = %v, %v, %v", handled, installed, err)
	}
}
