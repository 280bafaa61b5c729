package term

import (
	"errors"
	"reflect"
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/lumen/internal/bridge"
	"github.com/dshills/lumen/internal/bridge/pane"
	"github.com/dshills/lumen/internal/platform"
)

func TestConvertKey(t *testing.T) {
	tests := []struct {
		name string
		ev   *tcell.EventKey
		want platform.KeyEvent
		ok   bool
	}{
		{"rune", tcell.NewEventKey(tcell.KeyRune, 'a', tcell.ModNone), platform.KeyEvent{Code: 'a', Rune: 'a'}, true},
		{"alt rune", tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModAlt), platform.KeyEvent{Code: 'x', Rune: 'x', Mods: platform.ModAlt}, true},
		{"enter", tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone), platform.KeyEvent{Code: platform.KeyEnter}, true},
		{"shift up", tcell.NewEventKey(tcell.KeyUp, 0, tcell.ModShift), platform.KeyEvent{Code: platform.KeyUp, Mods: platform.ModShift}, true},
		{"page down", tcell.NewEventKey(tcell.KeyPgDn, 0, tcell.ModNone), platform.KeyEvent{Code: platform.KeyPageDown}, true},
		{"backtab", tcell.NewEventKey(tcell.KeyBacktab, 0, tcell.ModNone), platform.KeyEvent{Code: platform.KeyTab, Mods: platform.ModShift}, true},
		{"ctrl letter", tcell.NewEventKey(tcell.KeyCtrlS, 0, tcell.ModCtrl), platform.KeyEvent{Code: 's', Mods: platform.ModCtrl}, true},
		{"function key", tcell.NewEventKey(tcell.KeyF5, 0, tcell.ModNone), platform.KeyEvent{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := convertKey(tt.ev)
			if ok != tt.ok || got != tt.want {
				t.Errorf("convertKey() = %+v, %v, want %+v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestComputeRegions(t *testing.T) {
	tests := []struct {
		name       string
		tabs, find bool
		entry      int
		want       regions
	}{
		{
			name: "plain",
			want: regions{
				views:  pane.Rect{Top: 0, Bottom: 23, Right: 80},
				status: pane.Rect{Top: 23, Bottom: 24, Right: 80},
			},
		},
		{
			name: "all widgets",
			tabs: true, find: true, entry: 2,
			want: regions{
				tabs:   pane.Rect{Top: 0, Bottom: 1, Right: 80},
				views:  pane.Rect{Top: 1, Bottom: 19, Right: 80},
				find:   pane.Rect{Top: 19, Bottom: 21, Right: 80},
				entry:  pane.Rect{Top: 21, Bottom: 23, Right: 80},
				status: pane.Rect{Top: 23, Bottom: 24, Right: 80},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeRegions(80, 24, tt.tabs, tt.find, tt.entry)
			if got != tt.want {
				t.Errorf("computeRegions() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExpandTabs(t *testing.T) {
	tests := []struct{ in, want string }{
		{"abc", "abc"},
		{"\tx", "    x"},
		{"ab\tx", "ab  x"},
		{"abcd\tx", "abcd    x"},
	}
	for _, tt := range tests {
		if got := expandTabs(tt.in); got != tt.want {
			t.Errorf("expandTabs(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func press(m *modal, keys ...*tcell.EventKey) (platform.DialogResult, bool) {
	for _, k := range keys {
		if res, done := m.key(k); done {
			return res, true
		}
	}
	return platform.DialogResult{}, false
}

func runes(s string) []*tcell.EventKey {
	var out []*tcell.EventKey
	for _, r := range s {
		out = append(out, tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone))
	}
	return out
}

var (
	enter  = tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone)
	escape = tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone)
	right  = tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModNone)
	down   = tcell.NewEventKey(tcell.KeyDown, 0, tcell.ModNone)
	bksp   = tcell.NewEventKey(tcell.KeyBackspace2, 0, tcell.ModNone)
)

func TestModal_Message(t *testing.T) {
	m := newModal(platform.DialogOptions{Kind: platform.MessageDialog, Buttons: []string{"Yes", "No"}})
	res, done := press(m, right, right, enter)
	if !done || res.Button != 2 {
		t.Errorf("result = %+v, %v, want button 2", res, done)
	}

	m = newModal(platform.DialogOptions{Kind: platform.MessageDialog})
	res, done = press(m, escape)
	if !done || res.Button != 0 {
		t.Errorf("escape result = %+v, want cancelled", res)
	}
}

func TestModal_Input(t *testing.T) {
	m := newModal(platform.DialogOptions{Kind: platform.InputDialog, Value: "ab"})
	keys := append([]*tcell.EventKey{bksp}, runes("cd")...)
	res, done := press(m, append(keys, enter)...)
	if !done || res.Button != 1 || res.Text != "acd" {
		t.Errorf("result = %+v", res)
	}
}

func TestModal_OpenFile(t *testing.T) {
	m := newModal(platform.DialogOptions{Kind: platform.OpenFileDialog, Dir: "/tmp", File: "a.txt", Multiple: true})
	res, done := press(m, append(runes(" /tmp/b.txt"), enter)...)
	if !done || !reflect.DeepEqual(res.Files, []string{"/tmp/a.txt", "/tmp/b.txt"}) {
		t.Errorf("result = %+v", res)
	}
}

func TestModal_ListFilter(t *testing.T) {
	m := newModal(platform.DialogOptions{
		Kind:         platform.ListDialog,
		Columns:      []string{"Name", "Kind"},
		Items:        []string{"alpha", "x", "beta", "y", "alphabet", "z"},
		SearchColumn: 1,
	})
	if len(m.matches) != 3 {
		t.Fatalf("matches = %v before filtering", m.matches)
	}
	res, done := press(m, append(runes("alp"), down, enter)...)
	if !done || !reflect.DeepEqual(res.Rows, []int{3}) {
		t.Errorf("result = %+v, want row 3", res)
	}

	m = newModal(platform.DialogOptions{Kind: platform.ListDialog, Items: []string{"a"}, SearchColumn: 1})
	res, _ = press(m, append(runes("zzz"), enter)...)
	if res.Button != 0 {
		t.Errorf("empty filter result = %+v, want cancelled", res)
	}
}

func TestAdapter_DialogNotRunning(t *testing.T) {
	a, err := New(Options{Screen: tcell.NewSimulationScreen("UTF-8")})
	if err != nil {
		t.Fatal(err)
	}
	_, err = a.Dialog(platform.DialogOptions{Kind: platform.MessageDialog})
	if !errors.Is(err, bridge.ErrInitialization) {
		t.Errorf("Dialog() outside Run error = %v", err)
	}
	_, err = a.Dialog(platform.DialogOptions{Buttons: []string{"1", "2", "3", "4"}})
	if !errors.Is(err, bridge.ErrArgument) {
		t.Errorf("Dialog(4 buttons) error = %v", err)
	}
}

func TestAdapter_Tabs(t *testing.T) {
	a, err := New(Options{Screen: tcell.NewSimulationScreen("UTF-8")})
	if err != nil {
		t.Fatal(err)
	}
	a.AddTab("one")
	a.AddTab("two")
	a.MoveTab(2, 1)
	a.SetTabLabel(1, "TWO")
	if got := a.TabLabels(); !reflect.DeepEqual(got, []string{"TWO", "one"}) {
		t.Errorf("TabLabels() = %v", got)
	}
}

func TestAdapter_DrawText(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	a, err := New(Options{Screen: screen})
	if err != nil {
		t.Fatal(err)
	}
	if err := screen.Init(); err != nil {
		t.Fatal(err)
	}
	defer screen.Fini()
	screen.SetSize(20, 2)

	tests := []struct {
		name  string
		text  string
		right int
		want  int
	}{
		{"ascii", "abc", 20, 3},
		{"combining", "e\u0301x", 20, 2},
		{"wide", "日本", 20, 4},
		{"wide clipped", "日本", 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.drawText(0, 0, tt.right, tt.text, tcell.StyleDefault); got != tt.want {
				t.Errorf("drawText(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}

	a.drawText(0, 1, 20, "e\u0301", tcell.StyleDefault)
	mainc, combc, _, _ := screen.GetContent(0, 1)
	if mainc != 'e' || len(combc) != 1 || combc[0] != '\u0301' {
		t.Errorf("cell = %q %q, want e with combining acute", mainc, combc)
	}
}
