// Package headless provides an in-memory platform backend.
//
// It keeps every piece of window state the core can observe, answers
// dialogs from a queue of scripted responses, and runs timers against a
// clock that tests can advance by hand. The -headless batch mode and most
// core tests run on it.
package headless

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/lumen/internal/bridge"
	"github.com/dshills/lumen/internal/bridge/pane"
	"github.com/dshills/lumen/internal/engine"
	"github.com/dshills/lumen/internal/platform"
	"github.com/dshills/lumen/internal/sched"
)

// DefaultIdleInterval is the pause between idle ticks when nothing ran.
const DefaultIdleInterval = 5 * time.Millisecond

// Options configure an Adapter.
type Options struct {
	// Spawner starts child processes. Nil disables spawning.
	Spawner sched.Spawner
	// Width and Height are the initial window size.
	Width, Height int
	// Dark selects a dark theme.
	Dark bool
	// Now replaces the clock used by timers.
	Now func() time.Time
	// IdleInterval overrides DefaultIdleInterval.
	IdleInterval time.Duration
}

type timer struct {
	interval time.Duration
	due      time.Time
	fn       func() bool
}

// Adapter is the headless backend. It is not safe for concurrent use
// except for Quit.
type Adapter struct {
	spawner sched.Spawner
	now     func() time.Time
	idle    time.Duration

	title     string
	status    string
	width     int
	height    int
	maximized bool
	dark      bool
	repaints  int

	tree    *pane.Tree
	focused engine.Identity

	tabsVisible bool
	tabs        []string
	selected    int

	find  *platform.FindBox
	entry *platform.CommandEntryBox

	responses []platform.DialogResult
	dialogs   []platform.DialogOptions

	clipboard string

	timers []*timer
	keys   []platform.KeyEvent

	mu   sync.Mutex
	quit bool
}

var _ platform.Adapter = (*Adapter)(nil)

// New creates a headless adapter.
func New(opts Options) *Adapter {
	a := &Adapter{
		spawner: opts.Spawner,
		now:     opts.Now,
		idle:    opts.IdleInterval,
		width:   opts.Width,
		height:  opts.Height,
		dark:    opts.Dark,
		find:    platform.NewFindBox(),
		entry:   &platform.CommandEntryBox{Height: 1},
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.idle <= 0 {
		a.idle = DefaultIdleInterval
	}
	if a.width <= 0 {
		a.width = 80
	}
	if a.height <= 0 {
		a.height = 24
	}
	return a
}

// Title returns the window title.
func (a *Adapter) Title() string { return a.title }

// SetTitle sets the window title.
func (a *Adapter) SetTitle(title string) { a.title = title }

// Size returns the window size.
func (a *Adapter) Size() (int, int) { return a.width, a.height }

// SetSize sets the window size.
func (a *Adapter) SetSize(width, height int) {
	a.width, a.height = width, height
}

// Maximized reports the maximized flag.
func (a *Adapter) Maximized() bool { return a.maximized }

// SetMaximized sets the maximized flag.
func (a *Adapter) SetMaximized(on bool) { a.maximized = on }

// Status returns the status bar text.
func (a *Adapter) Status() string { return a.status }

// SetStatus sets the status bar text.
func (a *Adapter) SetStatus(text string) { a.status = text }

// Dark reports whether the theme is dark.
func (a *Adapter) Dark() bool { return a.dark }

// Repaint counts a redraw request.
func (a *Adapter) Repaint() { a.repaints++ }

// Repaints returns the number of redraw requests so far.
func (a *Adapter) Repaints() int { return a.repaints }

// Attach installs view as the only pane.
func (a *Adapter) Attach(view engine.Identity) {
	a.tree = pane.New(view)
	a.focused = view
}

// Split splits the pane showing view.
func (a *Adapter) Split(view, newView engine.Identity, vertical bool) error {
	if a.tree == nil {
		return fmt.Errorf("%w: no pane layout", bridge.ErrInitialization)
	}
	return a.tree.Split(view, newView, vertical)
}

// Unsplit removes the split containing view.
func (a *Adapter) Unsplit(view engine.Identity) ([]engine.Identity, bool) {
	if a.tree == nil {
		return nil, false
	}
	return a.tree.Unsplit(view)
}

// PaneInfo describes the split containing view.
func (a *Adapter) PaneInfo(view engine.Identity) (*pane.Info, error) {
	if a.tree == nil {
		return nil, pane.ErrUnknownView
	}
	return a.tree.Info(view)
}

// TopPane describes the whole layout.
func (a *Adapter) TopPane() *pane.Info {
	if a.tree == nil {
		return nil
	}
	return a.tree.Top()
}

// SetPaneSize sets the size of the split containing view.
func (a *Adapter) SetPaneSize(view engine.Identity, size int) error {
	if a.tree == nil {
		return pane.ErrUnknownView
	}
	return a.tree.SetSize(view, size)
}

// Focus moves keyboard focus to view.
func (a *Adapter) Focus(view engine.Identity) { a.focused = view }

// Focused returns the view with keyboard focus.
func (a *Adapter) Focused() engine.Identity { return a.focused }

// Layout returns the screen rectangle of every view.
func (a *Adapter) Layout() map[engine.Identity]pane.Rect {
	if a.tree == nil {
		return nil
	}
	return a.tree.Layout(pane.Rect{Bottom: a.height, Right: a.width})
}

// ShowTabs toggles the tab strip.
func (a *Adapter) ShowTabs(on bool) { a.tabsVisible = on }

// TabsVisible reports whether the tab strip is shown.
func (a *Adapter) TabsVisible() bool { return a.tabsVisible }

// AddTab appends a tab.
func (a *Adapter) AddTab(label string) { a.tabs = append(a.tabs, label) }

// RemoveTab removes the tab at 1-based pos.
func (a *Adapter) RemoveTab(pos int) {
	if pos < 1 || pos > len(a.tabs) {
		return
	}
	a.tabs = append(a.tabs[:pos-1], a.tabs[pos:]...)
	if a.selected > len(a.tabs) {
		a.selected = len(a.tabs)
	}
}

// MoveTab moves the tab at from to to, shifting the tabs between.
func (a *Adapter) MoveTab(from, to int) {
	n := len(a.tabs)
	if from < 1 || from > n || to < 1 || to > n || from == to {
		return
	}
	label := a.tabs[from-1]
	a.tabs = append(a.tabs[:from-1], a.tabs[from:]...)
	a.tabs = append(a.tabs[:to-1], append([]string{label}, a.tabs[to-1:]...)...)
}

// SetTabLabel relabels the tab at pos.
func (a *Adapter) SetTabLabel(pos int, label string) {
	if pos >= 1 && pos <= len(a.tabs) {
		a.tabs[pos-1] = label
	}
}

// SelectTab selects the tab at pos.
func (a *Adapter) SelectTab(pos int) {
	if pos >= 1 && pos <= len(a.tabs) {
		a.selected = pos
	}
}

// SelectedTab returns the selected tab position, or 0.
func (a *Adapter) SelectedTab() int { return a.selected }

// TabLabels returns a copy of the tab labels in order.
func (a *Adapter) TabLabels() []string {
	return append([]string(nil), a.tabs...)
}

// FindBox returns the find box state.
func (a *Adapter) FindBox() *platform.FindBox { return a.find }

// CommandEntry returns the command entry state.
func (a *Adapter) CommandEntry() *platform.CommandEntryBox { return a.entry }

// Respond queues results for the next dialogs, in order.
func (a *Adapter) Respond(results ...platform.DialogResult) {
	a.responses = append(a.responses, results...)
}

// Dialogs returns the options of every dialog shown so far.
func (a *Adapter) Dialogs() []platform.DialogOptions { return a.dialogs }

// Dialog records opts and answers with the next queued response. Without
// one the dialog counts as cancelled. Progress dialogs poll their work
// until it is done.
func (a *Adapter) Dialog(opts platform.DialogOptions) (platform.DialogResult, error) {
	if err := opts.Validate(); err != nil {
		return platform.DialogResult{}, err
	}
	a.dialogs = append(a.dialogs, opts)

	if opts.Kind == platform.ProgressDialog {
		for {
			_, _, done := opts.Work()
			if done {
				break
			}
		}
	}

	if len(a.responses) == 0 {
		return platform.DialogResult{}, nil
	}
	r := a.responses[0]
	a.responses = a.responses[1:]
	return r, nil
}

// Clipboard returns the in-process clipboard.
func (a *Adapter) Clipboard() (string, error) { return a.clipboard, nil }

// SetClipboard sets the in-process clipboard.
func (a *Adapter) SetClipboard(text string) error {
	a.clipboard = text
	return nil
}

// Schedule registers a timer against the adapter's clock.
func (a *Adapter) Schedule(interval time.Duration, fn func() bool) {
	a.timers = append(a.timers, &timer{interval: interval, due: a.now().Add(interval), fn: fn})
}

// PendingTimers returns the number of live timers.
func (a *Adapter) PendingTimers() int { return len(a.timers) }

// FireTimers runs every timer that is due and returns how many ran.
func (a *Adapter) FireTimers() int {
	now := a.now()
	fired := 0
	due := a.timers
	a.timers = nil
	var live []*timer
	for _, t := range due {
		if now.Before(t.due) {
			live = append(live, t)
			continue
		}
		fired++
		if t.fn() {
			t.due = now.Add(t.interval)
			live = append(live, t)
		}
	}
	// Callbacks may have scheduled more timers.
	a.timers = append(live, a.timers...)
	return fired
}

// Spawn starts a child process through the configured spawner.
func (a *Adapter) Spawn(ctx context.Context, cmd sched.Command) (sched.Process, error) {
	if a.spawner == nil {
		return nil, fmt.Errorf("%w: no process support", bridge.ErrSpawn)
	}
	return a.spawner.Spawn(ctx, cmd)
}

// Type queues key events for delivery when Run starts.
func (a *Adapter) Type(keys ...platform.KeyEvent) {
	a.keys = append(a.keys, keys...)
}

// Run delivers queued keys, then ticks h until Quit is called or nothing
// is left to do.
func (a *Adapter) Run(h platform.Handler) error {
	h.Resize(a.width, a.height)
	for len(a.keys) > 0 && !a.quitting() {
		k := a.keys[0]
		a.keys = a.keys[1:]
		h.Key(k)
	}
	for !a.quitting() {
		worked := h.Idle()
		if a.FireTimers() > 0 {
			worked = true
		}
		if a.quitting() {
			break
		}
		if !worked {
			if !h.Pending() && len(a.timers) == 0 {
				return nil
			}
			time.Sleep(a.idle)
		}
	}
	return nil
}

// Quit ends Run.
func (a *Adapter) Quit() {
	a.mu.Lock()
	a.quit = true
	a.mu.Unlock()
}

func (a *Adapter) quitting() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.quit
}
