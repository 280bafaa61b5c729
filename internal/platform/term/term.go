// Package term is the terminal backend, built on tcell.
//
// Window state that a terminal cannot express (title, size, maximized)
// is kept and shown in the status line where it makes sense. Timers run
// on time.AfterFunc and hop back to the main loop through a call queue, so
// every callback into the core happens on the goroutine running Run.
package term

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/gdamore/tcell/v2"

	"github.com/dshills/lumen/internal/bridge"
	"github.com/dshills/lumen/internal/bridge/pane"
	"github.com/dshills/lumen/internal/engine"
	"github.com/dshills/lumen/internal/platform"
	"github.com/dshills/lumen/internal/sched"
)

const (
	targetFPS = 60
	frameTime = time.Second / targetFPS
)

// Options configure an Adapter.
type Options struct {
	// Screen replaces the real terminal, for tests.
	Screen tcell.Screen
	// Spawner starts child processes. Nil disables spawning.
	Spawner sched.Spawner
	// Light selects the light theme.
	Light bool
	// Tick is the interval between idle calls. Zero means one frame.
	Tick time.Duration
}

// Adapter is the terminal backend.
type Adapter struct {
	screen  tcell.Screen
	spawner sched.Spawner
	theme   theme
	tick    time.Duration

	title     string
	status    string
	width     int
	height    int
	maximized bool
	dark      bool

	tree    *pane.Tree
	focused engine.Identity

	tabsVisible bool
	tabs        []string
	selected    int

	find  *platform.FindBox
	entry *platform.CommandEntryBox

	// Set while Run is active.
	handler platform.Handler
	events  <-chan tcell.Event

	calls    chan func()
	quit     chan struct{}
	quitOnce sync.Once
	dirty    bool
}

var _ platform.Adapter = (*Adapter)(nil)

// New creates a terminal adapter. The screen is initialized by Run.
func New(opts Options) (*Adapter, error) {
	screen := opts.Screen
	if screen == nil {
		var err error
		screen, err = tcell.NewScreen()
		if err != nil {
			return nil, fmt.Errorf("open terminal: %w", err)
		}
	}
	a := &Adapter{
		screen:  screen,
		spawner: opts.Spawner,
		dark:    !opts.Light,
		tick:    opts.Tick,
		find:    platform.NewFindBox(),
		entry:   &platform.CommandEntryBox{Height: 1},
		calls:   make(chan func(), 64),
		quit:    make(chan struct{}),
		dirty:   true,
	}
	if a.tick <= 0 {
		a.tick = frameTime
	}
	a.theme = newTheme(a.dark)
	return a, nil
}

// Title returns the window title.
func (a *Adapter) Title() string { return a.title }

// SetTitle sets the title shown in the status line.
func (a *Adapter) SetTitle(title string) {
	a.title = title
	a.Repaint()
}

// Size returns the terminal size.
func (a *Adapter) Size() (int, int) { return a.width, a.height }

// SetSize is a no-op; a terminal cannot be resized from inside.
func (a *Adapter) SetSize(int, int) {}

// Maximized reports the maximized flag.
func (a *Adapter) Maximized() bool { return a.maximized }

// SetMaximized records the maximized flag.
func (a *Adapter) SetMaximized(on bool) { a.maximized = on }

// Status returns the status line text.
func (a *Adapter) Status() string { return a.status }

// SetStatus sets the status line text.
func (a *Adapter) SetStatus(text string) {
	a.status = text
	a.Repaint()
}

// Dark reports whether the dark theme is active.
func (a *Adapter) Dark() bool { return a.dark }

// Repaint marks the screen for redraw at the next frame.
func (a *Adapter) Repaint() { a.dirty = true }

// Attach installs view as the only pane.
func (a *Adapter) Attach(view engine.Identity) {
	a.tree = pane.New(view)
	a.focused = view
	a.Repaint()
}

// Split splits the pane showing view.
func (a *Adapter) Split(view, newView engine.Identity, vertical bool) error {
	if a.tree == nil {
		return fmt.Errorf("%w: no pane layout", bridge.ErrInitialization)
	}
	a.Repaint()
	return a.tree.Split(view, newView, vertical)
}

// Unsplit removes the split containing view.
func (a *Adapter) Unsplit(view engine.Identity) ([]engine.Identity, bool) {
	if a.tree == nil {
		return nil, false
	}
	a.Repaint()
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
	a.Repaint()
	return a.tree.SetSize(view, size)
}

// Focus moves the cursor to view.
func (a *Adapter) Focus(view engine.Identity) {
	a.focused = view
	a.Repaint()
}

// ShowTabs toggles the tab line.
func (a *Adapter) ShowTabs(on bool) {
	a.tabsVisible = on
	a.Repaint()
}

// TabsVisible reports whether the tab line is shown.
func (a *Adapter) TabsVisible() bool { return a.tabsVisible }

// AddTab appends a tab.
func (a *Adapter) AddTab(label string) {
	a.tabs = append(a.tabs, label)
	a.Repaint()
}

// RemoveTab removes the tab at 1-based pos.
func (a *Adapter) RemoveTab(pos int) {
	if pos < 1 || pos > len(a.tabs) {
		return
	}
	a.tabs = append(a.tabs[:pos-1], a.tabs[pos:]...)
	a.selected = min(a.selected, len(a.tabs))
	a.Repaint()
}

// MoveTab moves the tab at from to to.
func (a *Adapter) MoveTab(from, to int) {
	n := len(a.tabs)
	if from < 1 || from > n || to < 1 || to > n || from == to {
		return
	}
	label := a.tabs[from-1]
	a.tabs = append(a.tabs[:from-1], a.tabs[from:]...)
	a.tabs = append(a.tabs[:to-1], append([]string{label}, a.tabs[to-1:]...)...)
	a.Repaint()
}

// SetTabLabel relabels the tab at pos.
func (a *Adapter) SetTabLabel(pos int, label string) {
	if pos >= 1 && pos <= len(a.tabs) {
		a.tabs[pos-1] = label
		a.Repaint()
	}
}

// SelectTab highlights the tab at pos.
func (a *Adapter) SelectTab(pos int) {
	if pos >= 1 && pos <= len(a.tabs) {
		a.selected = pos
		a.Repaint()
	}
}

// TabLabels returns a copy of the tab labels.
func (a *Adapter) TabLabels() []string { return append([]string(nil), a.tabs...) }

// FindBox returns the find box state.
func (a *Adapter) FindBox() *platform.FindBox { return a.find }

// CommandEntry returns the command entry state.
func (a *Adapter) CommandEntry() *platform.CommandEntryBox { return a.entry }

// Clipboard reads the system clipboard.
func (a *Adapter) Clipboard() (string, error) {
	if clipboard.Unsupported {
		return "", platform.ErrNoClipboard
	}
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", fmt.Errorf("%w: %v", platform.ErrNoClipboard, err)
	}
	return text, nil
}

// SetClipboard writes the system clipboard.
func (a *Adapter) SetClipboard(text string) error {
	if clipboard.Unsupported {
		return platform.ErrNoClipboard
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("%w: %v", platform.ErrNoClipboard, err)
	}
	return nil
}

// Schedule runs fn on the main loop after interval, repeating while fn
// returns true.
func (a *Adapter) Schedule(interval time.Duration, fn func() bool) {
	time.AfterFunc(interval, func() {
		a.post(func() {
			if fn() {
				a.Schedule(interval, fn)
			}
		})
	})
}

// post queues fn for the main loop. It is dropped after Quit.
func (a *Adapter) post(fn func()) {
	select {
	case a.calls <- fn:
	case <-a.quit:
	}
}

// Spawn starts a child process through the configured spawner.
func (a *Adapter) Spawn(ctx context.Context, cmd sched.Command) (sched.Process, error) {
	if a.spawner == nil {
		return nil, fmt.Errorf("%w: no process support", bridge.ErrSpawn)
	}
	return a.spawner.Spawn(ctx, cmd)
}

// Quit ends Run.
func (a *Adapter) Quit() {
	a.quitOnce.Do(func() { close(a.quit) })
}

// Run initializes the terminal and drives h until Quit.
func (a *Adapter) Run(h platform.Handler) error {
	if err := a.screen.Init(); err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	defer a.screen.Fini()
	a.screen.EnablePaste()

	a.handler = h
	a.events = a.startInputPolling()
	defer func() { a.handler, a.events = nil, nil }()

	a.width, a.height = a.screen.Size()
	h.Resize(a.width, a.height)

	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()

	for {
		select {
		case <-a.quit:
			return nil
		case ev, ok := <-a.events:
			if !ok {
				return nil
			}
			a.handleEvent(ev)
		case fn := <-a.calls:
			fn()
		case <-ticker.C:
			if h.Idle() {
				a.dirty = true
			}
			if a.dirty {
				a.draw()
			}
		}
	}
}

// startInputPolling polls the screen on its own goroutine. PollEvent
// returns nil once the screen is finalized, which ends the goroutine.
func (a *Adapter) startInputPolling() <-chan tcell.Event {
	events := make(chan tcell.Event, 100)
	go func() {
		defer close(events)
		for {
			ev := a.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-a.quit:
				return
			}
		}
	}()
	return events
}

func (a *Adapter) handleEvent(ev tcell.Event) {
	switch e := ev.(type) {
	case *tcell.EventResize:
		a.width, a.height = e.Size()
		a.screen.Sync()
		a.handler.Resize(a.width, a.height)
		a.dirty = true
	case *tcell.EventKey:
		if isQuit(e) {
			if a.handler.CloseRequested() {
				a.Quit()
			}
			return
		}
		if k, ok := convertKey(e); ok {
			a.handler.Key(k)
			a.dirty = true
		}
	}
}

// errNotRunning is returned by modal operations outside Run.
var errNotRunning = errors.New("terminal not running")
