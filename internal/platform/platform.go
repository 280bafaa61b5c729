// Package platform defines the contract between the editor core and a
// concrete user-interface backend.
//
// A backend owns the window, the pane layout, the tab strip, the find and
// command-entry widgets, dialogs, the clipboard and native timers, and it
// runs the main loop. The core drives it only through the Adapter interface
// and receives input through a Handler. Two backends ship with lumen:
// headless (in-memory, for tests and batch runs) and term (tcell).
package platform

import (
	"errors"
	"fmt"
	"time"

	"github.com/dshills/lumen/internal/bridge"
	"github.com/dshills/lumen/internal/bridge/pane"
	"github.com/dshills/lumen/internal/engine"
	"github.com/dshills/lumen/internal/sched"
)

// ErrNoClipboard is returned when the system clipboard is unavailable.
var ErrNoClipboard = errors.New("clipboard unavailable")

// Window covers top-level window state.
type Window interface {
	Title() string
	SetTitle(title string)
	Size() (width, height int)
	SetSize(width, height int)
	Maximized() bool
	SetMaximized(on bool)
	SetStatus(text string)
	Status() string
	Dark() bool
	// Repaint requests a redraw at the next opportunity.
	Repaint()
}

// Panes covers the split layout of views.
type Panes interface {
	// Attach installs view as the only pane of a fresh layout.
	Attach(view engine.Identity)
	Split(view, newView engine.Identity, vertical bool) error
	Unsplit(view engine.Identity) ([]engine.Identity, bool)
	PaneInfo(view engine.Identity) (*pane.Info, error)
	TopPane() *pane.Info
	SetPaneSize(view engine.Identity, size int) error
	Focus(view engine.Identity)
}

// Tabs covers the tab strip. Positions are 1-based and follow the open
// document order.
type Tabs interface {
	ShowTabs(on bool)
	TabsVisible() bool
	AddTab(label string)
	RemoveTab(pos int)
	MoveTab(from, to int)
	SetTabLabel(pos int, label string)
	SelectTab(pos int)
	TabLabels() []string
}

// Widgets exposes the find box and command entry state. Backends draw
// them; the scripting layer reads and writes them.
type Widgets interface {
	FindBox() *FindBox
	CommandEntry() *CommandEntryBox
}

// Dialogs presents modal dialogs.
type Dialogs interface {
	Dialog(opts DialogOptions) (DialogResult, error)
}

// Clipboard accesses the system clipboard.
type Clipboard interface {
	Clipboard() (string, error)
	SetClipboard(text string) error
}

// Timers schedules native callbacks. fn runs on the main loop thread after
// interval and again after each further interval while it returns true.
type Timers interface {
	Schedule(interval time.Duration, fn func() bool)
}

// Adapter is a complete backend.
type Adapter interface {
	Window
	Panes
	Tabs
	Widgets
	Dialogs
	Clipboard
	Timers
	sched.Spawner

	// Run drives the main loop until Quit is called. Input and idle ticks
	// are delivered to h on the calling goroutine.
	Run(h Handler) error
	// Quit ends Run.
	Quit()
}

// Key modifier bits, in the engine's convention.
const (
	ModShift = 1 << iota
	ModCtrl
	ModAlt
	ModMeta
)

// Key codes for non-printable keys, in the engine's convention. Printable
// keys use their rune value.
const (
	KeyEscape    = 7
	KeyBackspace = 8
	KeyTab       = 9
	KeyEnter     = 13
	KeyDown      = 300
	KeyUp        = 301
	KeyLeft      = 302
	KeyRight     = 303
	KeyHome      = 304
	KeyEnd       = 305
	KeyPageUp    = 306
	KeyPageDown  = 307
	KeyDelete    = 308
	KeyInsert    = 309
)

// KeyEvent is one key press.
type KeyEvent struct {
	Code int
	Mods int
	// Rune is the printable character, or 0.
	Rune rune
}

// ViewContent is what a backend needs to draw one view.
type ViewContent struct {
	Lines       []string
	FirstLine   int // 0-based line number of Lines[0]
	CaretLine   int // 0-based
	CaretColumn int // 0-based byte column
	Modified    bool
}

// Handler receives input from a backend's main loop.
type Handler interface {
	// Idle runs one idle tick and reports whether any work happened.
	Idle() bool
	// Pending reports whether timers or processes are outstanding.
	Pending() bool
	Key(ev KeyEvent)
	Resize(width, height int)
	// CloseRequested is called when the user asks to close the window.
	// Returning false keeps the window open.
	CloseRequested() bool
	// Content returns the visible part of view.
	Content(view engine.Identity, rows int) ViewContent
	// FocusedView returns the view with keyboard focus.
	FocusedView() engine.Identity
}

// DialogKind selects a dialog.
type DialogKind uint8

const (
	MessageDialog DialogKind = iota
	InputDialog
	OpenFileDialog
	SaveFileDialog
	ProgressDialog
	ListDialog
)

var dialogNames = [...]string{"message", "input", "open", "save", "progress", "list"}

// String returns the dialog kind name.
func (k DialogKind) String() string {
	if int(k) < len(dialogNames) {
		return dialogNames[k]
	}
	return fmt.Sprintf("dialog(%d)", k)
}

// ParseDialogKind maps a dialog name to its kind.
func ParseDialogKind(name string) (DialogKind, bool) {
	for i, n := range dialogNames {
		if n == name {
			return DialogKind(i), true
		}
	}
	return 0, false
}

// DialogOptions configure a dialog.
type DialogOptions struct {
	Kind    DialogKind
	Title   string
	Text    string
	Icon    string
	Buttons []string // at most three

	// Input dialogs.
	Value string

	// File dialogs.
	Dir      string
	File     string
	Multiple bool
	OnlyDirs bool

	// List dialogs.
	Columns      []string
	Items        []string // row-major, len(Columns) cells per row
	SearchColumn int      // 1-based

	// Progress dialogs. Work is polled until it reports done.
	Work func() (percent int, text string, done bool)
}

// Validate checks the options for contract violations.
func (o DialogOptions) Validate() error {
	if len(o.Buttons) > 3 {
		return fmt.Errorf("%w: at most 3 buttons, got %d", bridge.ErrArgument, len(o.Buttons))
	}
	if o.Kind == ListDialog {
		cols := max(len(o.Columns), 1)
		if o.SearchColumn < 0 || o.SearchColumn > cols {
			return fmt.Errorf("%w: search column %d not in [1, %d]", bridge.ErrArgument, o.SearchColumn, cols)
		}
	}
	if o.Kind == ProgressDialog && o.Work == nil {
		return fmt.Errorf("%w: progress dialog needs work", bridge.ErrArgument)
	}
	return nil
}

// Rows returns the list items grouped by row.
func (o DialogOptions) Rows() [][]string {
	cols := max(len(o.Columns), 1)
	var rows [][]string
	for i := 0; i < len(o.Items); i += cols {
		rows = append(rows, o.Items[i:min(i+cols, len(o.Items))])
	}
	return rows
}

// DialogResult is a dialog's outcome. Button is 1-based; 0 means the
// dialog was cancelled.
type DialogResult struct {
	Button int
	Text   string
	Files  []string
	Rows   []int // 1-based
}
