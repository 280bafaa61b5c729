// Package runtime owns the editor's live object graph: the current
// document and view, the proxy registry, and the lifecycle phase.
//
// Every navigation or lifecycle operation goes through a Runtime so that
// the registry, the engine's document pointers and the platform's pane and
// tab state move together. A Runtime is used from a single goroutine; each
// mutation completes before any event handler runs, so handlers that call
// back into the Runtime always observe a consistent state.
package runtime

import (
	"fmt"

	"github.com/dshills/lumen/internal/bridge"
	"github.com/dshills/lumen/internal/bridge/registry"
	"github.com/dshills/lumen/internal/engine"
	"github.com/dshills/lumen/internal/event"
	"github.com/dshills/lumen/internal/platform"
)

// Phase is the lifecycle phase of a Runtime.
type Phase uint8

const (
	// Startup is the one-time initialization window. Events are not
	// emitted and new documents may not be created by scripts.
	Startup Phase = iota
	// Running is normal operation.
	Running
	// Shutdown is application teardown. Events are not emitted.
	Shutdown
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Startup:
		return "startup"
	case Running:
		return "running"
	case Shutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("phase(%d)", p)
	}
}

// UI is the part of the platform adapter the runtime drives.
type UI interface {
	platform.Panes
	platform.Tabs
	Repaint()
}

// Emitter delivers named events to scripts.
type Emitter interface {
	Emit(name string, args ...event.Arg) bool
}

// Logger is the logging interface the runtime uses.
type Logger interface {
	Debug(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}

// DefaultLabel is the tab label of a document that has none.
const DefaultLabel = "Untitled"

// Options configure a Runtime.
type Options struct {
	Engine   engine.Engine
	UI       UI
	Emitter  Emitter
	Registry *registry.Registry
	Logger   Logger
}

// Runtime is the editor's runtime context.
type Runtime struct {
	eng    engine.Engine
	ui     UI
	emit   Emitter
	reg    *registry.Registry
	logger Logger

	phase Phase
	doc   engine.Identity // current document
	view  engine.Identity // focused view

	labels map[engine.Identity]string
}

// New creates a Runtime in the Startup phase. Boot must be called before
// any other operation.
func New(opts Options) *Runtime {
	r := &Runtime{
		eng:    opts.Engine,
		ui:     opts.UI,
		emit:   opts.Emitter,
		reg:    opts.Registry,
		logger: opts.Logger,
		labels: make(map[engine.Identity]string),
	}
	if r.reg == nil {
		r.reg = registry.New()
	}
	if r.emit == nil {
		r.emit = nopEmitter{}
	}
	if r.logger == nil {
		r.logger = nopLogger{}
	}
	return r
}

type nopEmitter struct{}

func (nopEmitter) Emit(string, ...event.Arg) bool { return false }

// Registry returns the proxy registry.
func (r *Runtime) Registry() *registry.Registry { return r.reg }

// Engine returns the text engine.
func (r *Runtime) Engine() engine.Engine { return r.eng }

// Phase returns the lifecycle phase.
func (r *Runtime) Phase() Phase { return r.phase }

// SetEmitter replaces the event emitter.
func (r *Runtime) SetEmitter(e Emitter) {
	if e == nil {
		e = nopEmitter{}
	}
	r.emit = e
}

// CurrentDocument returns the proxy of the current document, or nil.
func (r *Runtime) CurrentDocument() *registry.Proxy {
	p, _ := r.reg.Lookup(r.doc)
	return p
}

// CurrentView returns the proxy of the focused view, or nil.
func (r *Runtime) CurrentView() *registry.Proxy {
	p, _ := r.reg.Lookup(r.view)
	return p
}

// HasView reports whether a view is focused.
func (r *Runtime) HasView() bool { return r.view != engine.None && r.phase != Shutdown }

// Boot creates the command entry, the first document and the first view.
// No events are emitted.
func (r *Runtime) Boot() error {
	if r.phase != Startup {
		return bridge.Errorf("boot", bridge.ErrInitialization, "runtime is %s", r.phase)
	}
	if r.reg.CommandEntry() != nil {
		return bridge.Errorf("boot", bridge.ErrInitialization, "already booted")
	}

	entry := r.eng.CreateDocument()
	if _, err := r.reg.Register(entry, registry.CommandEntry); err != nil {
		return err
	}
	doc, err := r.createDocument()
	if err != nil {
		return err
	}
	view := r.eng.CreateView(doc.ID())
	if _, err := r.reg.Register(view, registry.View); err != nil {
		return err
	}
	r.ui.Attach(view)
	r.doc, r.view = doc.ID(), view
	r.ui.SelectTab(doc.Position())
	r.logger.Debug("booted: entry %s, document %s, view %s", entry, doc.ID(), view)
	return nil
}

// Ready ends the Startup phase.
func (r *Runtime) Ready() {
	if r.phase == Startup {
		r.phase = Running
	}
}

// quiet reports whether events are suppressed.
func (r *Runtime) quiet() bool { return r.phase != Running }

func (r *Runtime) fire(name string, args ...event.Arg) {
	if r.quiet() {
		for _, a := range args {
			if a.Kind == event.Table {
				a.Ref.Release()
			}
		}
		return
	}
	r.emit.Emit(name, args...)
}

// proxyArg passes p to handlers as a table payload.
func proxyArg(p *registry.Proxy) event.Arg {
	return event.TableArg(event.NewRef(p, nil))
}

// createDocument makes a document, registers it and adds its tab.
func (r *Runtime) createDocument() (*registry.Proxy, error) {
	id := r.eng.CreateDocument()
	p, err := r.reg.Register(id, registry.Document)
	if err != nil {
		r.eng.ReleaseDocument(id)
		return nil, err
	}
	r.ui.AddTab(DefaultLabel)
	return p, nil
}

// docOf returns the document view displays.
func (r *Runtime) docOf(view engine.Identity) engine.Identity {
	return engine.Identity(r.eng.Send(view, engine.MsgGetDocPointer, engine.Word{}, engine.Word{}))
}

// DocumentOf returns the document view displays.
func (r *Runtime) DocumentOf(view engine.Identity) *registry.Proxy {
	p, ok := r.reg.Lookup(r.docOf(view))
	if !ok {
		return nil
	}
	return p
}

// show points view at doc and keeps the current-document global and the
// selected tab in step when view is focused.
func (r *Runtime) show(view engine.Identity, doc *registry.Proxy) {
	r.eng.Send(view, engine.MsgSetDocPointer, engine.Word{}, engine.IntWord(int64(doc.ID())))
	if view == r.view {
		r.doc = doc.ID()
		r.ui.SelectTab(doc.Position())
	}
	r.ui.Repaint()
}

// NewDocument creates a document, shows it in the focused view and makes
// it current. It fails with ErrInitialization outside the Running phase.
func (r *Runtime) NewDocument() (*registry.Proxy, error) {
	if r.phase != Running {
		return nil, bridge.Errorf("new_document", bridge.ErrInitialization, "runtime is %s", r.phase)
	}
	p, err := r.newDocument()
	if err != nil {
		return nil, err
	}
	r.fire(event.BufferNew, proxyArg(p))
	return p, nil
}

func (r *Runtime) newDocument() (*registry.Proxy, error) {
	p, err := r.createDocument()
	if err != nil {
		return nil, err
	}
	r.show(r.view, p)
	r.logger.Debug("new document %s at %d", p.ID(), p.Position())
	return p, nil
}

// DeleteDocument closes doc. Views showing it move to the previous
// document first; if doc is the only document, a replacement is created.
func (r *Runtime) DeleteDocument(doc engine.Identity) error {
	p, ok := r.reg.Lookup(doc)
	if !ok {
		return bridge.Errorf("delete_document", bridge.ErrStale, "no document %s", doc)
	}
	switch p.Kind() {
	case registry.CommandEntry:
		return bridge.Errorf("delete_document", bridge.ErrArgument, "cannot delete the command entry")
	case registry.View:
		return bridge.Errorf("delete_document", bridge.ErrArgument, "%s is a view", doc)
	}

	if r.reg.Count(registry.Document) == 1 {
		np, err := r.newDocument()
		if err != nil {
			return err
		}
		r.fire(event.BufferNew, proxyArg(np))
	}
	for _, v := range r.reg.Views() {
		if r.docOf(v.ID()) == doc {
			if err := r.SwitchDocument(v.ID(), -1, true); err != nil {
				return err
			}
		}
	}

	pos := p.Position()
	r.reg.Unregister(doc)
	r.eng.ReleaseDocument(doc)
	delete(r.labels, doc)
	r.ui.RemoveTab(pos)
	if cur := r.CurrentDocument(); cur != nil {
		r.ui.SelectTab(cur.Position())
	}
	r.logger.Debug("deleted document %s from %d", doc, pos)

	r.fire(event.BufferDeleted, proxyArg(p))
	return nil
}

// wrapPosition offsets cur by n within [1, count]. Going past the end
// lands on 1 and going before 1 lands on count.
func wrapPosition(cur, n, count int) int {
	switch target := cur + n; {
	case target > count:
		return 1
	case target < 1:
		return count
	default:
		return target
	}
}

// SwitchDocument shows another document in view. With relative set, n is
// an offset from the current position that wraps to the other end. Without
// it, n is a 1-based position where -1 or any position past the end means
// the last document.
func (r *Runtime) SwitchDocument(view engine.Identity, n int, relative bool) error {
	if relative && n == 0 {
		return nil
	}
	if _, ok := r.reg.Lookup(view); !ok {
		return bridge.Errorf("switch_document", bridge.ErrStale, "no view %s", view)
	}

	count := r.reg.Count(registry.Document)
	if count == 0 {
		return bridge.Errorf("switch_document", bridge.ErrOutOfRange, "no documents")
	}
	target := n
	if relative {
		cur := 1
		if p, ok := r.reg.Lookup(r.docOf(view)); ok && p.Kind() == registry.Document {
			cur = p.Position()
		}
		target = wrapPosition(cur, n, count)
	} else if n == -1 || n > count {
		target = count
	}
	doc, err := r.reg.LookupPosition(registry.Document, target)
	if err != nil || target == 0 {
		return bridge.Errorf("switch_document", bridge.ErrOutOfRange, "document %d not in [1, %d]", n, count)
	}

	r.fire(event.BufferBeforeSwitch)
	// Handlers may delete the target or close the view.
	if !doc.Live() {
		return bridge.Errorf("switch_document", bridge.ErrStale, "document %d deleted during the switch", target)
	}
	if _, ok := r.reg.Lookup(view); !ok {
		return bridge.Errorf("switch_document", bridge.ErrStale, "view %s closed during the switch", view)
	}
	r.show(view, doc)
	r.fire(event.BufferAfterSwitch)
	return nil
}

// MoveDocument moves the document at position from to position to.
func (r *Runtime) MoveDocument(from, to int) error {
	if err := r.reg.Move(from, to); err != nil {
		return bridge.NewOperationError("move_document", "", err)
	}
	r.ui.MoveTab(from, to)
	if cur := r.CurrentDocument(); cur != nil {
		r.ui.SelectTab(cur.Position())
	}
	return nil
}

// Label returns the tab label of doc.
func (r *Runtime) Label(doc engine.Identity) string {
	if l, ok := r.labels[doc]; ok {
		return l
	}
	return DefaultLabel
}

// SetLabel sets the tab label of doc.
func (r *Runtime) SetLabel(doc engine.Identity, label string) error {
	p, ok := r.reg.Lookup(doc)
	if !ok || p.Kind() != registry.Document {
		return bridge.Errorf("set_label", bridge.ErrArgument, "no document %s", doc)
	}
	r.labels[doc] = label
	r.ui.SetTabLabel(p.Position(), label)
	return nil
}

// viewState lists the view settings copied into a new split.
var viewState = []struct{ get, set engine.Msg }{
	{engine.MsgGetFirstVisibleLine, engine.MsgSetFirstVisibleLine},
	{engine.MsgGetXOffset, engine.MsgSetXOffset},
	{engine.MsgGetZoom, engine.MsgSetZoom},
}

// SplitView splits view, showing its document in a new view that gets
// the same scroll state and focus.
func (r *Runtime) SplitView(view engine.Identity, vertical bool) (*registry.Proxy, error) {
	if p, ok := r.reg.Lookup(view); !ok || p.Kind() != registry.View {
		return nil, bridge.Errorf("split_view", bridge.ErrStale, "no view %s", view)
	}

	doc := r.docOf(view)
	caret := r.eng.Send(view, engine.MsgGetCurrentPos, engine.Word{}, engine.Word{})
	anchor := r.eng.Send(view, engine.MsgGetAnchor, engine.Word{}, engine.Word{})

	nv := r.eng.CreateView(doc)
	for _, s := range viewState {
		v := r.eng.Send(view, s.get, engine.Word{}, engine.Word{})
		r.eng.Send(nv, s.set, engine.IntWord(v), engine.Word{})
	}
	r.eng.Send(nv, engine.MsgSetSel, engine.IntWord(anchor), engine.IntWord(caret))

	p, err := r.reg.Register(nv, registry.View)
	if err != nil {
		r.eng.DestroyView(nv)
		return nil, err
	}
	if err := r.ui.Split(view, nv, vertical); err != nil {
		r.reg.Unregister(nv)
		r.eng.DestroyView(nv)
		return nil, bridge.NewOperationError("split_view", view.String(), err)
	}
	r.logger.Debug("split %s into %s (vertical %v)", view, nv, vertical)

	r.fire(event.ViewNew, proxyArg(p))
	if err := r.FocusChanged(nv); err != nil {
		return nil, err
	}
	return p, nil
}

// UnsplitView collapses the split containing view, deleting every view in
// the other half. It reports whether view was inside a split.
func (r *Runtime) UnsplitView(view engine.Identity) (bool, error) {
	if p, ok := r.reg.Lookup(view); !ok || p.Kind() != registry.View {
		return false, bridge.Errorf("unsplit_view", bridge.ErrStale, "no view %s", view)
	}
	removed, ok := r.ui.Unsplit(view)
	if !ok {
		return false, nil
	}
	focusLost := false
	for _, v := range removed {
		if v == r.view {
			focusLost = true
		}
		r.reg.Unregister(v)
		r.eng.DestroyView(v)
	}
	r.logger.Debug("unsplit %s, removed %v", view, removed)
	if focusLost {
		r.view = engine.None
		return true, r.FocusChanged(view)
	}
	return true, nil
}

// FocusChanged records that focus moved to view.
func (r *Runtime) FocusChanged(view engine.Identity) error {
	if view == r.view {
		return nil
	}
	p, ok := r.reg.Lookup(view)
	if !ok || p.Kind() != registry.View {
		return bridge.Errorf("focus", bridge.ErrStale, "no view %s", view)
	}

	if r.view != engine.None {
		r.fire(event.ViewBeforeSwitch)
	}
	r.view = view
	r.doc = r.docOf(view)
	r.ui.Focus(view)
	if cur := r.CurrentDocument(); cur != nil {
		r.ui.SelectTab(cur.Position())
	}
	r.ui.Repaint()
	r.fire(event.ViewAfterSwitch)
	return nil
}

// GotoView focuses another view, by offset from the focused one when
// relative is set or by 1-based position otherwise (-1 is the last).
func (r *Runtime) GotoView(n int, relative bool) error {
	if relative && n == 0 {
		return nil
	}
	count := r.reg.Count(registry.View)
	if count == 0 {
		return bridge.Errorf("goto_view", bridge.ErrOutOfRange, "no views")
	}
	target := n
	if relative {
		cur := 1
		if p := r.CurrentView(); p != nil {
			cur = p.Position()
		}
		target = wrapPosition(cur, n, count)
	} else if n == -1 {
		target = count
	}
	p, err := r.reg.LookupPosition(registry.View, target)
	if err != nil {
		return bridge.NewOperationError("goto_view", "", err)
	}
	return r.FocusChanged(p.ID())
}

// BeginShutdown enters the Shutdown phase. Events stop.
func (r *Runtime) BeginShutdown() {
	r.phase = Shutdown
}

// Teardown destroys every view and document and clears the registry.
// Views are not retargeted and no events are emitted.
func (r *Runtime) Teardown() {
	r.phase = Shutdown
	for _, v := range r.reg.Views() {
		r.eng.DestroyView(v.ID())
	}
	for _, d := range r.reg.Documents() {
		r.eng.ReleaseDocument(d.ID())
	}
	if e := r.reg.CommandEntry(); e != nil {
		r.eng.ReleaseDocument(e.ID())
	}
	r.reg.Reset()
	r.doc, r.view = engine.None, engine.None
	r.logger.Debug("runtime torn down")
}
