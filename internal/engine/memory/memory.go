// Package memory is an in-memory text engine implementing engine.Engine.
//
// It backs the terminal and headless platforms and every bridge test. Text is
// stored as a flat byte slice per document; edits are recorded for undo.
package memory

import (
	"bytes"
	"sync"

	"github.com/dshills/lumen/internal/engine"
)

// edit is one reversible change to a document's text.
type edit struct {
	pos      int
	removed  []byte
	inserted []byte
}

type style struct {
	fore, back int64
}

type document struct {
	text []byte

	caret, anchor          int
	targetStart, targetEnd int

	readOnly  bool
	undo      []edit
	redo      []edit
	savePoint int // len(undo) at the last save point, -1 when unreachable

	styles map[int64]*style
}

type view struct {
	doc       engine.Identity
	firstLine int
	xOffset   int
	zoom      int
}

// Engine is a thread-safe in-memory engine.
type Engine struct {
	mu    sync.Mutex
	next  engine.Identity
	docs  map[engine.Identity]*document
	views map[engine.Identity]*view
	keys  map[int64]int64
}

// New creates an empty engine.
func New() *Engine {
	return &Engine{
		docs:  make(map[engine.Identity]*document),
		views: make(map[engine.Identity]*view),
		keys:  make(map[int64]int64),
	}
}

// CreateDocument implements engine.Engine.
func (e *Engine) CreateDocument() engine.Identity {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.next++
	e.docs[e.next] = &document{styles: make(map[int64]*style)}
	return e.next
}

// ReleaseDocument implements engine.Engine.
func (e *Engine) ReleaseDocument(doc engine.Identity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.docs, doc)
}

// CreateView implements engine.Engine.
func (e *Engine) CreateView(doc engine.Identity) engine.Identity {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.next++
	e.views[e.next] = &view{doc: doc}
	return e.next
}

// DestroyView implements engine.Engine.
func (e *Engine) DestroyView(v engine.Identity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.views, v)
}

// Documents returns the number of live documents.
func (e *Engine) Documents() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.docs)
}

// Views returns the number of live views.
func (e *Engine) Views() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.views)
}

// Send implements engine.Engine.
func (e *Engine) Send(target engine.Identity, msg engine.Msg, w, l engine.Word) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := e.views[target]
	if r, ok := e.viewMessage(v, msg, w, l); ok {
		return r
	}

	var d *document
	if v != nil {
		d = e.docs[v.doc]
	} else {
		d = e.docs[target]
	}
	if d == nil {
		return 0
	}

	switch msg {
	case engine.MsgAssignCmdKey:
		e.keys[w.N] = l.N
		return 0
	case engine.MsgClearCmdKey:
		delete(e.keys, w.N)
		return 0
	case engine.MsgGetCmdKey:
		return e.keys[w.N]
	}
	return d.send(msg, w, l)
}

// viewMessage handles messages that only make sense for a view.
func (e *Engine) viewMessage(v *view, msg engine.Msg, w, l engine.Word) (int64, bool) {
	switch msg {
	case engine.MsgGetDocPointer, engine.MsgSetDocPointer,
		engine.MsgGetFirstVisibleLine, engine.MsgSetFirstVisibleLine,
		engine.MsgGetXOffset, engine.MsgSetXOffset,
		engine.MsgGetZoom, engine.MsgSetZoom:
	default:
		return 0, false
	}
	if v == nil {
		return 0, true
	}

	switch msg {
	case engine.MsgGetDocPointer:
		return int64(v.doc), true
	case engine.MsgSetDocPointer:
		v.doc = engine.Identity(l.N)
	case engine.MsgGetFirstVisibleLine:
		return int64(v.firstLine), true
	case engine.MsgSetFirstVisibleLine:
		v.firstLine = max(0, int(w.N))
	case engine.MsgGetXOffset:
		return int64(v.xOffset), true
	case engine.MsgSetXOffset:
		v.xOffset = max(0, int(w.N))
	case engine.MsgGetZoom:
		return int64(v.zoom), true
	case engine.MsgSetZoom:
		v.zoom = int(w.N)
	}
	return 0, true
}

func (d *document) send(msg engine.Msg, w, l engine.Word) int64 {
	switch msg {
	case engine.MsgGetLength:
		return int64(len(d.text))
	case engine.MsgGetText:
		if l.P == nil {
			return int64(len(d.text) + 1)
		}
		return copyTerminated(l.P, d.text, int(w.N))
	case engine.MsgSetText:
		d.replace(0, len(d.text), l.P)
		d.caret, d.anchor = 0, 0
	case engine.MsgAppendText:
		n := clamp(int(w.N), 0, len(l.P))
		d.replace(len(d.text), 0, l.P[:n])
	case engine.MsgInsertText:
		pos := int(w.N)
		if pos < 0 {
			pos = d.caret
		}
		pos = clamp(pos, 0, len(d.text))
		if d.replace(pos, 0, l.P) && pos < d.caret {
			d.caret += len(l.P)
			d.anchor += len(l.P)
		}
	case engine.MsgDeleteRange:
		pos := clamp(int(w.N), 0, len(d.text))
		n := clamp(int(l.N), 0, len(d.text)-pos)
		d.replace(pos, n, nil)
		d.caret = clamp(d.caret, 0, len(d.text))
		d.anchor = clamp(d.anchor, 0, len(d.text))
	case engine.MsgClearAll:
		d.replace(0, len(d.text), nil)
		d.caret, d.anchor = 0, 0
	case engine.MsgGetLine:
		start, end, ok := d.lineBounds(int(w.N), true)
		if !ok {
			return 0
		}
		if l.P == nil {
			return int64(end - start)
		}
		return int64(copy(l.P, d.text[start:end]))
	case engine.MsgGetLineCount:
		return int64(bytes.Count(d.text, []byte{'\n'}) + 1)
	case engine.MsgLineLength:
		start, end, ok := d.lineBounds(int(w.N), true)
		if !ok {
			return 0
		}
		return int64(end - start)
	case engine.MsgGetCharAt:
		pos := int(w.N)
		if pos < 0 || pos >= len(d.text) {
			return 0
		}
		return int64(d.text[pos])
	case engine.MsgGetSelText:
		start, end := d.selection()
		if l.P == nil {
			return int64(end - start)
		}
		return int64(copy(l.P, d.text[start:end]))
	case engine.MsgReplaceSel:
		start, end := d.selection()
		if d.replace(start, end-start, l.P) {
			d.caret = start + len(l.P)
			d.anchor = d.caret
		}
	case engine.MsgGetCurrentPos:
		return int64(d.caret)
	case engine.MsgSetCurrentPos:
		d.caret = clamp(int(w.N), 0, len(d.text))
	case engine.MsgGetAnchor:
		return int64(d.anchor)
	case engine.MsgSetAnchor:
		d.anchor = clamp(int(w.N), 0, len(d.text))
	case engine.MsgSetSel:
		d.anchor = d.position(int(w.N))
		d.caret = d.position(int(l.N))
	case engine.MsgSelectAll:
		d.anchor, d.caret = 0, len(d.text)
	case engine.MsgGotoPos:
		d.caret = clamp(int(w.N), 0, len(d.text))
		d.anchor = d.caret
	case engine.MsgGotoLine:
		start, _, ok := d.lineBounds(int(w.N), false)
		if !ok {
			start = len(d.text)
			if w.N < 0 {
				start = 0
			}
		}
		d.caret, d.anchor = start, start
	case engine.MsgLineFromPosition:
		pos := clamp(int(w.N), 0, len(d.text))
		return int64(bytes.Count(d.text[:pos], []byte{'\n'}))
	case engine.MsgPositionFromLine:
		start, _, ok := d.lineBounds(int(w.N), false)
		if !ok {
			return -1
		}
		return int64(start)
	case engine.MsgGetColumn:
		pos := clamp(int(w.N), 0, len(d.text))
		return int64(pos - (bytes.LastIndexByte(d.text[:pos], '\n') + 1))
	case engine.MsgGetReadOnly:
		return boolWord(d.readOnly)
	case engine.MsgSetReadOnly:
		d.readOnly = w.N != 0
	case engine.MsgGetModify:
		return boolWord(d.savePoint != len(d.undo))
	case engine.MsgSetSavePoint:
		d.savePoint = len(d.undo)
	case engine.MsgUndo:
		d.undoEdit()
	case engine.MsgRedo:
		d.redoEdit()
	case engine.MsgCanUndo:
		return boolWord(len(d.undo) > 0 && !d.readOnly)
	case engine.MsgCanRedo:
		return boolWord(len(d.redo) > 0 && !d.readOnly)
	case engine.MsgEmptyUndoBuffer:
		d.undo, d.redo = nil, nil
		d.savePoint = 0
	case engine.MsgStyleGetFore:
		return d.style(w.N).fore
	case engine.MsgStyleSetFore:
		d.style(w.N).fore = l.N
	case engine.MsgStyleGetBack:
		return d.style(w.N).back
	case engine.MsgStyleSetBack:
		d.style(w.N).back = l.N
	case engine.MsgSetTargetRange:
		d.targetStart = clamp(int(w.N), 0, len(d.text))
		d.targetEnd = max(d.position(int(l.N)), d.targetStart)
	case engine.MsgGetTargetStart:
		return int64(d.targetStart)
	case engine.MsgGetTargetEnd:
		return int64(d.targetEnd)
	case engine.MsgGetTargetText:
		if l.P == nil {
			return int64(d.targetEnd - d.targetStart)
		}
		return int64(copy(l.P, d.text[d.targetStart:d.targetEnd]))
	case engine.MsgReplaceTarget:
		n := clamp(int(w.N), 0, len(l.P))
		if d.replace(d.targetStart, d.targetEnd-d.targetStart, l.P[:n]) {
			d.targetEnd = d.targetStart + n
		}
		return int64(n)
	case engine.MsgSearchInTarget:
		n := clamp(int(w.N), 0, len(l.P))
		i := bytes.Index(d.text[d.targetStart:d.targetEnd], l.P[:n])
		if i < 0 {
			return -1
		}
		d.targetStart += i
		d.targetEnd = d.targetStart + n
		return int64(d.targetStart)
	}
	return 0
}

// replace swaps n bytes at pos for ins and records the edit.
// It reports whether the document changed.
func (d *document) replace(pos, n int, ins []byte) bool {
	if d.readOnly || (n == 0 && len(ins) == 0) {
		return false
	}
	ed := edit{
		pos:      pos,
		removed:  bytes.Clone(d.text[pos : pos+n]),
		inserted: bytes.Clone(ins),
	}
	d.apply(ed.pos, len(ed.removed), ed.inserted)
	if d.savePoint > len(d.undo) {
		d.savePoint = -1
	}
	d.undo = append(d.undo, ed)
	d.redo = nil
	return true
}

func (d *document) apply(pos, n int, ins []byte) {
	text := make([]byte, 0, len(d.text)-n+len(ins))
	text = append(text, d.text[:pos]...)
	text = append(text, ins...)
	d.text = append(text, d.text[pos+n:]...)
}

func (d *document) undoEdit() {
	if d.readOnly || len(d.undo) == 0 {
		return
	}
	ed := d.undo[len(d.undo)-1]
	d.undo = d.undo[:len(d.undo)-1]
	d.apply(ed.pos, len(ed.inserted), ed.removed)
	d.redo = append(d.redo, ed)
	d.caret = ed.pos + len(ed.removed)
	d.anchor = d.caret
}

func (d *document) redoEdit() {
	if d.readOnly || len(d.redo) == 0 {
		return
	}
	ed := d.redo[len(d.redo)-1]
	d.redo = d.redo[:len(d.redo)-1]
	d.apply(ed.pos, len(ed.removed), ed.inserted)
	d.undo = append(d.undo, ed)
	d.caret = ed.pos + len(ed.inserted)
	d.anchor = d.caret
}

func (d *document) selection() (int, int) {
	start, end := d.anchor, d.caret
	if start > end {
		start, end = end, start
	}
	return clamp(start, 0, len(d.text)), clamp(end, 0, len(d.text))
}

// position clamps pos into the text; negative values mean the end.
func (d *document) position(pos int) int {
	if pos < 0 {
		return len(d.text)
	}
	return clamp(pos, 0, len(d.text))
}

// lineBounds returns the byte range of line. withEOL includes the newline.
func (d *document) lineBounds(line int, withEOL bool) (int, int, bool) {
	if line < 0 {
		return 0, 0, false
	}
	start := 0
	for i := 0; i < line; i++ {
		j := bytes.IndexByte(d.text[start:], '\n')
		if j < 0 {
			return 0, 0, false
		}
		start += j + 1
	}
	end := len(d.text)
	if j := bytes.IndexByte(d.text[start:], '\n'); j >= 0 {
		end = start + j
		if withEOL {
			end++
		}
	}
	return start, end, true
}

func (d *document) style(n int64) *style {
	s, ok := d.styles[n]
	if !ok {
		s = &style{}
		d.styles[n] = s
	}
	return s
}

// copyTerminated copies at most limit-1 bytes of src into dst followed by a
// NUL byte and returns the number of text bytes copied.
func copyTerminated(dst, src []byte, limit int) int64 {
	n := min(len(src), limit-1, len(dst)-1)
	if n < 0 {
		return 0
	}
	copy(dst, src[:n])
	dst[n] = 0
	return int64(n)
}

func boolWord(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
