// Package engine defines the message-passing contract lumen uses to reach
// the text engine that stores documents and renders views.
//
// The engine is a black box. The bridge never inspects its internals; it
// creates and destroys documents and views, and sends numbered messages with
// two pointer-sized parameters, exactly like a native editing component.
//
// Positions, lines and indexes on this side of the contract are 0-based.
// Conversion to the 1-based convention scripts see happens in the typed
// call dispatcher.
package engine

import "strconv"

// Identity is an opaque, stable handle to a native document or view.
// The engine owns the object it refers to. Zero is never a valid identity.
type Identity uintptr

// None is the zero identity.
const None Identity = 0

// String returns a short debugging representation.
func (id Identity) String() string {
	return "0x" + strconv.FormatUint(uint64(id), 16)
}

// Word is one pointer-sized message parameter. A parameter is either a plain
// integer (N) or a byte buffer (P). When P is non-nil the engine reads from
// it (input strings) or writes into it (output buffers).
type Word struct {
	N int64
	P []byte
}

// IntWord wraps an integer parameter.
func IntWord(n int64) Word { return Word{N: n} }

// BufWord wraps a byte buffer parameter.
func BufWord(p []byte) Word { return Word{N: int64(len(p)), P: p} }

// Msg identifies one engine operation.
type Msg int

// Engine is the native text engine.
//
// Send never fails at the transport level. Semantic failures are conveyed
// through the return value, as with any native message-based component.
type Engine interface {
	// Send delivers msg to the document or view identified by target.
	Send(target Identity, msg Msg, wParam, lParam Word) int64

	// CreateDocument allocates a new empty document.
	CreateDocument() Identity

	// ReleaseDocument destroys a document. Views still pointing at it are
	// left dangling; callers retarget them first.
	ReleaseDocument(doc Identity)

	// CreateView allocates a view displaying doc.
	CreateView(doc Identity) Identity

	// DestroyView destroys a view.
	DestroyView(view Identity)
}

// Messages understood by every engine implementation.
//
// Messages that fill an output buffer follow the probe protocol: sending them
// with a nil lParam buffer returns the number of bytes required. Messages
// whose wParam is a length additionally reserve (and write) one trailing NUL
// byte, which is included in the probed size.
const (
	MsgGetLength Msg = 2000 + iota
	MsgGetText
	MsgSetText
	MsgAppendText
	MsgInsertText
	MsgDeleteRange
	MsgClearAll
	MsgGetLine
	MsgGetLineCount
	MsgLineLength
	MsgGetCharAt
	MsgGetSelText
	MsgReplaceSel
	MsgGetCurrentPos
	MsgSetCurrentPos
	MsgGetAnchor
	MsgSetAnchor
	MsgSetSel
	MsgSelectAll
	MsgGotoPos
	MsgGotoLine
	MsgLineFromPosition
	MsgPositionFromLine
	MsgGetColumn
	MsgGetFirstVisibleLine
	MsgSetFirstVisibleLine
	MsgGetXOffset
	MsgSetXOffset
	MsgGetZoom
	MsgSetZoom
	MsgGetReadOnly
	MsgSetReadOnly
	MsgGetModify
	MsgSetSavePoint
	MsgUndo
	MsgRedo
	MsgCanUndo
	MsgCanRedo
	MsgEmptyUndoBuffer
	MsgStyleGetFore
	MsgStyleSetFore
	MsgStyleGetBack
	MsgStyleSetBack
	MsgAssignCmdKey
	MsgClearCmdKey
	MsgGetCmdKey
	MsgSetTargetRange
	MsgGetTargetStart
	MsgGetTargetEnd
	MsgGetTargetText
	MsgReplaceTarget
	MsgSearchInTarget
	MsgGetDocPointer
	MsgSetDocPointer
)
