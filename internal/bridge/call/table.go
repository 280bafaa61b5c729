package call

import (
	"sort"

	"github.com/dshills/lumen/internal/engine"
)

// Op identifies an entry of the operation table.
type Op int

// EntryKind distinguishes methods from properties.
type EntryKind uint8

const (
	// Function entries are called as methods: buffer:undo().
	Function EntryKind = iota
	// Property entries are read and assigned: buffer.current_pos = 3.
	Property
)

// Entry is one row of the operation table.
//
// Functions use Get only. Properties use Get for reads and Set for
// assignments; either may be absent (Msg == 0) for write-only or read-only
// properties. Indexed properties take their index as the first parameter
// of both descriptors: buffer.style_fore[style] = color.
type Entry struct {
	Name    string
	Kind    EntryKind
	Get     Descriptor
	Set     Descriptor
	Indexed bool
}

// Readable reports whether the property has a getter.
func (e Entry) Readable() bool { return e.Get.Msg != 0 }

// Writable reports whether the property has a setter.
func (e Entry) Writable() bool { return e.Set.Msg != 0 }

// Operation ids. The order matches Table.
const (
	OpGetText Op = iota
	OpSetText
	OpAppendText
	OpInsertText
	OpDeleteRange
	OpClearAll
	OpGetLine
	OpLineLength
	OpGetSelText
	OpReplaceSel
	OpSetSel
	OpSelectAll
	OpGotoPos
	OpGotoLine
	OpLineFromPosition
	OpPositionFromLine
	OpUndo
	OpRedo
	OpCanUndo
	OpCanRedo
	OpEmptyUndoBuffer
	OpSetSavePoint
	OpSetTargetRange
	OpReplaceTarget
	OpSearchInTarget
	OpAssignCmdKey
	OpClearCmdKey
	OpGetCmdKey

	OpLength
	OpText
	OpLineCount
	OpCurrentPos
	OpAnchor
	OpSelText
	OpFirstVisibleLine
	OpXOffset
	OpZoom
	OpReadOnly
	OpModify
	OpTargetStart
	OpTargetEnd
	OpTargetText
	OpCharAt
	OpColumn
	OpStyleFore
	OpStyleBack

	opCount
)

func fn(name string, msg engine.Msg, ret, p1, p2 ParamKind) Entry {
	return Entry{Name: name, Kind: Function, Get: Descriptor{msg, ret, p1, p2}}
}

func prop(name string, get, set Descriptor) Entry {
	return Entry{Name: name, Kind: Property, Get: get, Set: set}
}

func indexed(name string, get, set Descriptor) Entry {
	return Entry{Name: name, Kind: Property, Get: get, Set: set, Indexed: true}
}

// Table is the static operation table, indexed by Op.
var Table = [opCount]Entry{
	OpGetText:          fn("get_text", engine.MsgGetText, Void, Length, StringRet),
	OpSetText:          fn("set_text", engine.MsgSetText, Void, Void, String),
	OpAppendText:       fn("append_text", engine.MsgAppendText, Void, Length, String),
	OpInsertText:       fn("insert_text", engine.MsgInsertText, Void, Index, String),
	OpDeleteRange:      fn("delete_range", engine.MsgDeleteRange, Void, Index, Int),
	OpClearAll:         fn("clear_all", engine.MsgClearAll, Void, Void, Void),
	OpGetLine:          fn("get_line", engine.MsgGetLine, Void, Index, StringRet),
	OpLineLength:       fn("line_length", engine.MsgLineLength, Int, Index, Void),
	OpGetSelText:       fn("get_sel_text", engine.MsgGetSelText, Int, Void, StringRet),
	OpReplaceSel:       fn("replace_sel", engine.MsgReplaceSel, Void, Void, String),
	OpSetSel:           fn("set_sel", engine.MsgSetSel, Void, Index, Index),
	OpSelectAll:        fn("select_all", engine.MsgSelectAll, Void, Void, Void),
	OpGotoPos:          fn("goto_pos", engine.MsgGotoPos, Void, Index, Void),
	OpGotoLine:         fn("goto_line", engine.MsgGotoLine, Void, Index, Void),
	OpLineFromPosition: fn("line_from_position", engine.MsgLineFromPosition, Index, Index, Void),
	OpPositionFromLine: fn("position_from_line", engine.MsgPositionFromLine, Index, Index, Void),
	OpUndo:             fn("undo", engine.MsgUndo, Void, Void, Void),
	OpRedo:             fn("redo", engine.MsgRedo, Void, Void, Void),
	OpCanUndo:          fn("can_undo", engine.MsgCanUndo, Bool, Void, Void),
	OpCanRedo:          fn("can_redo", engine.MsgCanRedo, Bool, Void, Void),
	OpEmptyUndoBuffer:  fn("empty_undo_buffer", engine.MsgEmptyUndoBuffer, Void, Void, Void),
	OpSetSavePoint:     fn("set_save_point", engine.MsgSetSavePoint, Void, Void, Void),
	OpSetTargetRange:   fn("set_target_range", engine.MsgSetTargetRange, Void, Index, Index),
	OpReplaceTarget:    fn("replace_target", engine.MsgReplaceTarget, Int, Length, String),
	OpSearchInTarget:   fn("search_in_target", engine.MsgSearchInTarget, Index, Length, String),
	OpAssignCmdKey:     fn("assign_cmd_key", engine.MsgAssignCmdKey, Void, KeyMod, Int),
	OpClearCmdKey:      fn("clear_cmd_key", engine.MsgClearCmdKey, Void, KeyMod, Void),
	OpGetCmdKey:        fn("get_cmd_key", engine.MsgGetCmdKey, Int, KeyMod, Void),

	OpLength:    prop("length", Descriptor{engine.MsgGetLength, Int, Void, Void}, Descriptor{}),
	OpText:      prop("text", Descriptor{engine.MsgGetText, Void, Length, StringRet}, Descriptor{engine.MsgSetText, Void, Void, String}),
	OpLineCount: prop("line_count", Descriptor{engine.MsgGetLineCount, Int, Void, Void}, Descriptor{}),
	OpCurrentPos: prop("current_pos",
		Descriptor{engine.MsgGetCurrentPos, Index, Void, Void},
		Descriptor{engine.MsgSetCurrentPos, Void, Index, Void}),
	OpAnchor: prop("anchor",
		Descriptor{engine.MsgGetAnchor, Index, Void, Void},
		Descriptor{engine.MsgSetAnchor, Void, Index, Void}),
	OpSelText: prop("sel_text", Descriptor{engine.MsgGetSelText, Void, Void, StringRet}, Descriptor{}),
	OpFirstVisibleLine: prop("first_visible_line",
		Descriptor{engine.MsgGetFirstVisibleLine, Index, Void, Void},
		Descriptor{engine.MsgSetFirstVisibleLine, Void, Index, Void}),
	OpXOffset: prop("x_offset",
		Descriptor{engine.MsgGetXOffset, Int, Void, Void},
		Descriptor{engine.MsgSetXOffset, Void, Int, Void}),
	OpZoom: prop("zoom",
		Descriptor{engine.MsgGetZoom, Int, Void, Void},
		Descriptor{engine.MsgSetZoom, Void, Int, Void}),
	OpReadOnly: prop("read_only",
		Descriptor{engine.MsgGetReadOnly, Bool, Void, Void},
		Descriptor{engine.MsgSetReadOnly, Void, Bool, Void}),
	OpModify:      prop("modify", Descriptor{engine.MsgGetModify, Bool, Void, Void}, Descriptor{}),
	OpTargetStart: prop("target_start", Descriptor{engine.MsgGetTargetStart, Index, Void, Void}, Descriptor{}),
	OpTargetEnd:   prop("target_end", Descriptor{engine.MsgGetTargetEnd, Index, Void, Void}, Descriptor{}),
	OpTargetText:  prop("target_text", Descriptor{engine.MsgGetTargetText, Void, Void, StringRet}, Descriptor{}),
	OpCharAt:      indexed("char_at", Descriptor{engine.MsgGetCharAt, Int, Index, Void}, Descriptor{}),
	OpColumn:      indexed("column", Descriptor{engine.MsgGetColumn, Index, Index, Void}, Descriptor{}),
	OpStyleFore: indexed("style_fore",
		Descriptor{engine.MsgStyleGetFore, Color, Int, Void},
		Descriptor{engine.MsgStyleSetFore, Void, Int, Color}),
	OpStyleBack: indexed("style_back",
		Descriptor{engine.MsgStyleGetBack, Color, Int, Void},
		Descriptor{engine.MsgStyleSetBack, Void, Int, Color}),
}

// names maps entry names to their ops. Built once from Table.
var names = func() map[string]Op {
	m := make(map[string]Op, len(Table))
	for op, e := range Table {
		m[e.Name] = Op(op)
	}
	return m
}()

// Lookup returns the op for name.
func Lookup(name string) (Op, bool) {
	op, ok := names[name]
	return op, ok
}

// Names returns all entry names of the given kind, sorted.
func Names(kind EntryKind) []string {
	var out []string
	for _, e := range Table {
		if e.Kind == kind {
			out = append(out, e.Name)
		}
	}
	sort.Strings(out)
	return out
}
