package runtime

import (
	"strings"

	"github.com/dshills/lumen/internal/engine"
	"github.com/dshills/lumen/internal/platform"
)

// Content returns up to rows lines of view starting at its first visible
// line, scrolled so the caret stays visible.
func (r *Runtime) Content(view engine.Identity, rows int) platform.ViewContent {
	send := func(msg engine.Msg, w int64) int64 {
		return r.eng.Send(view, msg, engine.IntWord(w), engine.Word{})
	}

	caret := send(engine.MsgGetCurrentPos, 0)
	caretLine := int(send(engine.MsgLineFromPosition, caret))
	first := int(send(engine.MsgGetFirstVisibleLine, 0))
	if rows > 0 {
		switch {
		case caretLine < first:
			first = caretLine
		case caretLine >= first+rows:
			first = caretLine - rows + 1
		}
		send(engine.MsgSetFirstVisibleLine, int64(first))
	}

	c := platform.ViewContent{
		FirstLine:   first,
		CaretLine:   caretLine,
		CaretColumn: int(caret - send(engine.MsgPositionFromLine, int64(caretLine))),
		Modified:    send(engine.MsgGetModify, 0) != 0,
	}
	count := int(send(engine.MsgGetLineCount, 0))
	for line := first; line < count && len(c.Lines) < rows; line++ {
		c.Lines = append(c.Lines, r.lineText(view, line))
	}
	return c
}

// lineText reads one line without its line ending, using the engine's
// probe-then-fill protocol.
func (r *Runtime) lineText(view engine.Identity, line int) string {
	n := r.eng.Send(view, engine.MsgGetLine, engine.IntWord(int64(line)), engine.Word{})
	if n <= 0 {
		return ""
	}
	buf := make([]byte, n)
	n = r.eng.Send(view, engine.MsgGetLine, engine.IntWord(int64(line)), engine.BufWord(buf))
	return strings.TrimRight(string(buf[:n]), "\r\n")
}
