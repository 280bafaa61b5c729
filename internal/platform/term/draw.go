package term

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"

	"github.com/dshills/lumen/internal/bridge/pane"
	"github.com/dshills/lumen/internal/engine"
)

type theme struct {
	text      tcell.Style
	divider   tcell.Style
	tab       tcell.Style
	activeTab tcell.Style
	status    tcell.Style
	widget    tcell.Style
	dialog    tcell.Style
	selection tcell.Style
}

func newTheme(dark bool) theme {
	fg, bg := tcell.ColorSilver, tcell.ColorBlack
	if !dark {
		fg, bg = tcell.ColorBlack, tcell.ColorWhite
	}
	base := tcell.StyleDefault.Foreground(fg).Background(bg)
	return theme{
		text:      base,
		divider:   base.Foreground(tcell.ColorGray),
		tab:       base.Reverse(true),
		activeTab: base.Bold(true),
		status:    base.Reverse(true),
		widget:    base.Foreground(tcell.ColorTeal),
		dialog:    tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorNavy),
		selection: tcell.StyleDefault.Foreground(tcell.ColorNavy).Background(tcell.ColorWhite),
	}
}

// regions splits the screen into its fixed areas. Rectangles that do not
// apply are empty.
type regions struct {
	tabs   pane.Rect
	views  pane.Rect
	find   pane.Rect
	entry  pane.Rect
	status pane.Rect
}

func computeRegions(width, height int, tabs, find bool, entryLines int) regions {
	var r regions
	top, bottom := 0, height
	if height > 0 {
		bottom--
		r.status = pane.Rect{Top: bottom, Left: 0, Bottom: height, Right: width}
	}
	if tabs && bottom > top {
		r.tabs = pane.Rect{Top: 0, Left: 0, Bottom: 1, Right: width}
		top = 1
	}
	if entryLines > 0 {
		n := min(entryLines, max(bottom-top-1, 0))
		r.entry = pane.Rect{Top: bottom - n, Left: 0, Bottom: bottom, Right: width}
		bottom -= n
	}
	if find {
		n := min(2, max(bottom-top-1, 0))
		r.find = pane.Rect{Top: bottom - n, Left: 0, Bottom: bottom, Right: width}
		bottom -= n
	}
	r.views = pane.Rect{Top: top, Left: 0, Bottom: max(bottom, top), Right: width}
	return r
}

func (a *Adapter) regions() regions {
	entryLines := 0
	if a.entry.Visible {
		entryLines = max(a.entry.Height, 1)
	}
	return computeRegions(a.width, a.height, a.tabsVisible && len(a.tabs) > 0, a.find.Visible, entryLines)
}

// draw renders the whole screen.
func (a *Adapter) draw() {
	a.dirty = false
	a.screen.Clear()
	a.fill(pane.Rect{Bottom: a.height, Right: a.width}, a.theme.text)
	a.screen.HideCursor()

	r := a.regions()
	a.drawTabs(r.tabs)
	if a.tree != nil {
		for view, rect := range a.tree.Layout(r.views) {
			a.drawView(view, rect)
		}
		for _, d := range a.tree.Dividers(r.views) {
			a.drawDivider(d)
		}
	}
	a.drawFind(r.find)
	a.drawEntry(r.entry)
	a.drawStatus(r.status)
	a.screen.Show()
}

func (a *Adapter) drawTabs(r pane.Rect) {
	if r.Height() == 0 {
		return
	}
	a.fill(r, a.theme.tab)
	x := r.Left
	for i, label := range a.tabs {
		style := a.theme.tab
		if i+1 == a.selected {
			style = a.theme.activeTab
		}
		x = a.drawText(x, r.Top, r.Right, " "+label+" ", style)
		if x >= r.Right {
			break
		}
	}
}

func (a *Adapter) drawView(view engine.Identity, r pane.Rect) {
	if r.Height() == 0 || r.Width() == 0 {
		return
	}
	content := a.handler.Content(view, r.Height())
	for i, line := range content.Lines {
		if i >= r.Height() {
			break
		}
		a.drawText(r.Left, r.Top+i, r.Right, expandTabs(line), a.theme.text)
	}
	if view != a.focused {
		return
	}
	row := content.CaretLine - content.FirstLine
	if row < 0 || row >= r.Height() {
		return
	}
	col := 0
	if row < len(content.Lines) {
		line := content.Lines[row]
		col = runewidth.StringWidth(expandTabs(line[:min(content.CaretColumn, len(line))]))
	}
	if x := r.Left + col; x < r.Right {
		a.screen.ShowCursor(x, r.Top+row)
	}
}

func (a *Adapter) drawDivider(r pane.Rect) {
	ch := '│'
	if r.Height() == 1 {
		ch = '─'
	}
	for y := r.Top; y < r.Bottom; y++ {
		for x := r.Left; x < r.Right; x++ {
			a.screen.SetContent(x, y, ch, nil, a.theme.divider)
		}
	}
}

func (a *Adapter) drawFind(r pane.Rect) {
	if r.Height() == 0 {
		return
	}
	a.fill(r, a.theme.widget)
	label := func(name string) string {
		l, _ := a.find.Label(name)
		return l
	}
	a.drawText(r.Left, r.Top, r.Right, label("find_label")+" "+a.find.Find.Text, a.theme.widget)
	if r.Height() > 1 {
		var opts []string
		for _, o := range []string{"match_case", "whole_word", "regex", "in_files"} {
			if on, _ := a.find.Option(o); on {
				opts = append(opts, "["+label(o+"_label")+"]")
			}
		}
		line := label("replace_label") + " " + a.find.Replace.Text
		if len(opts) > 0 {
			line += "  " + strings.Join(opts, " ")
		}
		a.drawText(r.Left, r.Top+1, r.Right, line, a.theme.widget)
	}
}

func (a *Adapter) drawEntry(r pane.Rect) {
	if r.Height() == 0 {
		return
	}
	a.fill(r, a.theme.widget)
	a.drawText(r.Left, r.Top, r.Right, ":", a.theme.widget)
}

func (a *Adapter) drawStatus(r pane.Rect) {
	if r.Height() == 0 {
		return
	}
	a.fill(r, a.theme.status)
	a.drawText(r.Left, r.Top, r.Right, a.status, a.theme.status)
	if a.title != "" {
		title := fmt.Sprintf(" %s ", a.title)
		x := r.Right - runewidth.StringWidth(title)
		if x > r.Left+runewidth.StringWidth(a.status) {
			a.drawText(x, r.Top, r.Right, title, a.theme.status)
		}
	}
}

func (a *Adapter) fill(r pane.Rect, style tcell.Style) {
	for y := r.Top; y < r.Bottom; y++ {
		for x := r.Left; x < r.Right; x++ {
			a.screen.SetContent(x, y, ' ', nil, style)
		}
	}
}

// drawText draws s from column x on row y, clipped at right, and returns
// the column after the last cell drawn. Combining runes share the cell of
// their grapheme cluster.
func (a *Adapter) drawText(x, y, right int, s string, style tcell.Style) int {
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		runes := gr.Runes()
		w := gr.Width()
		if w == 0 {
			continue
		}
		if x+w > right {
			break
		}
		a.screen.SetContent(x, y, runes[0], runes[1:], style)
		x += w
	}
	return x
}

const tabWidth = 4

// expandTabs replaces tabs with spaces up to the next tab stop.
func expandTabs(s string) string {
	if !strings.ContainsRune(s, '\t') {
		return s
	}
	var sb strings.Builder
	col := 0
	for _, r := range s {
		if r == '\t' {
			n := tabWidth - col%tabWidth
			sb.WriteString(strings.Repeat(" ", n))
			col += n
			continue
		}
		sb.WriteRune(r)
		col += runewidth.RuneWidth(r)
	}
	return sb.String()
}
