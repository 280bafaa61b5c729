package term

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/dshills/lumen/internal/bridge"
	"github.com/dshills/lumen/internal/bridge/pane"
	"github.com/dshills/lumen/internal/platform"
)

// modal is the state of an open dialog.
type modal struct {
	opts    platform.DialogOptions
	buttons []string
	button  int // 0-based focused button
	input   []rune
	query   []rune
	rows    [][]string
	matches []int // 0-based row indexes passing the filter
	cursor  int   // index into matches
	percent int
	note    string
}

func newModal(opts platform.DialogOptions) *modal {
	m := &modal{opts: opts, buttons: opts.Buttons}
	if len(m.buttons) == 0 {
		m.buttons = []string{"OK"}
	}
	switch opts.Kind {
	case platform.InputDialog:
		m.input = []rune(opts.Value)
	case platform.OpenFileDialog, platform.SaveFileDialog:
		m.input = []rune(filepath.Join(opts.Dir, opts.File))
	case platform.ListDialog:
		m.rows = opts.Rows()
		m.filter()
	}
	return m
}

// filter recomputes the rows matching the query on the search column.
func (m *modal) filter() {
	col := max(m.opts.SearchColumn, 1) - 1
	q := strings.ToLower(string(m.query))
	m.matches = m.matches[:0]
	for i, row := range m.rows {
		if q == "" || (col < len(row) && strings.Contains(strings.ToLower(row[col]), q)) {
			m.matches = append(m.matches, i)
		}
	}
	m.cursor = min(m.cursor, max(len(m.matches)-1, 0))
}

// key applies a key press. done reports that the dialog closed.
func (m *modal) key(e *tcell.EventKey) (res platform.DialogResult, done bool) {
	switch e.Key() {
	case tcell.KeyEscape:
		return platform.DialogResult{}, true
	case tcell.KeyEnter:
		return m.result(), true
	case tcell.KeyLeft:
		m.button = max(m.button-1, 0)
	case tcell.KeyRight:
		m.button = min(m.button+1, len(m.buttons)-1)
	case tcell.KeyUp:
		m.cursor = max(m.cursor-1, 0)
	case tcell.KeyDown:
		m.cursor = min(m.cursor+1, max(len(m.matches)-1, 0))
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		m.edit(func(s []rune) []rune {
			if len(s) == 0 {
				return s
			}
			return s[:len(s)-1]
		})
	case tcell.KeyRune:
		r := e.Rune()
		m.edit(func(s []rune) []rune { return append(s, r) })
	}
	return platform.DialogResult{}, false
}

func (m *modal) edit(fn func([]rune) []rune) {
	switch m.opts.Kind {
	case platform.ListDialog:
		m.query = fn(m.query)
		m.filter()
	case platform.InputDialog, platform.OpenFileDialog, platform.SaveFileDialog:
		m.input = fn(m.input)
	}
}

func (m *modal) result() platform.DialogResult {
	res := platform.DialogResult{Button: m.button + 1}
	switch m.opts.Kind {
	case platform.InputDialog:
		res.Text = string(m.input)
	case platform.OpenFileDialog, platform.SaveFileDialog:
		path := strings.TrimSpace(string(m.input))
		if path == "" {
			return platform.DialogResult{}
		}
		if m.opts.Multiple {
			res.Files = strings.Fields(path)
		} else {
			res.Files = []string{path}
		}
	case platform.ListDialog:
		if len(m.matches) == 0 {
			return platform.DialogResult{}
		}
		res.Rows = []int{m.matches[m.cursor] + 1}
	}
	return res
}

// lines returns the dialog body.
func (m *modal) lines() []string {
	var out []string
	if m.opts.Text != "" {
		out = append(out, strings.Split(m.opts.Text, "\n")...)
	}
	switch m.opts.Kind {
	case platform.InputDialog, platform.OpenFileDialog, platform.SaveFileDialog:
		out = append(out, "> "+string(m.input))
	case platform.ListDialog:
		out = append(out, "/ "+string(m.query))
		if len(m.opts.Columns) > 0 {
			out = append(out, "  "+strings.Join(m.opts.Columns, " | "))
		}
		for i, idx := range m.matches {
			mark := "  "
			if i == m.cursor {
				mark = "> "
			}
			out = append(out, mark+strings.Join(m.rows[idx], " | "))
		}
	case platform.ProgressDialog:
		bar := strings.Repeat("#", m.percent/5) + strings.Repeat(".", 20-m.percent/5)
		out = append(out, fmt.Sprintf("[%s] %3d%%", bar, m.percent))
		if m.note != "" {
			out = append(out, m.note)
		}
	}
	return out
}

// Dialog shows a modal dialog and runs a nested event loop until it is
// answered. Progress dialogs poll their work every frame.
func (a *Adapter) Dialog(opts platform.DialogOptions) (platform.DialogResult, error) {
	if err := opts.Validate(); err != nil {
		return platform.DialogResult{}, err
	}
	if a.events == nil {
		return platform.DialogResult{}, fmt.Errorf("%w: %v", bridge.ErrInitialization, errNotRunning)
	}

	m := newModal(opts)
	defer a.Repaint()
	for {
		if opts.Kind == platform.ProgressDialog {
			percent, note, done := opts.Work()
			m.percent, m.note = min(max(percent, 0), 100), note
			if done {
				return platform.DialogResult{Button: 1}, nil
			}
		}
		a.draw()
		a.drawModal(m)

		if opts.Kind == platform.ProgressDialog {
			select {
			case ev, ok := <-a.events:
				if !ok {
					return platform.DialogResult{}, nil
				}
				if k, isKey := ev.(*tcell.EventKey); isKey && k.Key() == tcell.KeyEscape {
					return platform.DialogResult{}, nil
				}
			case <-a.quit:
				return platform.DialogResult{}, nil
			case <-time.After(frameTime):
			}
			continue
		}

		select {
		case ev, ok := <-a.events:
			if !ok {
				return platform.DialogResult{}, nil
			}
			switch e := ev.(type) {
			case *tcell.EventKey:
				if res, done := m.key(e); done {
					return res, nil
				}
			case *tcell.EventResize:
				a.width, a.height = e.Size()
				a.screen.Sync()
			}
		case <-a.quit:
			return platform.DialogResult{}, nil
		}
	}
}

// drawModal draws m centered over the current screen.
func (a *Adapter) drawModal(m *modal) {
	body := m.lines()
	var buttons strings.Builder
	for i, b := range m.buttons {
		if i == m.button {
			buttons.WriteString("[" + b + "] ")
		} else {
			buttons.WriteString(" " + b + "  ")
		}
	}

	w := max(runewidth.StringWidth(m.opts.Title)+4, runewidth.StringWidth(buttons.String())+2)
	for _, l := range body {
		w = max(w, runewidth.StringWidth(l)+2)
	}
	w = min(w, a.width)
	h := min(len(body)+3, a.height)

	r := pane.Rect{Top: (a.height - h) / 2, Left: (a.width - w) / 2}
	r.Bottom, r.Right = r.Top+h, r.Left+w
	a.fill(r, a.theme.dialog)

	a.drawText(r.Left+1, r.Top, r.Right, " "+m.opts.Title+" ", a.theme.dialog.Bold(true))
	for i, l := range body {
		y := r.Top + 1 + i
		if y >= r.Bottom-1 {
			break
		}
		style := a.theme.dialog
		if strings.HasPrefix(l, "> ") && m.opts.Kind == platform.ListDialog {
			style = a.theme.selection
		}
		a.drawText(r.Left+1, y, r.Right-1, l, style)
	}
	if m.opts.Kind != platform.ProgressDialog {
		a.drawText(r.Left+1, r.Bottom-1, r.Right-1, buttons.String(), a.theme.dialog)
	}
	a.screen.Show()
}
