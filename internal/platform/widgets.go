package platform

import (
	"fmt"
	"slices"

	"github.com/dshills/lumen/internal/bridge"
)

// Entry is the state of a single-line text entry.
type Entry struct {
	Text    string
	History []string
	Focused bool
}

// AddHistory appends text to the entry's history, skipping repeats of the
// latest item.
func (e *Entry) AddHistory(text string) {
	if text == "" {
		return
	}
	if n := len(e.History); n > 0 && e.History[n-1] == text {
		return
	}
	e.History = append(e.History, text)
}

// Find box option and label names.
var (
	findOptions = []string{"match_case", "whole_word", "regex", "in_files"}
	findLabels  = map[string]string{
		"find_label":       "Find:",
		"replace_label":    "Replace:",
		"find_next":        "Find Next",
		"find_prev":        "Find Prev",
		"replace":          "Replace",
		"replace_all":      "Replace All",
		"match_case_label": "Match case",
		"whole_word_label": "Whole word",
		"regex_label":      "Regex",
		"in_files_label":   "In files",
	}
)

// FindBox is the find/replace widget state.
type FindBox struct {
	Find    Entry
	Replace Entry
	Visible bool

	options map[string]bool
	labels  map[string]string
}

// NewFindBox creates a hidden find box with default labels.
func NewFindBox() *FindBox {
	f := &FindBox{
		options: make(map[string]bool, len(findOptions)),
		labels:  make(map[string]string, len(findLabels)),
	}
	for _, o := range findOptions {
		f.options[o] = false
	}
	for k, v := range findLabels {
		f.labels[k] = v
	}
	return f
}

// Option returns a named toggle.
func (f *FindBox) Option(name string) (bool, error) {
	on, ok := f.options[name]
	if !ok {
		return false, fmt.Errorf("%w: unknown find option %q", bridge.ErrArgument, name)
	}
	return on, nil
}

// SetOption sets a named toggle.
func (f *FindBox) SetOption(name string, on bool) error {
	if _, ok := f.options[name]; !ok {
		return fmt.Errorf("%w: unknown find option %q", bridge.ErrArgument, name)
	}
	f.options[name] = on
	return nil
}

// Label returns a named label.
func (f *FindBox) Label(name string) (string, error) {
	l, ok := f.labels[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown find label %q", bridge.ErrArgument, name)
	}
	return l, nil
}

// SetLabel sets a named label.
func (f *FindBox) SetLabel(name, text string) error {
	if _, ok := f.labels[name]; !ok {
		return fmt.Errorf("%w: unknown find label %q", bridge.ErrArgument, name)
	}
	f.labels[name] = text
	return nil
}

// IsFindOption reports whether name is a find box toggle.
func IsFindOption(name string) bool { return slices.Contains(findOptions, name) }

// IsFindLabel reports whether name is a find box label.
func IsFindLabel(name string) bool {
	_, ok := findLabels[name]
	return ok
}

// CommandEntryBox is the command entry widget state. Its text lives in the
// distinguished command-entry document; the box tracks presentation only.
type CommandEntryBox struct {
	Visible bool
	Focused bool
	Height  int // lines
	History []string
}
