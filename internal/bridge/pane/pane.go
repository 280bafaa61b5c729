// Package pane implements the pane tree: a binary tree of splits whose
// leaves are views.
//
// Every leaf holds exactly one view and every view appears in at most one
// leaf. The tree always has at least one leaf; the last view cannot be
// unsplit away.
package pane

import (
	"errors"
	"fmt"

	"github.com/dshills/lumen/internal/engine"
)

// Pane tree errors.
var (
	ErrUnknownView   = errors.New("view not in pane tree")
	ErrDuplicateView = errors.New("view already in pane tree")
)

// node is either a leaf (view != None) or a split with two children.
type node struct {
	parent   *node
	view     engine.Identity
	children [2]*node
	vertical bool
	size     int // size of the first child in cells; <0 means half
}

func (n *node) leaf() bool { return n.children[0] == nil }

// Info describes one pane. For a split, Children holds the two sub-panes.
type Info struct {
	Split    bool
	Vertical bool
	Size     int
	View     engine.Identity
	Children [2]*Info
}

// Rect is a screen rectangle. Bottom and Right are exclusive.
type Rect struct {
	Top, Left, Bottom, Right int
}

// Width returns the width of the rectangle.
func (r Rect) Width() int { return max(r.Right-r.Left, 0) }

// Height returns the height of the rectangle.
func (r Rect) Height() int { return max(r.Bottom-r.Top, 0) }

// Tree is a pane tree. The zero value is not usable; use New.
type Tree struct {
	root   *node
	leaves map[engine.Identity]*node
}

// New creates a tree holding the single view.
func New(view engine.Identity) *Tree {
	n := &node{view: view, size: -1}
	return &Tree{root: n, leaves: map[engine.Identity]*node{view: n}}
}

// Split replaces the leaf showing view with a split whose first child is
// view and whose second child is newView. Vertical splits place the panes
// side by side.
func (t *Tree) Split(view, newView engine.Identity, vertical bool) error {
	leaf, ok := t.leaves[view]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownView, view)
	}
	if _, dup := t.leaves[newView]; dup || newView == engine.None {
		return fmt.Errorf("%w: %s", ErrDuplicateView, newView)
	}

	first := &node{view: view, size: -1}
	second := &node{view: newView, size: -1}
	leaf.view = engine.None
	leaf.vertical = vertical
	leaf.size = -1
	leaf.children = [2]*node{first, second}
	first.parent, second.parent = leaf, leaf

	t.leaves[view] = first
	t.leaves[newView] = second
	return nil
}

// Unsplit collapses the split containing view so view takes its place.
// It returns the views of the removed sibling subtree, or false when view
// is not inside a split.
func (t *Tree) Unsplit(view engine.Identity) ([]engine.Identity, bool) {
	leaf, ok := t.leaves[view]
	if !ok || leaf.parent == nil {
		return nil, false
	}

	parent := leaf.parent
	sibling := parent.children[0]
	if sibling == leaf {
		sibling = parent.children[1]
	}

	removed := collect(sibling, nil)
	for _, v := range removed {
		delete(t.leaves, v)
	}

	parent.children = [2]*node{}
	parent.view = view
	parent.size = -1
	parent.vertical = false
	t.leaves[view] = parent
	return removed, true
}

func collect(n *node, out []engine.Identity) []engine.Identity {
	if n.leaf() {
		return append(out, n.view)
	}
	out = collect(n.children[0], out)
	return collect(n.children[1], out)
}

// Contains reports whether view is a leaf of the tree.
func (t *Tree) Contains(view engine.Identity) bool {
	_, ok := t.leaves[view]
	return ok
}

// Top returns the description of the whole tree.
func (t *Tree) Top() *Info {
	return describe(t.root)
}

// Info returns the pane containing view: the split view belongs to, or the
// leaf itself when view fills the window.
func (t *Tree) Info(view engine.Identity) (*Info, error) {
	leaf, ok := t.leaves[view]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownView, view)
	}
	if leaf.parent == nil {
		return describe(leaf), nil
	}
	return describe(leaf.parent), nil
}

func describe(n *node) *Info {
	if n.leaf() {
		return &Info{View: n.view, Size: n.size}
	}
	return &Info{
		Split:    true,
		Vertical: n.vertical,
		Size:     n.size,
		Children: [2]*Info{describe(n.children[0]), describe(n.children[1])},
	}
}

// SetSize sets the divider position of the split containing view.
func (t *Tree) SetSize(view engine.Identity, size int) error {
	leaf, ok := t.leaves[view]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownView, view)
	}
	if leaf.parent == nil {
		return nil
	}
	leaf.parent.size = size
	return nil
}

// Leaves returns the views in left-to-right, top-to-bottom order.
func (t *Tree) Leaves() []engine.Identity {
	return collect(t.root, nil)
}

// Len returns the number of views in the tree.
func (t *Tree) Len() int { return len(t.leaves) }

// Validate checks the structural invariants: every split has two children
// pointing back at it, leaves are unique and the index matches the tree.
func (t *Tree) Validate() error {
	if t.root == nil {
		return errors.New("pane tree has no root")
	}
	if t.root.parent != nil {
		return errors.New("pane tree root has a parent")
	}
	seen := make(map[engine.Identity]bool)
	if err := validate(t.root, seen); err != nil {
		return err
	}
	if len(seen) != len(t.leaves) {
		return fmt.Errorf("pane tree index has %d views, tree has %d", len(t.leaves), len(seen))
	}
	for v, n := range t.leaves {
		if !seen[v] || n.view != v {
			return fmt.Errorf("pane tree index entry %s is stale", v)
		}
	}
	return nil
}

func validate(n *node, seen map[engine.Identity]bool) error {
	if n.leaf() {
		if n.children[1] != nil {
			return errors.New("pane has a second child but no first")
		}
		if n.view == engine.None {
			return errors.New("leaf pane without a view")
		}
		if seen[n.view] {
			return fmt.Errorf("%w: %s", ErrDuplicateView, n.view)
		}
		seen[n.view] = true
		return nil
	}
	if n.view != engine.None {
		return fmt.Errorf("split pane also holds view %s", n.view)
	}
	for _, c := range n.children {
		if c == nil {
			return errors.New("split pane missing a child")
		}
		if c.parent != n {
			return errors.New("pane child does not point back at its parent")
		}
		if err := validate(c, seen); err != nil {
			return err
		}
	}
	return nil
}

// Layout assigns a rectangle to every view, dividing area by the split
// sizes. Each split reserves one cell for its divider.
func (t *Tree) Layout(area Rect) map[engine.Identity]Rect {
	out := make(map[engine.Identity]Rect, len(t.leaves))
	layout(t.root, area, out)
	return out
}

func layout(n *node, r Rect, out map[engine.Identity]Rect) {
	if n.leaf() {
		out[n.view] = r
		return
	}
	a, _, b := n.divide(r)
	layout(n.children[0], a, out)
	layout(n.children[1], b, out)
}

// divide splits r into the first child's area, the divider and the second
// child's area.
func (n *node) divide(r Rect) (a, d, b Rect) {
	total := r.Height()
	if n.vertical {
		total = r.Width()
	}
	first := n.size
	if first < 0 {
		first = (total - 1) / 2
	}
	first = max(0, min(first, total-1))

	a, d, b = r, r, r
	if n.vertical {
		a.Right = r.Left + first
		d.Left, d.Right = a.Right, min(a.Right+1, r.Right)
		b.Left = d.Right
	} else {
		a.Bottom = r.Top + first
		d.Top, d.Bottom = a.Bottom, min(a.Bottom+1, r.Bottom)
		b.Top = d.Bottom
	}
	return a, d, b
}

// Dividers returns the divider cells of every split, for drawing.
func (t *Tree) Dividers(area Rect) []Rect {
	var out []Rect
	dividers(t.root, area, &out)
	return out
}

func dividers(n *node, r Rect, out *[]Rect) {
	if n.leaf() {
		return
	}
	a, d, b := n.divide(r)
	*out = append(*out, d)
	dividers(n.children[0], a, out)
	dividers(n.children[1], b, out)
}
