package pane

import (
	"errors"
	"testing"

	"github.com/dshills/lumen/internal/engine"
)

func TestSplitAndUnsplit(t *testing.T) {
	tr := New(1)
	if err := tr.Split(1, 2, true); err != nil {
		t.Fatalf("Split(1, 2) error = %v", err)
	}
	if err := tr.Split(2, 3, false); err != nil {
		t.Fatalf("Split(2, 3) error = %v", err)
	}
	if err := tr.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	leaves := tr.Leaves()
	want := []engine.Identity{1, 2, 3}
	if len(leaves) != len(want) {
		t.Fatalf("Leaves() = %v, want %v", leaves, want)
	}
	for i := range want {
		if leaves[i] != want[i] {
			t.Errorf("Leaves()[%d] = %v, want %v", i, leaves[i], want[i])
		}
	}

	// Unsplitting view 1 removes the whole right-hand subtree.
	removed, ok := tr.Unsplit(1)
	if !ok {
		t.Fatal("Unsplit(1) reported no split")
	}
	if len(removed) != 2 || removed[0] != 2 || removed[1] != 3 {
		t.Errorf("Unsplit(1) removed %v, want [2 3]", removed)
	}
	if tr.Len() != 1 || !tr.Contains(1) {
		t.Errorf("tree after unsplit = %v", tr.Leaves())
	}
	if err := tr.Validate(); err != nil {
		t.Errorf("Validate() after unsplit = %v", err)
	}

	if _, ok := tr.Unsplit(1); ok {
		t.Error("Unsplit of the last view succeeded")
	}
}

func TestUnsplitInnerSplit(t *testing.T) {
	tr := New(1)
	_ = tr.Split(1, 2, true)
	_ = tr.Split(2, 3, false)

	removed, ok := tr.Unsplit(3)
	if !ok || len(removed) != 1 || removed[0] != 2 {
		t.Fatalf("Unsplit(3) = %v, %v, want [2], true", removed, ok)
	}
	top := tr.Top()
	if !top.Split || !top.Vertical {
		t.Fatalf("top = %+v, want vertical split", top)
	}
	if top.Children[0].View != 1 || top.Children[1].View != 3 {
		t.Errorf("children = %v/%v, want 1/3", top.Children[0].View, top.Children[1].View)
	}
	if err := tr.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestSplitErrors(t *testing.T) {
	tr := New(1)
	if err := tr.Split(9, 2, false); !errors.Is(err, ErrUnknownView) {
		t.Errorf("Split(unknown) error = %v, want ErrUnknownView", err)
	}
	if err := tr.Split(1, 1, false); !errors.Is(err, ErrDuplicateView) {
		t.Errorf("Split(1, 1) error = %v, want ErrDuplicateView", err)
	}
	if _, err := tr.Info(9); !errors.Is(err, ErrUnknownView) {
		t.Errorf("Info(unknown) error = %v, want ErrUnknownView", err)
	}
}

func TestInfoAndSize(t *testing.T) {
	tr := New(1)
	info, err := tr.Info(1)
	if err != nil || info.Split || info.View != 1 {
		t.Fatalf("Info(1) = %+v, %v", info, err)
	}

	_ = tr.Split(1, 2, false)
	if err := tr.SetSize(2, 10); err != nil {
		t.Fatal(err)
	}
	info, _ = tr.Info(1)
	if !info.Split || info.Vertical || info.Size != 10 {
		t.Errorf("Info(1) = %+v, want horizontal split of size 10", info)
	}
}

func TestLayout(t *testing.T) {
	tests := []struct {
		name     string
		vertical bool
		size     int
		want     map[engine.Identity]Rect
		divider  Rect
	}{
		{
			name:     "vertical half",
			vertical: true,
			size:     -1,
			want: map[engine.Identity]Rect{
				1: {Top: 0, Left: 0, Bottom: 10, Right: 40},
				2: {Top: 0, Left: 41, Bottom: 10, Right: 81},
			},
			divider: Rect{Top: 0, Left: 40, Bottom: 10, Right: 41},
		},
		{
			name: "horizontal sized",
			size: 3,
			want: map[engine.Identity]Rect{
				1: {Top: 0, Left: 0, Bottom: 3, Right: 81},
				2: {Top: 4, Left: 0, Bottom: 10, Right: 81},
			},
			divider: Rect{Top: 3, Left: 0, Bottom: 4, Right: 81},
		},
		{
			name: "oversized clamps",
			size: 100,
			want: map[engine.Identity]Rect{
				1: {Top: 0, Left: 0, Bottom: 9, Right: 81},
				2: {Top: 10, Left: 0, Bottom: 10, Right: 81},
			},
			divider: Rect{Top: 9, Left: 0, Bottom: 10, Right: 81},
		},
	}

	area := Rect{Bottom: 10, Right: 81}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(1)
			_ = tr.Split(1, 2, tt.vertical)
			_ = tr.SetSize(1, tt.size)

			got := tr.Layout(area)
			for v, want := range tt.want {
				if got[v] != want {
					t.Errorf("Layout()[%v] = %+v, want %+v", v, got[v], want)
				}
			}
			d := tr.Dividers(area)
			if len(d) != 1 || d[0] != tt.divider {
				t.Errorf("Dividers() = %+v, want [%+v]", d, tt.divider)
			}
		})
	}
}
