package registry

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/dshills/lumen/internal/bridge"
	"github.com/dshills/lumen/internal/engine"
)

func mustRegister(t *testing.T, r *Registry, id engine.Identity, kind Kind) *Proxy {
	t.Helper()
	p, err := r.Register(id, kind)
	if err != nil {
		t.Fatalf("Register(%v, %v) error = %v", id, kind, err)
	}
	return p
}

func positions(r *Registry) []engine.Identity {
	var ids []engine.Identity
	for _, p := range r.Documents() {
		ids = append(ids, p.ID())
	}
	return ids
}

func equalIDs(a, b []engine.Identity) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRegisterAssignsPositions(t *testing.T) {
	r := New()
	entry := mustRegister(t, r, 100, CommandEntry)
	a := mustRegister(t, r, 1, Document)
	b := mustRegister(t, r, 2, Document)
	v := mustRegister(t, r, 50, View)

	if entry.Position() != 0 {
		t.Errorf("command entry position = %d, want 0", entry.Position())
	}
	if a.Position() != 1 || b.Position() != 2 {
		t.Errorf("document positions = %d, %d, want 1, 2", a.Position(), b.Position())
	}
	if v.Position() != 1 {
		t.Errorf("view position = %d, want 1", v.Position())
	}
	if r.Count(Document) != 2 || r.Count(View) != 1 || r.Count(CommandEntry) != 1 {
		t.Errorf("counts = %d/%d/%d, want 2/1/1",
			r.Count(Document), r.Count(View), r.Count(CommandEntry))
	}

	got, err := r.LookupPosition(Document, 0)
	if err != nil || got != entry {
		t.Errorf("LookupPosition(0) = %v, %v, want command entry", got, err)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := New()
	mustRegister(t, r, 1, Document)
	mustRegister(t, r, 9, CommandEntry)

	tests := []struct {
		name string
		id   engine.Identity
		kind Kind
	}{
		{"same identity", 1, Document},
		{"same identity other kind", 1, View},
		{"zero identity", engine.None, Document},
		{"second command entry", 10, CommandEntry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Register(tt.id, tt.kind); !errors.Is(err, bridge.ErrArgument) {
				t.Errorf("Register() error = %v, want ErrArgument", err)
			}
		})
	}
}

func TestUnregisterRenumbers(t *testing.T) {
	tests := []struct {
		name   string
		remove int
		want   []engine.Identity
	}{
		{"first", 1, []engine.Identity{2, 3, 4}},
		{"middle", 2, []engine.Identity{1, 3, 4}},
		{"last", 4, []engine.Identity{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			for id := engine.Identity(1); id <= 4; id++ {
				mustRegister(t, r, id, Document)
			}

			next, nextErr := r.LookupPosition(Document, tt.remove+1)
			victim, _ := r.LookupPosition(Document, tt.remove)
			r.Unregister(victim.ID())

			if got := positions(r); !equalIDs(got, tt.want) {
				t.Errorf("documents = %v, want %v", got, tt.want)
			}
			for i, p := range r.Documents() {
				if p.Position() != i+1 {
					t.Errorf("%v cached position = %d, want %d", p, p.Position(), i+1)
				}
			}

			got, err := r.LookupPosition(Document, tt.remove)
			if nextErr != nil {
				if !errors.Is(err, bridge.ErrOutOfRange) {
					t.Errorf("LookupPosition(%d) error = %v, want ErrOutOfRange", tt.remove, err)
				}
				return
			}
			if err != nil || got != next {
				t.Errorf("LookupPosition(%d) = %v, %v, want %v", tt.remove, got, err, next)
			}
		})
	}
}

func TestUnregisterDetachesProxy(t *testing.T) {
	r := New()
	p := mustRegister(t, r, 1, Document)
	h := p.Handle()

	got, ok := r.Unregister(1)
	if !ok || got != p {
		t.Fatalf("Unregister() = %v, %v", got, ok)
	}
	if p.Live() {
		t.Error("proxy still live after Unregister")
	}
	if _, err := r.Resolve(h); !errors.Is(err, bridge.ErrStale) {
		t.Errorf("Resolve(old handle) error = %v, want ErrStale", err)
	}
	if _, ok := r.Unregister(1); ok {
		t.Error("second Unregister succeeded")
	}

	// The slot is reused with a new generation.
	q := mustRegister(t, r, 2, Document)
	if q.Handle() == h {
		t.Error("reused slot kept the old generation")
	}
	if _, err := r.Resolve(h); !errors.Is(err, bridge.ErrStale) {
		t.Errorf("Resolve(old handle) after reuse error = %v, want ErrStale", err)
	}
	if got, err := r.Resolve(q.Handle()); err != nil || got != q {
		t.Errorf("Resolve(new handle) = %v, %v", got, err)
	}
}

func TestLookupPositionOutOfRange(t *testing.T) {
	r := New()
	mustRegister(t, r, 1, Document)
	mustRegister(t, r, 2, View)

	tests := []struct {
		name  string
		kind  Kind
		index int
	}{
		{"zero without command entry", Document, 0},
		{"past end", Document, 2},
		{"negative", Document, -1},
		{"view zero", View, 0},
		{"view past end", View, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.LookupPosition(tt.kind, tt.index); !errors.Is(err, bridge.ErrOutOfRange) {
				t.Errorf("LookupPosition(%v, %d) error = %v, want ErrOutOfRange", tt.kind, tt.index, err)
			}
		})
	}
}

func TestMove(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		want     []engine.Identity
	}{
		{"forward", 1, 3, []engine.Identity{2, 3, 1, 4}},
		{"backward", 4, 2, []engine.Identity{1, 4, 2, 3}},
		{"adjacent", 2, 3, []engine.Identity{1, 3, 2, 4}},
		{"same", 2, 2, []engine.Identity{1, 2, 3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			for id := engine.Identity(1); id <= 4; id++ {
				mustRegister(t, r, id, Document)
			}
			if err := r.Move(tt.from, tt.to); err != nil {
				t.Fatalf("Move() error = %v", err)
			}
			if got := positions(r); !equalIDs(got, tt.want) {
				t.Errorf("documents = %v, want %v", got, tt.want)
			}
			for i, p := range r.Documents() {
				if p.Position() != i+1 {
					t.Errorf("%v cached position = %d, want %d", p, p.Position(), i+1)
				}
			}
		})
	}

	r := New()
	mustRegister(t, r, 1, Document)
	if err := r.Move(1, 2); !errors.Is(err, bridge.ErrOutOfRange) {
		t.Errorf("Move(1, 2) error = %v, want ErrOutOfRange", err)
	}
}

func TestOnChange(t *testing.T) {
	r := New()
	var got []Kind
	r.OnChange(func(k Kind) { got = append(got, k) })

	mustRegister(t, r, 1, Document)
	mustRegister(t, r, 2, Document)
	mustRegister(t, r, 3, View)
	r.Unregister(3)
	_ = r.Move(1, 2)

	want := []Kind{Document, Document, View, View, Document}
	if len(got) != len(want) {
		t.Fatalf("changes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("change[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestReset(t *testing.T) {
	r := New()
	d := mustRegister(t, r, 1, Document)
	v := mustRegister(t, r, 2, View)
	mustRegister(t, r, 3, CommandEntry)

	r.Reset()

	if r.Count(Document) != 0 || r.Count(View) != 0 || r.CommandEntry() != nil {
		t.Error("Reset left proxies behind")
	}
	for _, p := range []*Proxy{d, v} {
		if p.Live() {
			t.Errorf("%v still live after Reset", p)
		}
		if _, err := r.Resolve(p.Handle()); !errors.Is(err, bridge.ErrStale) {
			t.Errorf("Resolve(%v) error = %v, want ErrStale", p, err)
		}
	}
	mustRegister(t, r, 1, Document)
}

// TestIdentityUniqueness drives random register/unregister sequences and
// checks the identity/proxy mapping after every step.
func TestIdentityUniqueness(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	r := New()
	live := make(map[engine.Identity]*Proxy)

	for step := 0; step < 2000; step++ {
		id := engine.Identity(rng.Intn(40) + 1)
		if p, ok := live[id]; ok && rng.Intn(2) == 0 {
			got, removed := r.Unregister(id)
			if !removed || got != p {
				t.Fatalf("step %d: Unregister(%v) = %v, %v", step, id, got, removed)
			}
			delete(live, id)
		} else if !ok {
			kind := Document
			if rng.Intn(3) == 0 {
				kind = View
			}
			live[id] = mustRegister(t, r, id, kind)
		}

		if n := r.Count(Document) + r.Count(View); n != len(live) {
			t.Fatalf("step %d: registry holds %d proxies, want %d", step, n, len(live))
		}
		for id, want := range live {
			got, ok := r.Lookup(id)
			if !ok || got != want || got.ID() != id {
				t.Fatalf("step %d: Lookup(%v) = %v, %v, want %v", step, id, got, ok, want)
			}
			if res, err := r.Resolve(want.Handle()); err != nil || res != want {
				t.Fatalf("step %d: Resolve(%v) = %v, %v", step, want, res, err)
			}
		}
	}
}
