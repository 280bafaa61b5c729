// Package registry maps native document and view identities to the proxy
// handles scripts hold.
//
// Each live identity has exactly one proxy. Proxies live in an arena of
// generation-counted slots: when a proxy is removed its slot generation is
// bumped, so any Handle still held by a script resolves to ErrStale instead
// of a recycled object.
//
// Documents form an ordered, 1-based sequence (the open buffer list). Views
// are kept in an analogous sequence used for relative navigation. The
// distinguished command-entry document occupies the reserved position 0 and
// is never part of the sequence.
//
// The registry is not safe for concurrent use; it is mutated only from the
// editor's single control thread.
package registry

import (
	"fmt"

	"github.com/dshills/lumen/internal/bridge"
	"github.com/dshills/lumen/internal/engine"
)

// Kind discriminates proxies.
type Kind uint8

const (
	// Document is a plain open buffer.
	Document Kind = iota
	// View is an editing view.
	View
	// CommandEntry is the distinguished always-present auxiliary document.
	CommandEntry
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Document:
		return "document"
	case View:
		return "view"
	case CommandEntry:
		return "command_entry"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Handle is a generation-checked reference to a proxy slot.
type Handle struct {
	slot uint32
	gen  uint32
}

// IsZero reports whether h was never issued.
func (h Handle) IsZero() bool { return h.gen == 0 }

// Proxy is the registry record for one native object.
type Proxy struct {
	kind   Kind
	id     engine.Identity
	handle Handle
	pos    int // 1-based position in its sequence; 0 for the command entry
	live   bool

	// Data is owned by the scripting layer (e.g. the Lua userdata that
	// represents this proxy). The registry never inspects it.
	Data any
}

// Kind returns the proxy kind.
func (p *Proxy) Kind() Kind { return p.kind }

// ID returns the native identity the proxy was created for.
func (p *Proxy) ID() engine.Identity { return p.id }

// Handle returns the proxy's handle.
func (p *Proxy) Handle() Handle { return p.handle }

// Position returns the cached 1-based position, 0 for the command entry.
func (p *Proxy) Position() int { return p.pos }

// Live reports whether the proxy is still registered.
func (p *Proxy) Live() bool { return p.live }

// IsDocument reports whether the proxy wraps any kind of document.
func (p *Proxy) IsDocument() bool { return p.kind == Document || p.kind == CommandEntry }

func (p *Proxy) String() string {
	return fmt.Sprintf("%s(%s)", p.kind, p.id)
}

type slot struct {
	gen   uint32
	proxy *Proxy
}

// Registry is the single source of truth for identity/proxy mappings.
type Registry struct {
	slots []slot
	free  []uint32

	byID  map[engine.Identity]*Proxy
	docs  []*Proxy // docs[i] has position i+1
	views []*Proxy // views[i] has position i+1
	entry *Proxy

	onChange func(Kind)
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{byID: make(map[engine.Identity]*Proxy)}
}

// OnChange installs fn, called after every mutation with the kind of
// collection that changed.
func (r *Registry) OnChange(fn func(Kind)) {
	r.onChange = fn
}

func (r *Registry) changed(k Kind) {
	if r.onChange != nil {
		r.onChange(k)
	}
}

// Register creates the proxy for id.
func (r *Registry) Register(id engine.Identity, kind Kind) (*Proxy, error) {
	if id == engine.None {
		return nil, fmt.Errorf("%w: register: zero identity", bridge.ErrArgument)
	}
	if existing, ok := r.byID[id]; ok {
		return nil, fmt.Errorf("%w: register: %s already has proxy %s", bridge.ErrArgument, id, existing)
	}
	if kind == CommandEntry && r.entry != nil {
		return nil, fmt.Errorf("%w: register: command entry already registered", bridge.ErrArgument)
	}

	p := &Proxy{kind: kind, id: id, live: true}
	p.handle = r.alloc(p)
	r.byID[id] = p

	switch kind {
	case Document:
		r.docs = append(r.docs, p)
		p.pos = len(r.docs)
	case View:
		r.views = append(r.views, p)
		p.pos = len(r.views)
	case CommandEntry:
		r.entry = p
	}
	r.changed(kind)
	return p, nil
}

func (r *Registry) alloc(p *Proxy) Handle {
	if n := len(r.free); n > 0 {
		i := r.free[n-1]
		r.free = r.free[:n-1]
		r.slots[i].proxy = p
		return Handle{slot: i, gen: r.slots[i].gen}
	}
	r.slots = append(r.slots, slot{gen: 1, proxy: p})
	return Handle{slot: uint32(len(r.slots) - 1), gen: 1}
}

// Unregister removes the proxy for id and returns it detached. Later
// documents and views shift down one position.
func (r *Registry) Unregister(id engine.Identity) (*Proxy, bool) {
	p, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)

	switch p.kind {
	case Document:
		r.docs = removeAt(r.docs, p.pos-1)
	case View:
		r.views = removeAt(r.views, p.pos-1)
	case CommandEntry:
		r.entry = nil
	}

	s := &r.slots[p.handle.slot]
	s.proxy = nil
	s.gen++
	r.free = append(r.free, p.handle.slot)

	p.live = false
	p.pos = 0
	r.changed(p.kind)
	return p, true
}

// removeAt deletes seq[i] and renumbers the tail.
func removeAt(seq []*Proxy, i int) []*Proxy {
	copy(seq[i:], seq[i+1:])
	seq[len(seq)-1] = nil
	seq = seq[:len(seq)-1]
	for j := i; j < len(seq); j++ {
		seq[j].pos = j + 1
	}
	return seq
}

// Lookup returns the proxy for id.
func (r *Registry) Lookup(id engine.Identity) (*Proxy, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Resolve returns the live proxy behind h.
func (r *Registry) Resolve(h Handle) (*Proxy, error) {
	if h.IsZero() || int(h.slot) >= len(r.slots) {
		return nil, fmt.Errorf("%w: invalid handle", bridge.ErrStale)
	}
	s := r.slots[h.slot]
	if s.gen != h.gen || s.proxy == nil {
		return nil, fmt.Errorf("%w: object was deleted", bridge.ErrStale)
	}
	return s.proxy, nil
}

// LookupPosition returns the document or view at 1-based position index.
// Position 0 of the document sequence is the command entry.
func (r *Registry) LookupPosition(kind Kind, index int) (*Proxy, error) {
	seq := r.seq(kind)
	if kind != View && index == 0 && r.entry != nil {
		return r.entry, nil
	}
	if index < 1 || index > len(seq) {
		return nil, fmt.Errorf("%w: %s %d not in [1, %d]", bridge.ErrOutOfRange, kind, index, len(seq))
	}
	return seq[index-1], nil
}

// Move relocates the document at position from to position to, shifting the
// documents between them.
func (r *Registry) Move(from, to int) error {
	n := len(r.docs)
	if from < 1 || from > n {
		return fmt.Errorf("%w: move from %d not in [1, %d]", bridge.ErrOutOfRange, from, n)
	}
	if to < 1 || to > n {
		return fmt.Errorf("%w: move to %d not in [1, %d]", bridge.ErrOutOfRange, to, n)
	}
	if from == to {
		return nil
	}

	p := r.docs[from-1]
	if from < to {
		copy(r.docs[from-1:], r.docs[from:to])
	} else {
		copy(r.docs[to:], r.docs[to-1:from-1])
	}
	r.docs[to-1] = p
	for i := min(from, to) - 1; i < max(from, to); i++ {
		r.docs[i].pos = i + 1
	}
	r.changed(Document)
	return nil
}

// CommandEntry returns the distinguished document, if registered.
func (r *Registry) CommandEntry() *Proxy { return r.entry }

// Count returns the number of proxies of kind.
func (r *Registry) Count(kind Kind) int {
	if kind == CommandEntry {
		if r.entry != nil {
			return 1
		}
		return 0
	}
	return len(r.seq(kind))
}

// Documents returns the plain documents in order.
func (r *Registry) Documents() []*Proxy {
	return append([]*Proxy(nil), r.docs...)
}

// Views returns the views in order.
func (r *Registry) Views() []*Proxy {
	return append([]*Proxy(nil), r.views...)
}

func (r *Registry) seq(kind Kind) []*Proxy {
	if kind == View {
		return r.views
	}
	return r.docs
}

// Reset drops every proxy without renumbering, for application teardown.
// Handles issued before Reset all become stale.
func (r *Registry) Reset() {
	for _, p := range r.byID {
		p.live = false
		p.pos = 0
	}
	for i := range r.slots {
		if r.slots[i].proxy != nil {
			r.slots[i].proxy = nil
			r.slots[i].gen++
			r.free = append(r.free, uint32(i))
		}
	}
	r.byID = make(map[engine.Identity]*Proxy)
	r.docs, r.views, r.entry = nil, nil, nil
}
