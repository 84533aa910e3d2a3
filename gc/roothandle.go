package gc

import "github.com/nbtaylor/portablegc/root"

// RootHandle[T] is the typed owning reference a host scope keeps to pin
// an object outside the graph. It registers itself into the creating
// thread's active root list at construction; call Drop when the
// enclosing scope ends.
type RootHandle[T Collectable] struct {
	h *root.Handle
	c *Collector
}

// NewRootHandle registers a new root owned by m's thread, initialized to
// point at initial (which may be NullRef[T]()).
func NewRootHandle[T Collectable](m *Mutator, initial Ref[T]) *RootHandle[T] {
	h := root.New(m.roots, m.c.ActiveIndex())
	h.Cell().StoreBoth(initial.id)
	return &RootHandle[T]{h: h, c: m.c}
}

// Get returns the root's current referent, or the zero value of T if it
// points at null.
func (r *RootHandle[T]) Get() T {
	return Ref[T]{id: r.h.Cell().Load()}.Resolve(r.c)
}

// Set stores a new referent through m's active write barrier.
func (r *RootHandle[T]) Set(m *Mutator, v Ref[T]) {
	m.barrier(r.h.Cell(), v.id)
}

// Drop marks the root as no longer owned by its enclosing scope; the
// collector prunes it from the list during a later mark pass, not
// immediately.
func (r *RootHandle[T]) Drop() { r.h.Drop() }
