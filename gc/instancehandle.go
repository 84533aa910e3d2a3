package gc

import "github.com/nbtaylor/portablegc/instance"

// InstanceHandle[T] is the typed, non-owning field reference a
// Collectable embeds to point at another object. Unlike RootHandle it
// registers nothing at construction: its lifetime is exclusively the
// enclosing object's, and the mark pass reaches it through the enclosing
// object's InstanceVar method, not a list of its own.
type InstanceHandle[T Collectable] struct {
	h instance.Handle
}

// Field exposes the untyped instance.Handle backing this field, for use
// in a Collectable's InstanceVar implementation:
//
//	func (o *Obj) InstanceVar(i int) *instance.Handle { return o.next.Field() }
func (f *InstanceHandle[T]) Field() *instance.Handle { return &f.h }

// Get returns the field's current referent.
func (f *InstanceHandle[T]) Get(c *Collector) T {
	return Ref[T]{id: f.h.Cell().Load()}.Resolve(c)
}

// Set stores a new referent through m's active write barrier.
func (f *InstanceHandle[T]) Set(m *Mutator, v Ref[T]) {
	m.barrier(f.h.Cell(), v.id)
}

// LoadSnapshot returns the field's snapshot half; collector-internal use
// only, valid while the global phase is Collecting.
func (f *InstanceHandle[T]) LoadSnapshot(c *Collector) T {
	return Ref[T]{id: f.h.Cell().LoadSnapshot()}.Resolve(c)
}
