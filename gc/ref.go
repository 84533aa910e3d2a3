package gc

import (
	"errors"

	"go.uber.org/zap"

	"github.com/nbtaylor/portablegc/handle"
	"github.com/nbtaylor/portablegc/snapshot"
)

// Handle is the stable 32-bit id naming an allocated object, re-exported
// from snapshot for callers that never need the package directly.
type Handle = snapshot.Handle

// Ref[T] is the typed reference Allocate returns. It is a plain value -
// safe to copy, store in another object's Instance Handle, or pass to
// NewRootHandle - and carries no ownership semantics of its own; only
// RootHandle and InstanceHandle do.
type Ref[T Collectable] struct {
	id Handle
}

// NullRef returns a Ref pointing at the canonical null object.
func NullRef[T Collectable]() Ref[T] { return Ref[T]{id: snapshot.Null} }

// IsNull reports whether r refers to the canonical null object.
func (r Ref[T]) IsNull() bool { return r.id == snapshot.Null }

// Resolve dereferences r through c's handle table, returning the zero
// value of T if r is null, stale, or was never an id of an object whose
// concrete type is T.
func (r Ref[T]) Resolve(c *Collector) T {
	var zero T
	if r.id == snapshot.Null {
		return zero
	}
	raw := c.table.Slot(r.id)
	obj, ok := raw.(*object)
	if !ok || obj == nil {
		return zero
	}
	v, ok := obj.collectable.(T)
	if !ok {
		return zero
	}
	return v
}

// Allocate constructs an object of type T, assigns it a handle, links it
// into the calling thread's active object list, and accounts its size
// against the allocation trigger. In combined mode, a trigger crossed by
// this very call may run a collection cycle inline before Allocate
// returns.
//
// Handle-pool exhaustion is unrecoverable - unlike running low on memory,
// there is no larger pool to grow into - so it is not returned to the
// caller as an ordinary error: it is logged and the process aborts.
func Allocate[T Collectable](m *Mutator, value T) (Ref[T], error) {
	size := int64(value.ByteSize())
	var flush bool
	if arr, ok := any(value).(ArrayCollectable); ok && arr.IsArray() {
		flush = m.trig.RecordArray(size)
	} else {
		flush = m.trig.RecordOrdinary(size)
	}
	if flush {
		m.c.trig.Flush(&m.trig, false)
	}

	id, err := m.c.table.Allocate(&m.localFree)
	if errors.Is(err, handle.ErrOutOfHandles) {
		m.c.log.Fatal("gc: handle pool exhausted, aborting", zap.Int("thread_slot", m.slot))
	}
	if err != nil {
		return Ref[T]{}, err
	}

	obj := &object{handle: id, collectable: value}
	obj.node.Owner = obj
	m.c.table.SetSlot(id, obj)
	m.objects.Active(m.c.ActiveIndex()).PushFront(&obj.node)

	if m.trig.RecordHandleUse() {
		m.c.trig.Flush(&m.trig, true)
	}

	m.RunCombinedIfPending()
	return Ref[T]{id: id}, nil
}
