// Package root implements the root handle: an owning reference that
// survives outside the object graph, registered into a
// thread's active root list at construction and pruned by the collector
// in the first mark pass that sees its scope has exited.
package root

import (
	"github.com/nbtaylor/portablegc/scanlist"
	"github.com/nbtaylor/portablegc/snapshot"
)

// Handle is the untyped root: a Snapshot Cell plus the owned/was_owned
// pair and the list link. gc.RootHandle[T] wraps this with typed
// Get/Set bound to a particular Collector and Collectable type.
type Handle struct {
	cell     snapshot.Cell
	node     scanlist.Node
	owned    bool
	wasOwned bool
}

// New registers a root into set's currently-active list and returns it
// owning, pointing at Null until the caller stores a referent through
// Cell(). wasOwned starts true: a freshly-created root has been owned
// since the instant it was constructed, so the first mark pass that ever
// observes it (once a phase flip moves it from the active list into a
// snapshot list) must trace its referent rather than treat it as
// unverified - otherwise a live object rooted between two collections
// could be swept the first time its root is visible to the collector.
func New(set *scanlist.Set, activeIndex int) *Handle {
	h := &Handle{owned: true, wasOwned: true}
	h.node.Owner = h
	set.Active(activeIndex).PushFront(&h.node)
	return h
}

// Cell returns the handle's Snapshot Cell for reads/writes through the
// active write barrier.
func (h *Handle) Cell() *snapshot.Cell { return &h.cell }

// Node returns the scan-list link, used by the collector to iterate and
// prune roots; not meant for mutator use.
func (h *Handle) Node() *scanlist.Node { return &h.node }

// Drop marks the root as no longer owned by its enclosing scope. The
// collector, not Drop, performs the actual unlink - see Mark - so a root
// dropped mid-cycle is still visible to whichever mark pass was already
// walking the list when it was dropped.
func (h *Handle) Drop() { h.owned = false }

// Owned reports whether the enclosing scope that created this root is
// still live.
func (h *Handle) Owned() bool { return h.owned }

// Mark applies the marking rule for one root during a mark
// pass: shouldTraceReferent is true if the root was owned as of the start
// of this collection cycle (so its referent must be kept alive);
// shouldPrune is true if the root should be unlinked from the list now
// that both this and the prior cycle's ownership have been observed.
func (h *Handle) Mark() (shouldTraceReferent, shouldPrune bool) {
	shouldTraceReferent = h.wasOwned
	h.wasOwned = h.owned
	shouldPrune = !h.owned
	return shouldTraceReferent, shouldPrune
}
