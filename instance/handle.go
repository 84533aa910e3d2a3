// Package instance implements the instance handle: a snapshot cell
// embedded as a field inside a Collectable object, reached
// only through the enclosing object's instance-variable table and never
// linked into a scan list of its own - the enclosing object's own node
// carries it into the scan.
package instance

import "github.com/nbtaylor/portablegc/snapshot"

// Handle is a single field-embedded reference slot. Unlike root.Handle it
// has no ownership bookkeeping of its own: its lifetime is exclusively
// the enclosing object's, and the mark pass reaches it by asking the
// enclosing object for each of its instance-variable cells in turn
// (gc.Collectable.InstanceVar).
type Handle struct {
	cell snapshot.Cell
}

// Cell returns the Snapshot Cell backing this field, for reads/writes
// through the active write barrier.
func (h *Handle) Cell() *snapshot.Cell { return &h.cell }
