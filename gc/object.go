package gc

import "github.com/nbtaylor/portablegc/scanlist"

// object is the GC header every Collectable gets wrapped in - the
// assigned handle id, mark bit, and scan-list node - expressed as a
// wrapper rather than mixed into user types since Go has no inheritance
// to hang header fields off of. It is what actually gets linked into a
// thread's scan list and stored in the handle table's slot; node.Owner
// points back at it so an iterator walking the list can recover it.
type object struct {
	node        scanlist.Node
	handle      Handle
	marked      bool
	collectable Collectable
}
