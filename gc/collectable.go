// Package gc assembles the phase state machine, snapshot cells, scan
// lists, handle table, and allocation trigger into a pauseless,
// snapshot-at-the-beginning tracing collector.
package gc

import (
	"errors"

	"github.com/nbtaylor/portablegc/instance"
)

// Collectable is the object contract: any type allocated through
// Allocate must report its byte size and publish its internal
// Snapshot-Cell fields so the mark pass can trace them.
type Collectable interface {
	// ByteSize returns the object's in-memory size, fed into the
	// allocation trigger's byte accounting.
	ByteSize() int
	// InstanceVarCount returns how many Instance Handle fields the
	// object exposes for traversal.
	InstanceVarCount() int
	// InstanceVar returns the i-th Instance Handle field, 0 <= i <
	// InstanceVarCount().
	InstanceVar(i int) *instance.Handle
}

// ArrayCollectable is an optional refinement: implement it to route an
// allocation through the array-allocation trigger thresholds (flushed
// every 20 array allocations rather than every 300 ordinary ones) instead
// of the ordinary ones.
type ArrayCollectable interface {
	IsArray() bool
}

// CleanupHook is an optional hook invoked on every object that survives a
// sweep, once its mark bit has been cleared.
type CleanupHook interface {
	CleanAfterCollect()
}

// Finalizer is an optional hook invoked exactly once on an object when
// its handle is freed by the sweep.
type Finalizer interface {
	Finalize()
}

// ErrTooManyThreads is returned by InitThread when every thread slot
// (Config.MaxThreads of them) is already reserved.
var ErrTooManyThreads = errors.New("portablegc: no free thread slot")
