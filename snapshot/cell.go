// Package snapshot implements the snapshot cell: a 64-bit word packing two
// 32-bit handles, `current` in the low half and `snapshot` in the high
// half, plus the write-barrier variants that decide how a store updates
// it.
//
// Like phase.Word, a Cell is a single atomically-addressed uint64 so reads
// and writes never tear, following the teacher's packed-state-word idiom.
package snapshot

import "sync/atomic"

// Handle is a stable 32-bit id naming an object through the handle table.
// Handle(0) is the canonical null object; EndOfList is reserved as a
// free-list sentinel and is never a live handle.
type Handle uint32

const (
	Null      Handle = 0
	EndOfList Handle = 0xFFFFFFFF
)

// Cell is two packed Handles: current (low 32 bits) and snapshot (high 32
// bits). The zero value is a cell referencing Null in both halves.
type Cell struct {
	word uint64
}

func pack(current, snap Handle) uint64 {
	return uint64(current) | uint64(snap)<<32
}

func unpack(w uint64) (current, snap Handle) {
	return Handle(w & 0xFFFFFFFF), Handle(w >> 32)
}

// Load returns the current half. Safe for any phase.
func (c *Cell) Load() Handle {
	cur, _ := unpack(atomic.LoadUint64(&c.word))
	return cur
}

// LoadSnapshot returns the snapshot half. Only the collector reads this,
// and only while the global phase is Collecting.
func (c *Cell) LoadSnapshot() Handle {
	_, snap := unpack(atomic.LoadUint64(&c.word))
	return snap
}

// StoreBoth is the "regular" write barrier: it writes v into
// both halves as one atomic store, re-establishing
// current == snapshot. Used in NotCollecting and RestoringSnapshot.
func (c *Cell) StoreBoth(v Handle) {
	atomic.StoreUint64(&c.word, pack(v, v))
}

// StoreCurrentOnly is the "collecting" write barrier: it updates only the
// current half; the snapshot half is left exactly as it was at phase
// entry, which is the invariant the mark pass relies on.
func (c *Cell) StoreCurrentOnly(v Handle) {
	for {
		old := atomic.LoadUint64(&c.word)
		_, snap := unpack(old)
		next := pack(v, snap)
		if atomic.CompareAndSwapUint64(&c.word, old, next) {
			return
		}
	}
}

// FastRestore is a non-atomic read-modify-write: if the two halves
// disagree, it overwrites snapshot with current using a plain store (no
// CAS). The collector runs it over the merged region just after
// RestoringSnapshot begins, while mutators may still be storing through
// the regular barrier; a concurrent store can be lost to it, and any race
// it misses is repaired later by Restore.
func (c *Cell) FastRestore() {
	w := c.word // plain, non-atomic read by design; see doc comment
	cur, snap := unpack(w)
	if cur != snap {
		c.word = pack(cur, cur)
	}
}

// Restore is the CAS-loop counterpart of FastRestore, used during the
// finalize-snapshot pass to repair any cell FastRestore's non-atomic
// access missed. It retries under contention and is a no-op once the
// halves already agree.
func (c *Cell) Restore() {
	for {
		old := atomic.LoadUint64(&c.word)
		cur, snap := unpack(old)
		if cur == snap {
			return
		}
		next := pack(cur, cur)
		if atomic.CompareAndSwapUint64(&c.word, old, next) {
			return
		}
	}
}

// Barrier selects which write discipline a Cell store uses. Exactly one
// variant is active per thread at a time, selected by the thread's
// current phase; see gc.Mutator.switchBarrier.
type Barrier func(*Cell, Handle)

// Regular is the double-store barrier: NotCollecting and RestoringSnapshot.
func Regular(c *Cell, v Handle) { c.StoreBoth(v) }

// CollectingBarrier is the single-store barrier: active only while the
// thread's mirrored phase is Collecting.
func CollectingBarrier(c *Cell, v Handle) { c.StoreCurrentOnly(v) }
