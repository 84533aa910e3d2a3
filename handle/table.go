package handle

import (
	"errors"

	"github.com/nbtaylor/portablegc/snapshot"
)

// ErrOutOfHandles is returned when the handle pool is exhausted: every
// block is checked out and none has been returned by a collection cycle.
// This is unrecoverable - there is no backing store to grow into, unlike
// an ordinary out-of-memory condition - and callers are expected to abort
// rather than retry indefinitely; see gc.Allocate.
var ErrOutOfHandles = errors.New("portablegc: handle pool exhausted")

type Handle = snapshot.Handle

// slot is the handle table's union, expressed in Go as a struct instead of
// a literal C union (Go has no union types): obj is non-nil exactly when
// the slot is allocated, next is the free-list link otherwise. The slot's
// address never moves for the lifetime of the table, which is what gives
// handles their stable-id property: an id always names the same slot for
// as long as it is live.
type slot struct {
	obj  any
	next Handle
}

// blockDesc describes one recyclable chain of free handle ids: head is
// the first free id in the chain (walked through slots[id].next), tail is
// the last (so a dealloc chain can be appended to in O(1) before it's
// published).
type blockDesc struct {
	head  Handle
	tail  Handle
	count uint32
}

// Table is the fixed-capacity handle table. blockSize * numBlocks handles
// are carved up front into numBlocks chains of blockSize ids each, and
// every chain index is pushed onto ready at construction. descriptors
// holds HandleBlocks + maxThreads + 1 block-descriptor slots so the
// collector always has a spare descriptor to fill while sweeping, even
// with every mutator thread mid-refill.
//
// A block a sweep frees does not become consumable immediately: it is
// held on pending until the table's owner calls DrainPending, which a
// collector does once at the very start of a cycle, before that cycle
// touches anything else. This delay is load-bearing: a cell elsewhere may
// still hold a stale reference to a freed id in its snapshot half until
// that cycle's restore passes repair it, and handing the id to a new
// allocation before then would let two unrelated objects alias the same
// slot.
type Table struct {
	slots       []slot
	blockSize   uint32
	descriptors []blockDesc
	ready       *ABAStack // indices into descriptors that are full and consumable
	spare       *ABAStack // indices into descriptors that are empty and awaiting a fill
	pending     *ABAStack // indices into descriptors freed this cycle, not yet drained into ready
}

// NewTable builds a table of numBlocks*blockSize handles (ids start at 1;
// id 0 is reserved for Null). maxThreads is only used to size the spare
// descriptor pool, which must have at least one slot per thread that
// could be mid-refill plus one for the collector's own in-progress sweep
// block.
func NewTable(numBlocks, blockSize, maxThreads int) *Table {
	total := numBlocks*blockSize + 1
	t := &Table{
		slots:       make([]slot, total),
		blockSize:   uint32(blockSize),
		descriptors: make([]blockDesc, numBlocks+maxThreads+1),
	}
	t.slots[snapshot.Null].obj = sentinelMarker{}

	t.ready = NewABAStack(len(t.descriptors))
	t.spare = NewABAStack(len(t.descriptors))
	t.pending = NewABAStack(len(t.descriptors))

	next := Handle(snapshot.EndOfList)
	id := Handle(1)
	for b := 0; b < numBlocks; b++ {
		head := id
		for i := 0; i < blockSize; i++ {
			t.slots[id].next = next
			next = id
			id++
		}
		t.descriptors[b] = blockDesc{head: next, tail: head, count: uint32(blockSize)}
		t.ready.Push(int32(b))
		next = Handle(snapshot.EndOfList)
	}
	for i := numBlocks; i < len(t.descriptors); i++ {
		t.spare.Push(int32(i))
	}
	return t
}

// sentinelMarker occupies the slot of handle 0 (Null); NewTable threads
// only ids from 1 upwards into free chains, so 0 is never handed out.
type sentinelMarker struct{}

// Slot returns the object stored at id in O(1). Valid only while id is
// alive; calling it on a freed or never-allocated id is undefined.
func (t *Table) Slot(id Handle) any {
	return t.slots[id].obj
}

// SetSlot publishes obj as the object for id. Called once, right after
// Allocate hands out id to an allocation.
func (t *Table) SetSlot(id Handle, obj any) {
	t.slots[id].obj = obj
}

// LocalFreeList is a thread-owned, non-atomic singly-linked chain of free
// handle ids, threaded through the slot contents themselves. It is
// refilled from the Table's ready stack, never touched by any other
// thread.
type LocalFreeList struct {
	head Handle
}

// Allocate pops the next free id off local, refilling from a ready block
// when local is empty. Never returns Null or EndOfList.
func (t *Table) Allocate(local *LocalFreeList) (Handle, error) {
	if local.head == snapshot.Handle(snapshot.EndOfList) || local.head == 0 {
		if err := t.refill(local); err != nil {
			return 0, err
		}
	}
	id := local.head
	local.head = t.slots[id].next
	return id, nil
}

func (t *Table) refill(local *LocalFreeList) error {
	idx := t.ready.Pop()
	if idx == noIndex {
		return ErrOutOfHandles
	}
	local.head = t.descriptors[idx].head
	t.descriptors[idx] = blockDesc{}
	t.spare.Push(idx)
	return nil
}

// DeallocChain accumulates handles freed by the collector during a single
// sweep pass, grouping blockSize of them into a descriptor before
// publishing it to the pending queue. Only the collector goroutine
// touches a DeallocChain: Free is collector-only.
type DeallocChain struct {
	head, tail Handle
	count      uint32
}

// Free links id into chain, clearing its slot, and flushes a full block
// to the pending queue once chain has accumulated blockSize ids. Handles
// flushed this way are not yet allocatable; DrainPending moves them into
// the ready stack.
func (t *Table) Free(chain *DeallocChain, id Handle) {
	t.slots[id].obj = nil
	t.slots[id].next = snapshot.Handle(snapshot.EndOfList)
	if chain.count == 0 {
		chain.tail = id
	} else {
		t.slots[id].next = chain.head
	}
	chain.head = id
	chain.count++
	if chain.count >= t.blockSize {
		t.Flush(chain)
	}
}

// Flush publishes whatever chain currently holds to the pending queue,
// even if it is smaller than a full block (used at the end of a sweep
// pass so a partial remainder isn't stranded until the next cycle). The
// published block sits on pending, not ready, until DrainPending runs.
func (t *Table) Flush(chain *DeallocChain) {
	if chain.count == 0 {
		return
	}
	idx := t.spare.Pop()
	if idx == noIndex {
		// The descriptor sizing guarantee means this should not happen;
		// if it does, drop the chain rather than leak it into a corrupt
		// descriptor slot shared with another in-flight block.
		*chain = DeallocChain{}
		return
	}
	t.descriptors[idx] = blockDesc{head: chain.head, tail: chain.tail, count: chain.count}
	t.pending.Push(idx)
	*chain = DeallocChain{}
}

// DrainPending moves every block currently on the pending queue onto the
// ready stack, making the handle ids they hold allocatable again. A
// collector calls this exactly once, as the first action of a cycle,
// before that cycle's own sweep has a chance to add anything new to
// pending: blocks freed during cycle N only become allocatable at the
// start of cycle N+1, once any racing reader of a stale reference to one
// of those ids has had that cycle's restore passes repair it.
func (t *Table) DrainPending() {
	idx := t.pending.Steal()
	for idx != noIndex {
		next := t.pending.Link(idx)
		t.ready.Push(idx)
		idx = next
	}
}

// BlockSize reports the configured handles-per-block, exposed so callers
// can size their own allocation-trigger bookkeeping.
func (t *Table) BlockSize() uint32 { return t.blockSize }
