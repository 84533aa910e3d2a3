// Package handle implements the fixed-capacity handle table and the
// lock-free LIFOs used to recycle blocks of freed handle ids between the
// collector and the mutator threads that refill their local free lists
// from them.
package handle

import (
	"sync/atomic"
)

// noIndex is the ABAStack's "empty" sentinel, distinct from any valid
// 0-based index.
const noIndex = -1

// abaHead packs a 32-bit stack-top index and a 32-bit generation counter
// into one word so a single 64-bit CAS can both swap the top and detect
// the ABA hazard of another thread popping and re-pushing the same index
// between this thread's load and its compare-exchange. This is the same
// packed-word-plus-atomic-CAS idiom as phase.Word and snapshot.Cell,
// applied to index+generation instead of bitfields.
type abaHead uint64

func packHead(index int32, gen uint32) abaHead {
	return abaHead(uint64(uint32(index)) | uint64(gen)<<32)
}

func (h abaHead) index() int32 { return int32(uint32(h)) }
func (h abaHead) gen() uint32  { return uint32(h >> 32) }

// ABAStack is a lock-free LIFO over a fixed, preallocated set of `next`
// links. It never allocates after construction: Push/Pop only thread
// indices through the stack's own links array, which Link exposes.
type ABAStack struct {
	head uint64
	next []int32 // next[i] is the link for index i, owned by this stack
}

// NewABAStack creates an empty stack over an arena of `size` indices;
// InitFull fills it as [size-1, size-2, ..., 0].
func NewABAStack(size int) *ABAStack {
	return &ABAStack{next: make([]int32, size), head: uint64(packHead(noIndex, 0))}
}

// InitFull seeds the stack with every index [0, size) already pushed, most
// recently pushed index last (so index size-1 pops first). Only safe to
// call before the stack is shared across goroutines.
func (s *ABAStack) InitFull() {
	for i := range s.next {
		s.next[i] = int32(i) - 1
	}
	s.head = uint64(packHead(int32(len(s.next)-1), 0))
}

// Push returns index to the stack.
func (s *ABAStack) Push(index int32) {
	for {
		old := abaHead(atomic.LoadUint64(&s.head))
		s.next[index] = old.index()
		next := packHead(index, old.gen()+1)
		if atomic.CompareAndSwapUint64(&s.head, uint64(old), uint64(next)) {
			return
		}
	}
}

// Pop removes and returns the top index, or noIndex if the stack is empty.
func (s *ABAStack) Pop() int32 {
	for {
		old := abaHead(atomic.LoadUint64(&s.head))
		top := old.index()
		if top == noIndex {
			return noIndex
		}
		next := packHead(s.next[top], old.gen()+1)
		if atomic.CompareAndSwapUint64(&s.head, uint64(old), uint64(next)) {
			return top
		}
	}
}

// Steal atomically detaches the entire stack, returning its former top
// (callers can continue walking it through Link, since the nodes are
// untouched) and leaving the stack empty.
func (s *ABAStack) Steal() int32 {
	for {
		old := abaHead(atomic.LoadUint64(&s.head))
		next := packHead(noIndex, old.gen()+1)
		if atomic.CompareAndSwapUint64(&s.head, uint64(old), uint64(next)) {
			return old.index()
		}
	}
}

// Link returns the next pointer stored for index, valid after Steal so a
// caller can walk a detached chain without racing further Pushes.
func (s *ABAStack) Link(index int32) int32 { return s.next[index] }
