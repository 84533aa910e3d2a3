// Package scanlist implements the per-thread active/snapshot intrusive
// doubly-linked lists: circular lists with a
// sentinel, O(1) link-at-front and unlink, O(1) merge-by-splice, and an
// iterator that supports "remove current and advance" so the collector
// can prune dead roots and swept objects while walking.
package scanlist

// Node is the embeddable link: any object or root participating in a
// scan list holds one. Owner lets a walker recover the containing value;
// it is nil only for a list's own sentinel node.
type Node struct {
	prev, next *Node
	Owner      any
}

// List is a circular doubly-linked list with a dedicated sentinel node.
// The zero value is not usable; use NewList.
type List struct {
	sentinel Node
}

// NewList returns an empty list (a sentinel pointing to itself).
func NewList() *List {
	l := &List{}
	l.sentinel.next = &l.sentinel
	l.sentinel.prev = &l.sentinel
	return l
}

// Empty reports whether the list holds no real nodes.
func (l *List) Empty() bool { return l.sentinel.next == &l.sentinel }

// Front returns the list's first real node, or the sentinel if empty.
// Intended only for capturing a merge boundary (see MergeInto); general
// traversal should use Iterate.
func (l *List) Front() *Node { return l.sentinel.next }

// PushFront links n at the head of l in O(1). n must not already be
// linked into any list.
func (l *List) PushFront(n *Node) {
	n.next = l.sentinel.next
	n.prev = &l.sentinel
	l.sentinel.next.prev = n
	l.sentinel.next = n
}

// Unlink removes n from whatever list currently holds it, in O(1). n's
// own prev/next are cleared so a stray use afterwards panics loudly
// instead of silently corrupting a list.
func (n *Node) Unlink() {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev, n.next = nil, nil
}

// MergeInto splices every node currently in l onto the front of dst in
// O(1), leaving l empty. Used at the Collecting -> RestoringSnapshot edge
// to fold the snapshot list back into the active list.
func (l *List) MergeInto(dst *List) {
	if l.Empty() {
		return
	}
	first, last := l.sentinel.next, l.sentinel.prev

	first.prev = &dst.sentinel
	last.next = dst.sentinel.next
	dst.sentinel.next.prev = last
	dst.sentinel.next = first

	l.sentinel.next = &l.sentinel
	l.sentinel.prev = &l.sentinel
}

// Iterator walks a list from a starting node (inclusive) through next
// links until the sentinel is reached, supporting in-place removal.
type Iterator struct {
	sentinel *Node
	cur      *Node
	started  bool
}

// Iterate walks the whole list front-to-back.
func (l *List) Iterate() *Iterator {
	return &Iterator{sentinel: &l.sentinel, cur: &l.sentinel}
}

// IterateFrom walks starting at start (inclusive) through to the
// sentinel. start must currently belong to this list (or have belonged to
// it at capture time and not yet be unlinked); used by the collector's
// restore pass to walk from the boundary Set.MergeSnapshotIntoActive
// captured right after the merge, skipping nodes pushed in front of it
// since.
func (l *List) IterateFrom(start *Node) *Iterator {
	if start == nil {
		return l.Iterate()
	}
	return &Iterator{sentinel: &l.sentinel, cur: start.prev}
}

// Next advances the iterator, returning false once it reaches the
// sentinel (end of list).
func (it *Iterator) Next() bool {
	it.started = true
	it.cur = it.cur.next
	return it.cur != it.sentinel
}

// Node returns the current node. Only valid after Next returns true.
func (it *Iterator) Node() *Node { return it.cur }

// Remove unlinks the current node and repositions the iterator so the
// next call to Next lands on whatever followed it, mirroring the
// original's "special iterator lets you delete under it".
func (it *Iterator) Remove() {
	doomed := it.cur
	it.cur = doomed.prev
	doomed.Unlink()
}
