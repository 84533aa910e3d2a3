package scanlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(l *List) []any {
	var out []any
	it := l.Iterate()
	for it.Next() {
		out = append(out, it.Node().Owner)
	}
	return out
}

func TestPushFrontOrdering(t *testing.T) {
	l := NewList()
	assert.True(t, l.Empty())
	a := &Node{Owner: "a"}
	b := &Node{Owner: "b"}
	l.PushFront(a)
	l.PushFront(b)
	assert.Equal(t, []any{"b", "a"}, collect(l))
}

func TestUnlink(t *testing.T) {
	l := NewList()
	a, b, c := &Node{Owner: "a"}, &Node{Owner: "b"}, &Node{Owner: "c"}
	l.PushFront(a)
	l.PushFront(b)
	l.PushFront(c)
	b.Unlink()
	assert.Equal(t, []any{"c", "a"}, collect(l))
}

func TestMergeIntoSplicesAtFront(t *testing.T) {
	dst := NewList()
	x := &Node{Owner: "x"}
	dst.PushFront(x)

	src := NewList()
	a, b := &Node{Owner: "a"}, &Node{Owner: "b"}
	src.PushFront(a)
	src.PushFront(b)

	src.MergeInto(dst)
	assert.True(t, src.Empty())
	assert.Equal(t, []any{"b", "a", "x"}, collect(dst))
}

func TestMergeEmptySourceIsNoop(t *testing.T) {
	dst := NewList()
	x := &Node{Owner: "x"}
	dst.PushFront(x)
	src := NewList()
	src.MergeInto(dst)
	assert.Equal(t, []any{"x"}, collect(dst))
}

func TestIteratorRemoveAdvances(t *testing.T) {
	l := NewList()
	a, b, c := &Node{Owner: "a"}, &Node{Owner: "b"}, &Node{Owner: "c"}
	l.PushFront(a) // each push goes to the front, so the list ends up in reverse push order
	l.PushFront(b)
	l.PushFront(c)
	// list is now: c, b, a
	it := l.Iterate()
	var kept []any
	for it.Next() {
		if it.Node().Owner == "b" {
			it.Remove()
			continue
		}
		kept = append(kept, it.Node().Owner)
	}
	assert.Equal(t, []any{"c", "a"}, kept)
	assert.Equal(t, []any{"c", "a"}, collect(l))
}

func TestIterateFromSurvivesConcurrentFrontPush(t *testing.T) {
	l := NewList()
	a, b := &Node{Owner: "a"}, &Node{Owner: "b"}
	l.PushFront(a)
	l.PushFront(b)

	boundary := l.Front() // == b
	require.Equal(t, "b", boundary.Owner)

	// simulate a mutator allocating a new object after boundary capture
	newNode := &Node{Owner: "new"}
	l.PushFront(newNode)

	it := l.IterateFrom(boundary)
	var walked []any
	for it.Next() {
		walked = append(walked, it.Node().Owner)
	}
	assert.Equal(t, []any{"b", "a"}, walked, "walk must not see nodes pushed after boundary capture")
}

func TestSetActiveSnapshotAndFlip(t *testing.T) {
	s := NewSet()
	n := &Node{Owner: "obj"}
	s.Active(0).PushFront(n)
	assert.Equal(t, []any{"obj"}, collect(s.Active(0)))
	assert.True(t, s.Snapshot(0).Empty())

	// flip: index 1 becomes active, what was active (0) is now the snapshot role.
	assert.True(t, s.Active(1).Empty())
	assert.Equal(t, []any{"obj"}, collect(s.Snapshot(1)))
}

func TestSetMergeSnapshotIntoActive(t *testing.T) {
	s := NewSet()
	old := &Node{Owner: "old"}
	s.Active(0).PushFront(old) // pre-flip allocation lands in role 0

	// flip happened: role 1 is now active, role 0 (holding `old`) is snapshot.
	fresh := &Node{Owner: "fresh"}
	s.Active(1).PushFront(fresh)

	s.MergeSnapshotIntoActive(1)
	assert.Equal(t, []any{"old", "fresh"}, collect(s.Active(1)))
	assert.True(t, s.Snapshot(1).Empty())
	assert.Equal(t, "old", s.MergeBoundary().Owner)
}
