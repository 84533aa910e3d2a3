package gc

import (
	"github.com/nbtaylor/portablegc/handle"
	"github.com/nbtaylor/portablegc/phase"
	"github.com/nbtaylor/portablegc/scanlist"
	"github.com/nbtaylor/portablegc/snapshot"
	"github.com/nbtaylor/portablegc/trigger"
)

// Mutator is a registered thread's handle onto the collector: its own
// active/snapshot object and root lists, its local handle free list, its
// allocation-trigger accumulator, and the write barrier it currently
// dispatches through. The original's thread_local storage has no Go
// equivalent, so callers carry their Mutator explicitly - one per
// goroutine that calls into GC-managed code.
type Mutator struct {
	c        *Collector
	slot     int
	combined bool

	mirror  phase.Phase
	barrier snapshot.Barrier

	objects *scanlist.Set
	roots   *scanlist.Set

	localFree handle.LocalFreeList
	trig      trigger.Local

	notMutDepth int
}

// InitThread registers the calling goroutine as a mutator, reserving one
// of Config.MaxThreads slots via CAS over a fixed bool array. combine
// marks this as the single combined collector+mutator thread;
// its SafePoint calls will themselves drive collection cycles instead of
// waiting on a dedicated collector goroutine.
func (c *Collector) InitThread(combine bool) (*Mutator, error) {
	slot := -1
	for i := range c.threadSlots {
		if c.threadSlots[i].CompareAndSwap(false, true) {
			slot = i
			break
		}
	}
	if slot == -1 {
		return nil, ErrTooManyThreads
	}

	// Scan-list sets persist for the lifetime of the table, not of any one
	// thread occupying the slot: a prior occupant's un-swept allocations
	// must still be visible to the next cycle even after it exits.
	if c.threadObjects[slot] == nil {
		c.threadObjects[slot] = scanlist.NewSet()
		c.threadRoots[slot] = scanlist.NewSet()
	}

	m := &Mutator{
		c:        c,
		slot:     slot,
		combined: combine,
		objects:  c.threadObjects[slot],
		roots:    c.threadRoots[slot],
	}
	m.mirror = c.phase.CountIntoCurrentPhase()
	m.switchBarrier(m.mirror)
	c.log.ThreadEvent("init_thread", slot)
	return m, nil
}

// ExitThread flushes any unreported allocation bytes (thread exit is one
// of the flush triggers), releases this thread's phase-counter
// membership, and frees its slot for reuse. The thread's
// already-allocated objects and roots remain linked in its scan lists;
// they are still live data, collected in later cycles same as any other
// thread's.
func (m *Mutator) ExitThread() {
	m.c.trig.Flush(&m.trig, true)
	m.c.phase.CountOutOf(m.mirror)
	m.c.threadSlots[m.slot].Store(false)
	m.c.log.ThreadEvent("exit_thread", m.slot)
}

func (m *Mutator) switchBarrier(p phase.Phase) {
	if p == phase.Collecting {
		m.barrier = snapshot.CollectingBarrier
	} else {
		m.barrier = snapshot.Regular
	}
}

// SafePoint is the mutator-facing function the host inserts at loop
// backedges and before blocking calls. It first runs an inline
// collection if this is the combined thread and a trigger fired,
// then observes the global phase and, if it has changed, migrates this
// thread's counter membership and write barrier.
func (m *Mutator) SafePoint() {
	m.RunCombinedIfPending()

	global := m.c.phase.Load().Phase()
	if m.mirror == global {
		return
	}
	to, moved := m.c.phase.AdvanceMutator(m.mirror, &m.c.exit)
	if moved {
		m.mirror = to
		m.switchBarrier(to)
	}
}

// RunCombinedIfPending drives one collection cycle inline if this is the
// combined thread and the allocation trigger has fired since the last
// check. It is called automatically by SafePoint and by Allocate; hosts
// normally never need to call it directly.
func (m *Mutator) RunCombinedIfPending() {
	if !m.combined {
		return
	}
	if !m.c.trig.TryConsume() {
		return
	}
	m.LeaveMutation()
	m.c.runCycleOnce()
	m.EnterMutation()
}

// LeaveMutation brackets code that may block indefinitely: it moves this
// thread out of its current phase counter and into
// threads_not_mutating so the collector need not wait on it. Calls
// nest; only the outermost LeaveMutation actually changes counters.
func (m *Mutator) LeaveMutation() {
	m.notMutDepth++
	if m.notMutDepth == 1 {
		m.c.phase.LeaveMutation(m.mirror)
		m.mirror = phase.NotMutating
	}
}

// EnterMutation is LeaveMutation's matching bracket: it decrements
// threads_not_mutating and rejoins whatever phase is current, which may
// differ from the phase this thread left if a transition completed while
// it was out.
func (m *Mutator) EnterMutation() {
	m.notMutDepth--
	if m.notMutDepth == 0 {
		p := m.c.phase.EnterMutation()
		m.mirror = p
		m.switchBarrier(p)
	}
}
