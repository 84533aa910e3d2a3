// Package phase implements the collector's global phase state machine: a
// single packed, atomically-CASed state word shared by every mutator thread
// and the collector, counting threads in and out of each phase so that a
// phase transition can tell when it has exclusive access to the heap.
//
// The word layout mirrors the teacher's packed-uint64-with-named-bitfields
// style (see ilock.Mutex's S/X/IS/IX counters): four 8-bit thread counters
// and an 8-bit phase tag share one uint64, so the whole thing can be read,
// compared and swapped with a single atomic instruction.
//
//	|39    32|31    24|23    16|15     8|7      0|
//	\ notmut / \ incol / \ swep / \ outof/ \ phase/
package phase

import (
	"runtime"
	"sync/atomic"
)

// Phase is the global collection phase. ThreadMirror additionally admits
// NotMutating, which only ever appears as a per-thread value: the global
// word never holds it.
type Phase uint8

const (
	NotCollecting Phase = iota
	Collecting
	RestoringSnapshot
	NotMutating
)

func (p Phase) String() string {
	switch p {
	case NotCollecting:
		return "NotCollecting"
	case Collecting:
		return "Collecting"
	case RestoringSnapshot:
		return "RestoringSnapshot"
	case NotMutating:
		return "NotMutating"
	default:
		return "Unknown"
	}
}

const (
	phaseOffset = 0
	phaseMask   = 0xFF << phaseOffset

	outOffset = 8
	outMask   = 0xFF << outOffset

	sweepOffset = 16
	sweepMask   = 0xFF << sweepOffset

	collOffset = 24
	collMask   = 0xFF << collOffset

	notMutOffset = 32
	notMutMask   = 0xFF << notMutOffset
)

// Word is the packed state: a phase tag plus four "threads counted into
// this phase" counters, one per phase. It is a plain value type; Machine
// is the atomically-shared cell that holds one.
type Word uint64

func newWord(p Phase, outOfCollection, inCollection, inSweep, notMutating uint8) Word {
	return Word(uint64(p)<<phaseOffset |
		uint64(outOfCollection)<<outOffset |
		uint64(inCollection)<<collOffset |
		uint64(inSweep)<<sweepOffset |
		uint64(notMutating)<<notMutOffset)
}

func (w Word) Phase() Phase { return Phase((uint64(w) & phaseMask) >> phaseOffset) }

func (w Word) OutOfCollection() uint8 { return uint8((uint64(w) & outMask) >> outOffset) }
func (w Word) InCollection() uint8    { return uint8((uint64(w) & collMask) >> collOffset) }
func (w Word) InSweep() uint8         { return uint8((uint64(w) & sweepMask) >> sweepOffset) }
func (w Word) NotMutating() uint8     { return uint8((uint64(w) & notMutMask) >> notMutOffset) }

func (w Word) withPhase(p Phase) Word {
	return Word(uint64(w)&^uint64(phaseMask) | uint64(p)<<phaseOffset)
}

func (w Word) withOutOfCollection(delta int) Word {
	return Word(uint64(w)&^uint64(outMask) | uint64(uint8(int(w.OutOfCollection())+delta))<<outOffset)
}

func (w Word) withInCollection(delta int) Word {
	return Word(uint64(w)&^uint64(collMask) | uint64(uint8(int(w.InCollection())+delta))<<collOffset)
}

func (w Word) withInSweep(delta int) Word {
	return Word(uint64(w)&^uint64(sweepMask) | uint64(uint8(int(w.InSweep())+delta))<<sweepOffset)
}

func (w Word) withNotMutating(delta int) Word {
	return Word(uint64(w)&^uint64(notMutMask) | uint64(uint8(int(w.NotMutating())+delta))<<notMutOffset)
}

// counterFor returns the thread count belonging to phase p.
func (w Word) counterFor(p Phase) uint8 {
	switch p {
	case NotCollecting:
		return w.OutOfCollection()
	case Collecting:
		return w.InCollection()
	case RestoringSnapshot:
		return w.InSweep()
	default:
		return w.NotMutating()
	}
}

func (w Word) withDelta(p Phase, delta int) Word {
	switch p {
	case NotCollecting:
		return w.withOutOfCollection(delta)
	case Collecting:
		return w.withInCollection(delta)
	case RestoringSnapshot:
		return w.withInSweep(delta)
	default:
		return w.withNotMutating(delta)
	}
}

// Machine is the process-wide phase word plus the CAS-retry transition
// edges between NotCollecting, Collecting and RestoringSnapshot. All
// mutating operations spin with
// runtime.Gosched() rather than blocking, matching the original's
// sched_yield()/SwitchToThread() busy-wait.
type Machine struct {
	word uint64
}

// NewMachine returns a Machine starting in NotCollecting with every counter
// zeroed; the caller is expected to count its own threads in via
// CountIntoCurrentPhase as they call InitThread.
func NewMachine() *Machine {
	m := &Machine{}
	atomic.StoreUint64(&m.word, uint64(newWord(NotCollecting, 0, 0, 0, 0)))
	return m
}

func (m *Machine) Load() Word { return Word(atomic.LoadUint64(&m.word)) }

func (m *Machine) cas(old, next Word) bool {
	return atomic.CompareAndSwapUint64(&m.word, uint64(old), uint64(next))
}

// CountIntoCurrentPhase atomically bumps the counter matching whatever
// phase is current at the moment of the call, returning that phase. Used
// by InitThread/EnterMutation to join the right bucket without racing a
// concurrent transition.
func (m *Machine) CountIntoCurrentPhase() Phase {
	for {
		cur := m.Load()
		p := cur.Phase()
		next := cur.withDelta(p, +1)
		if m.cas(cur, next) {
			return p
		}
	}
}

// CountOutOf decrements the counter for phase p exactly once.
func (m *Machine) CountOutOf(p Phase) {
	for {
		cur := m.Load()
		next := cur.withDelta(p, -1)
		if m.cas(cur, next) {
			return
		}
	}
}

// spinUntilZero busy-waits, yielding the processor, until counterFor(p)
// reaches zero or exit fires.
func (m *Machine) spinUntilZero(p Phase, exit *atomic.Bool) bool {
	for {
		if exit != nil && exit.Load() {
			return false
		}
		if m.Load().counterFor(p) == 0 {
			return true
		}
		runtime.Gosched()
	}
}

// StartCollection performs the NotCollecting -> Collecting edge. It
// counts the collector itself into threads_out_of_collection,
// spins until it is the sole member (every mutator has safe-pointed out),
// invokes onAlone exactly once while holding exclusive access (the
// teacher's list-flip hook), then releases itself and waits for the
// counter to reach zero. Returns false only if exit fired first.
func (m *Machine) StartCollection(exit *atomic.Bool, onAlone func()) bool {
	cur := m.Load()
	for {
		if exit != nil && exit.Load() {
			return false
		}
		next := cur.withPhase(Collecting).withOutOfCollection(+1)
		if m.cas(cur, next) {
			cur = next
			break
		}
		cur = m.Load()
	}

	ranOnAlone := false
	released := false
	for {
		if exit != nil && exit.Load() {
			return false
		}
		if cur.OutOfCollection() == 1 {
			if !ranOnAlone {
				onAlone()
				ranOnAlone = true
			}
			if !released {
				for {
					next := cur.withOutOfCollection(-1)
					if m.cas(cur, next) {
						cur = next
						break
					}
					cur = m.Load()
				}
				released = true
			}
			if cur.OutOfCollection() == 0 {
				return true
			}
		}
		runtime.Gosched()
		cur = m.Load()
	}
}

// StartRestoreSnapshot performs the Collecting -> RestoringSnapshot edge;
// same shape as StartCollection but counts out of threads_in_collection.
func (m *Machine) StartRestoreSnapshot(exit *atomic.Bool, onAlone func()) bool {
	cur := m.Load()
	for {
		if exit != nil && exit.Load() {
			return false
		}
		next := cur.withPhase(RestoringSnapshot).withInCollection(+1)
		if m.cas(cur, next) {
			cur = next
			break
		}
		cur = m.Load()
	}

	ranOnAlone := false
	released := false
	for {
		if exit != nil && exit.Load() {
			return false
		}
		if cur.InCollection() == 1 {
			if !ranOnAlone {
				onAlone()
				ranOnAlone = true
			}
			if !released {
				for {
					next := cur.withInCollection(-1)
					if m.cas(cur, next) {
						cur = next
						break
					}
					cur = m.Load()
				}
				released = true
			}
			if cur.InCollection() == 0 {
				return true
			}
		}
		runtime.Gosched()
		cur = m.Load()
	}
}

// EndSweep performs the RestoringSnapshot -> NotCollecting edge. No list
// work is required at this border, so there is no onAlone
// hook; the collector still waits for every mutator to count out of
// threads_in_sweep before proceeding to finalize-snapshot.
func (m *Machine) EndSweep(exit *atomic.Bool) bool {
	cur := m.Load()
	for {
		if exit != nil && exit.Load() {
			return false
		}
		next := cur.withPhase(NotCollecting).withInSweep(+1)
		if m.cas(cur, next) {
			cur = next
			break
		}
		cur = m.Load()
	}

	released := false
	for {
		if exit != nil && exit.Load() {
			return false
		}
		if cur.InSweep() == 1 {
			if !released {
				for {
					next := cur.withInSweep(-1)
					if m.cas(cur, next) {
						cur = next
						break
					}
					cur = m.Load()
				}
				released = true
			}
			if cur.InSweep() == 0 {
				return true
			}
		}
		runtime.Gosched()
		cur = m.Load()
	}
}

// LeaveMutation moves the calling thread's count out of phase p (its
// current mirrored phase, which may be NotCollecting, Collecting, or
// RestoringSnapshot but never NotMutating) and into threads_not_mutating.
func (m *Machine) LeaveMutation(p Phase) {
	for {
		cur := m.Load()
		next := cur.withDelta(p, -1).withDelta(NotMutating, +1)
		if m.cas(cur, next) {
			return
		}
	}
}

// EnterMutation moves the calling thread out of threads_not_mutating and
// into whichever phase is current at the moment of the call, returning
// that phase. If a transition is racing this call, the CAS retry loop
// simply re-reads the (possibly now-different) phase and rejoins it -
// there is no separate wait, just joining whatever the phase has already
// become.
func (m *Machine) EnterMutation() Phase {
	for {
		cur := m.Load()
		p := cur.Phase()
		next := cur.withDelta(NotMutating, -1).withDelta(p, +1)
		if m.cas(cur, next) {
			return p
		}
	}
}

// AdvanceMutator performs the mutator side of a safe point: if the
// thread's mirrored phase differs from the global phase, it moves itself
// from the old phase's counter to the new one and spins until the old
// counter drains, guaranteeing that no thread still believes it holds the
// previous phase's write barrier once this returns. Returns the phase the
// thread is now in.
func (m *Machine) AdvanceMutator(from Phase, exit *atomic.Bool) (to Phase, moved bool) {
	global := m.Load().Phase()
	if global == from {
		return from, false
	}

	cur := m.Load()
	for {
		if exit != nil && exit.Load() {
			return from, false
		}
		to = cur.Phase()
		next := cur.withDelta(from, -1).withDelta(to, +1)
		if m.cas(cur, next) {
			break
		}
		cur = m.Load()
	}
	m.spinUntilZero(from, exit)
	return to, true
}
