// Package trigger implements the allocation trigger:
// per-thread accumulation of allocation counts and bytes feeding a single
// global atomic counter, and the park/wake handoff that lets the
// collector goroutine sleep between cycles instead of spinning.
package trigger

import (
	"sync"
	"sync/atomic"
)

const (
	// OrdinaryAllocsPerFlush is how many ordinary (non-array) allocations
	// a thread accumulates locally before folding its byte total into the
	// global counter.
	OrdinaryAllocsPerFlush = 300

	// ArrayAllocsPerFlush is the same threshold for array allocations,
	// which tend to be larger and so are flushed more eagerly.
	ArrayAllocsPerFlush = 20

	// LargeAllocBytes is the single-allocation size that forces an
	// immediate flush regardless of the count thresholds above.
	LargeAllocBytes = 500_000

	// DefaultTriggerPoint is the default global byte total (accumulated
	// since the last collection) that fires a new cycle. Overridable via
	// the max-trigger environment variable; see gc.Config.
	DefaultTriggerPoint = 300_000_000

	// HandleTriggerCount is the per-thread used-handle count that forces
	// an early collection independent of byte accounting.
	HandleTriggerCount = 16384 * 1024
)

// Local is a single thread's accumulator. Not safe for concurrent use;
// one belongs to exactly one thread context.
type Local struct {
	ordinaryCount int
	arrayCount    int
	bytes         int64
	usedHandles   int64
}

// RecordOrdinary accounts for a non-array allocation of n bytes and
// reports whether the thread should flush into the global counter now.
func (l *Local) RecordOrdinary(n int64) bool {
	l.bytes += n
	l.ordinaryCount++
	return l.shouldFlush(n)
}

// RecordArray accounts for an array allocation of n bytes and reports
// whether the thread should flush now.
func (l *Local) RecordArray(n int64) bool {
	l.bytes += n
	l.arrayCount++
	return l.shouldFlush(n)
}

func (l *Local) shouldFlush(lastAllocBytes int64) bool {
	return l.ordinaryCount >= OrdinaryAllocsPerFlush ||
		l.arrayCount >= ArrayAllocsPerFlush ||
		lastAllocBytes >= LargeAllocBytes
}

// RecordHandleUse tracks one more handle consumed by this thread and
// reports whether the thread has crossed HandleTriggerCount.
func (l *Local) RecordHandleUse() bool {
	l.usedHandles++
	return l.usedHandles >= HandleTriggerCount
}

// Reset clears the local accumulator, typically right after a flush. The
// used-handles counter is intentionally not reset here: it tracks
// cumulative handle pressure for this thread's whole lifetime, not a
// per-flush window - it is an independent trigger from the byte count.
func (l *Local) Reset() {
	l.ordinaryCount = 0
	l.arrayCount = 0
	l.bytes = 0
}

// Bytes reports the thread's currently-accumulated, not-yet-flushed byte
// total.
func (l *Local) Bytes() int64 { return l.bytes }

// Global is the single process-wide allocation counter plus the
// condvar-based park/wake handoff the collector blocks on between
// cycles, grounded on the intention-lock's condvar-broadcast idiom.
type Global struct {
	mu          sync.Mutex
	cond        *sync.Cond
	accumulated int64
	triggerPt   int64
	pending     bool
	exited      bool
}

// NewGlobal returns a Global with the given trigger point (bytes).
func NewGlobal(triggerPoint int64) *Global {
	g := &Global{triggerPt: triggerPoint}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Flush folds a thread's locally-accumulated bytes into the global
// counter. If the counter has crossed the trigger point, it is
// CAS-exchanged back to zero and the collector is woken; forceWake asks
// for a wake regardless of the byte total (used by the handle-count
// trigger and by thread-exit flushes).
func (g *Global) Flush(local *Local, forceWake bool) {
	n := local.Bytes()
	local.Reset()
	if n == 0 && !forceWake {
		return
	}
	total := atomic.AddInt64(&g.accumulated, n)
	if forceWake || total >= atomic.LoadInt64(&g.triggerPt) {
		atomic.CompareAndSwapInt64(&g.accumulated, total, 0)
		g.wake()
	}
}

func (g *Global) wake() {
	g.mu.Lock()
	g.pending = true
	g.cond.Broadcast()
	g.mu.Unlock()
}

// TryConsume reports whether a trigger has fired since the last call,
// without blocking, and clears the pending flag if so. Used by the
// combined-mode safe point instead of the blocking Wait the dedicated
// collector goroutine uses.
func (g *Global) TryConsume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	fired := g.pending
	g.pending = false
	return fired
}

// SetTriggerPoint overrides the byte trigger point, e.g. from the
// max-trigger environment variable.
func (g *Global) SetTriggerPoint(n int64) { atomic.StoreInt64(&g.triggerPt, n) }

// Wait blocks the collector until a trigger fires or Exit is called,
// returning false in the latter case.
func (g *Global) Wait() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for !g.pending && !g.exited {
		g.cond.Wait()
	}
	fired := g.pending
	g.pending = false
	return fired
}

// Exit wakes a parked collector for the last time and makes all future
// Wait calls return immediately with false: once set, allocation
// triggers no longer signal the collector.
func (g *Global) Exit() {
	g.mu.Lock()
	g.exited = true
	g.cond.Broadcast()
	g.mu.Unlock()
}
