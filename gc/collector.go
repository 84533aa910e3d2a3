package gc

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nbtaylor/portablegc/gclog"
	"github.com/nbtaylor/portablegc/gcmetrics"
	"github.com/nbtaylor/portablegc/handle"
	"github.com/nbtaylor/portablegc/phase"
	"github.com/nbtaylor/portablegc/root"
	"github.com/nbtaylor/portablegc/scanlist"
	"github.com/nbtaylor/portablegc/trigger"
)

// Collector is the process-wide collector singleton: the phase state
// machine, active-list index, per-thread scan lists, and handle table all
// live on one value rather than as scattered globals. Construct exactly
// one with Init per process.
type Collector struct {
	cfg Config

	phase *phase.Machine
	table *handle.Table
	trig  *trigger.Global

	activeIndex int32

	threadSlots   []atomic.Bool
	threadObjects []*scanlist.Set
	threadRoots   []*scanlist.Set

	combinedThread bool
	exit           atomic.Bool
	wg             sync.WaitGroup

	log     *gclog.Logger
	metrics *gcmetrics.Metrics
}

// Init builds a Collector from cfg and either installs the caller as the
// single combined collector+mutator thread (combineThreadWithCaller) or
// spawns a dedicated collector goroutine. It returns the Collector and,
// in combined mode, the Mutator the caller should use; in dedicated mode
// the returned Mutator is nil and callers register their own threads
// with InitThread.
func Init(cfg Config, combineThreadWithCaller bool) (*Collector, *Mutator, error) {
	if cfg.Logger == nil {
		cfg.Logger = gclog.Nop()
	}
	c := &Collector{
		cfg:           cfg,
		phase:         phase.NewMachine(),
		table:         handle.NewTable(cfg.HandleBlocks, cfg.HandlesPerBlock, cfg.MaxThreads),
		trig:          trigger.NewGlobal(cfg.TriggerPoint),
		threadSlots:   make([]atomic.Bool, cfg.MaxThreads),
		threadObjects: make([]*scanlist.Set, cfg.MaxThreads),
		threadRoots:   make([]*scanlist.Set, cfg.MaxThreads),
		log:           cfg.Logger,
		metrics:       cfg.Metrics,
	}
	c.combinedThread = combineThreadWithCaller

	if combineThreadWithCaller {
		m, err := c.InitThread(true)
		if err != nil {
			return nil, nil, err
		}
		return c, m, nil
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runLoop()
	}()
	return c, nil, nil
}

// ExitCollector sets the exit flag, wakes a parked collector, and waits
// for the dedicated collector goroutine (if any) to join. Every blocking
// loop in the collector and phase machine checks this flag and bails out
// once it is set, so ExitCollector always returns.
func (c *Collector) ExitCollector() {
	c.exit.Store(true)
	c.trig.Exit()
	c.wg.Wait()
	_ = c.log.Sync()
}

// ActiveIndex returns the bit selecting which scan-list role is
// currently active across every thread.
func (c *Collector) ActiveIndex() int { return int(atomic.LoadInt32(&c.activeIndex)) }

func (c *Collector) flipActiveIndex() {
	atomic.StoreInt32(&c.activeIndex, int32(c.ActiveIndex()^1))
}

func (c *Collector) runLoop() {
	for {
		if c.exit.Load() {
			return
		}
		if !c.trig.Wait() {
			return
		}
		c.runCycleOnce()
	}
}

// runCycleOnce executes one full collection cycle: draining the previous
// cycle's freed handles, marking, sweeping, and restoring snapshot cells,
// in that order. Parking between cycles is the caller's job: the
// dedicated loop calls trig.Wait again, the combined mutator simply
// returns to SafePoint.
func (c *Collector) runCycleOnce() {
	start := time.Now()
	c.log.CycleStart("trigger", 0)
	exit := &c.exit

	// The blocks the previous cycle's sweep freed become safe to hand
	// out only now: any cell that still named one of those ids in its
	// snapshot half had that whole cycle's restore passes to repair it
	// before this point.
	c.table.DrainPending()

	if !c.phase.StartCollection(exit, c.flipActiveIndex) {
		return
	}
	c.log.Phase("NotCollecting", "Collecting")
	if c.metrics != nil {
		c.metrics.Phase.Set(float64(phase.Collecting))
	}

	marked, _ := c.mark()
	if c.exit.Load() {
		return
	}

	swept := c.sweep()
	if c.exit.Load() {
		return
	}
	c.log.SweepSummary(marked, swept)

	if !c.phase.StartRestoreSnapshot(exit, c.mergeAll) {
		return
	}
	c.log.Phase("Collecting", "RestoringSnapshot")
	if c.metrics != nil {
		c.metrics.Phase.Set(float64(phase.RestoringSnapshot))
	}

	fastRestored := c.fastRestoreAll()
	if c.exit.Load() {
		return
	}

	if !c.phase.EndSweep(exit) {
		return
	}
	c.log.Phase("RestoringSnapshot", "NotCollecting")

	// finalizeSnapshotAll's CAS-based repair assumes no mutator still
	// writes through the single-store collecting barrier by the time it
	// runs. That holds because every mutator switched off
	// CollectingBarrier no later than its own safe point during the
	// Collecting -> RestoringSnapshot edge above, which StartRestoreSnapshot
	// does not return from until every such switch has happened.
	finalized := c.finalizeSnapshotAll()

	if c.metrics != nil {
		c.metrics.CyclesTotal.Inc()
		c.metrics.ObjectsMarked.Add(float64(marked))
		c.metrics.LastCycleSeconds.Set(time.Since(start).Seconds())
		c.metrics.Phase.Set(float64(c.phase.Load().Phase()))
	}
	c.log.RestoreSummary(fastRestored, finalized)
}

// mark walks every thread's snapshot root list, applying each root's
// ownership-history rule and transitively marking reachable objects.
func (c *Collector) mark() (objectsMarked, rootsWalked int) {
	for slot := range c.threadRoots {
		if !c.threadSlots[slot].Load() {
			continue
		}
		list := c.threadRoots[slot].Snapshot(c.ActiveIndex())
		it := list.Iterate()
		for it.Next() {
			if c.exit.Load() {
				return
			}
			rh, ok := it.Node().Owner.(*root.Handle)
			if !ok {
				continue
			}
			rootsWalked++
			trace, prune := rh.Mark()
			if trace {
				objectsMarked += c.markFrom(rh.Cell().LoadSnapshot())
			}
			if prune {
				it.Remove()
			}
		}
	}
	return
}

// markFrom marks id and everything reachable from it that isn't already
// marked, using an explicit stack so a long reference chain can't blow
// the goroutine stack the way recursion would.
func (c *Collector) markFrom(start Handle) int {
	if start == 0 {
		return 0
	}
	marked := 0
	stack := []Handle{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == 0 {
			continue
		}
		raw := c.table.Slot(id)
		obj, ok := raw.(*object)
		if !ok || obj == nil || obj.marked {
			continue
		}
		obj.marked = true
		marked++
		n := obj.collectable.InstanceVarCount()
		for i := 0; i < n; i++ {
			iv := obj.collectable.InstanceVar(i)
			stack = append(stack, iv.Cell().LoadSnapshot())
		}
	}
	return marked
}

// sweep walks every thread's snapshot object list: unmarked objects are
// unlinked, finalized, and their handles freed; marked objects have their
// mark bit cleared and their cleanup hook (if any) invoked.
func (c *Collector) sweep() int {
	swept := 0
	for slot := range c.threadObjects {
		if !c.threadSlots[slot].Load() {
			continue
		}
		var chain handle.DeallocChain
		list := c.threadObjects[slot].Snapshot(c.ActiveIndex())
		it := list.Iterate()
		for it.Next() {
			if c.exit.Load() {
				break
			}
			obj, ok := it.Node().Owner.(*object)
			if !ok {
				continue
			}
			if obj.marked {
				obj.marked = false
				if hook, ok := obj.collectable.(CleanupHook); ok {
					hook.CleanAfterCollect()
				}
				continue
			}
			it.Remove()
			c.finalize(obj)
			c.table.Free(&chain, obj.handle)
			swept++
		}
		c.table.Flush(&chain)
	}
	if c.metrics != nil {
		c.metrics.ObjectsSwept.Add(float64(swept))
	}
	return swept
}

// finalize invokes an object's Finalizer hook, isolating any panic so a
// misbehaving type cannot derail the rest of the sweep: a user
// destructor's error is caught and logged per-object, never propagated.
// panic/recover is Go's own mechanism for this; there is no library to
// reach for in place of it.
func (c *Collector) finalize(obj *object) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn("gc: object finalizer panicked", zap.Any("recover", r))
		}
	}()
	if f, ok := obj.collectable.(Finalizer); ok {
		f.Finalize()
	}
}

// mergeAll splices every thread's snapshot lists back onto its active
// lists, run once while the collector has exclusive access at the
// Collecting -> RestoringSnapshot edge.
func (c *Collector) mergeAll() {
	idx := c.ActiveIndex()
	for slot := range c.threadObjects {
		if !c.threadSlots[slot].Load() {
			continue
		}
		c.threadObjects[slot].MergeSnapshotIntoActive(idx)
		c.threadRoots[slot].MergeSnapshotIntoActive(idx)
	}
}

// fastRestoreAll runs the non-atomic FastRestore over every cell in the
// region each thread's lists merged at this cycle.
func (c *Collector) fastRestoreAll() int {
	touched := 0
	idx := c.ActiveIndex()
	for slot := range c.threadObjects {
		if !c.threadSlots[slot].Load() {
			continue
		}
		objSet := c.threadObjects[slot]
		it := objSet.Active(idx).IterateFrom(objSet.MergeBoundary())
		for it.Next() {
			if c.exit.Load() {
				return touched
			}
			obj, ok := it.Node().Owner.(*object)
			if !ok {
				continue
			}
			n := obj.collectable.InstanceVarCount()
			for i := 0; i < n; i++ {
				obj.collectable.InstanceVar(i).Cell().FastRestore()
				touched++
			}
		}

		rootSet := c.threadRoots[slot]
		rit := rootSet.Active(idx).IterateFrom(rootSet.MergeBoundary())
		for rit.Next() {
			if c.exit.Load() {
				return touched
			}
			rh, ok := rit.Node().Owner.(*root.Handle)
			if !ok {
				continue
			}
			rh.Cell().FastRestore()
			touched++
		}
	}
	return touched
}

// finalizeSnapshotAll repeats fastRestoreAll's walk using the CAS-based
// Restore, repairing any race FastRestore's non-atomic access missed.
// Skipped entirely when the combined thread is the only thread currently
// registered, since with no other thread able to race the write barrier,
// the pass is provably a no-op.
func (c *Collector) finalizeSnapshotAll() int {
	if c.combinedThread && c.soleThread() {
		return 0
	}
	touched := 0
	idx := c.ActiveIndex()
	for slot := range c.threadObjects {
		if !c.threadSlots[slot].Load() {
			continue
		}
		objSet := c.threadObjects[slot]
		it := objSet.Active(idx).IterateFrom(objSet.MergeBoundary())
		for it.Next() {
			if c.exit.Load() {
				return touched
			}
			obj, ok := it.Node().Owner.(*object)
			if !ok {
				continue
			}
			n := obj.collectable.InstanceVarCount()
			for i := 0; i < n; i++ {
				obj.collectable.InstanceVar(i).Cell().Restore()
				touched++
			}
		}

		rootSet := c.threadRoots[slot]
		rit := rootSet.Active(idx).IterateFrom(rootSet.MergeBoundary())
		for rit.Next() {
			if c.exit.Load() {
				return touched
			}
			rh, ok := rit.Node().Owner.(*root.Handle)
			if !ok {
				continue
			}
			rh.Cell().Restore()
			touched++
		}
	}
	return touched
}

// soleThread reports whether exactly one thread slot is currently
// reserved, the condition under which the finalize-snapshot pass is
// provably redundant in combined mode.
func (c *Collector) soleThread() bool {
	count := 0
	for i := range c.threadSlots {
		if c.threadSlots[i].Load() {
			count++
			if count > 1 {
				return false
			}
		}
	}
	return count == 1
}
