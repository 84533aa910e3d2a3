package phase

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWordPacking(t *testing.T) {
	w := newWord(Collecting, 1, 2, 3, 4)
	assert.Equal(t, Collecting, w.Phase())
	assert.EqualValues(t, 1, w.OutOfCollection())
	assert.EqualValues(t, 2, w.InCollection())
	assert.EqualValues(t, 3, w.InSweep())
	assert.EqualValues(t, 4, w.NotMutating())

	w2 := w.withInCollection(+5)
	assert.EqualValues(t, 7, w2.InCollection())
	// untouched fields survive
	assert.Equal(t, Collecting, w2.Phase())
	assert.EqualValues(t, 1, w2.OutOfCollection())
}

func TestNewMachineStartsNotCollecting(t *testing.T) {
	m := NewMachine()
	w := m.Load()
	assert.Equal(t, NotCollecting, w.Phase())
	assert.Zero(t, w.OutOfCollection())
	assert.Zero(t, w.InCollection())
	assert.Zero(t, w.InSweep())
	assert.Zero(t, w.NotMutating())
}

// TestStartCollectionSoleMember checks the degenerate single-threaded case:
// the collector is the only member counted into NotCollecting, so
// StartCollection should transition and call onAlone on its first spin.
func TestStartCollectionSoleMember(t *testing.T) {
	m := NewMachine()
	var exit atomic.Bool
	calls := 0
	ok := m.StartCollection(&exit, func() { calls++ })
	require.True(t, ok)
	assert.Equal(t, 1, calls)
	assert.Equal(t, Collecting, m.Load().Phase())
	assert.Zero(t, m.Load().OutOfCollection())
}

// TestStartCollectionWaitsForMutators simulates one parked mutator that
// must safe-point out of NotCollecting before the collector's onAlone runs.
func TestStartCollectionWaitsForMutators(t *testing.T) {
	m := NewMachine()
	var exit atomic.Bool

	// Register a mutator into NotCollecting, mirroring InitThread.
	m.CountIntoCurrentPhase()

	var onAloneRan atomic.Bool
	done := make(chan bool)
	go func() {
		done <- m.StartCollection(&exit, func() { onAloneRan.Store(true) })
	}()

	// onAlone must not have run yet: two threads (the mutator we just
	// registered, plus the collector counting itself) are in
	// threads_out_of_collection.
	assert.False(t, onAloneRan.Load())

	// A safe point only moves the mutator once the collector has published
	// the new phase.
	for m.Load().Phase() != Collecting {
		runtime.Gosched()
	}

	// Mutator reaches its safe point and moves itself out.
	to, moved := m.AdvanceMutator(NotCollecting, &exit)
	assert.True(t, moved)
	assert.Equal(t, Collecting, to)

	require.True(t, <-done)
	assert.True(t, onAloneRan.Load())
	assert.Equal(t, Collecting, m.Load().Phase())
}

func TestLeaveAndEnterMutationRoundTrip(t *testing.T) {
	m := NewMachine()
	m.CountIntoCurrentPhase() // join NotCollecting, like InitThread
	assert.EqualValues(t, 1, m.Load().OutOfCollection())

	m.LeaveMutation(NotCollecting)
	assert.Zero(t, m.Load().OutOfCollection())
	assert.EqualValues(t, 1, m.Load().NotMutating())

	p := m.EnterMutation()
	assert.Equal(t, NotCollecting, p)
	assert.EqualValues(t, 1, m.Load().OutOfCollection())
	assert.Zero(t, m.Load().NotMutating())
}

func TestLeaveMutationExcludesThreadFromCollectorWait(t *testing.T) {
	m := NewMachine()
	m.CountIntoCurrentPhase()
	m.LeaveMutation(NotCollecting)

	var exit atomic.Bool
	calls := 0
	// The only other "mutator" left mutation, so the collector should see
	// itself as the sole member immediately, same as TestStartCollectionSoleMember.
	ok := m.StartCollection(&exit, func() { calls++ })
	require.True(t, ok)
	assert.Equal(t, 1, calls)
}

func TestEnterMutationJoinsWhicheverPhaseIsCurrent(t *testing.T) {
	m := NewMachine()
	m.CountIntoCurrentPhase()
	m.LeaveMutation(NotCollecting)

	var exit atomic.Bool
	require.True(t, m.StartCollection(&exit, func() {}))
	assert.Equal(t, Collecting, m.Load().Phase())

	p := m.EnterMutation()
	assert.Equal(t, Collecting, p, "a thread that left mutation before a transition rejoins whatever phase is current, not the one it left")
}

func TestFullCycleBalancesCounters(t *testing.T) {
	m := NewMachine()
	var exit atomic.Bool

	require.True(t, m.StartCollection(&exit, func() {}))
	assert.Equal(t, Collecting, m.Load().Phase())

	require.True(t, m.StartRestoreSnapshot(&exit, func() {}))
	assert.Equal(t, RestoringSnapshot, m.Load().Phase())

	require.True(t, m.EndSweep(&exit))
	assert.Equal(t, NotCollecting, m.Load().Phase())

	w := m.Load()
	assert.Zero(t, w.OutOfCollection())
	assert.Zero(t, w.InCollection())
	assert.Zero(t, w.InSweep())
	assert.Zero(t, w.NotMutating())
}

// TestConcurrentMutatorsDrainCollectionEdge exercises many goroutines
// safe-pointing concurrently through the NotCollecting -> Collecting edge
// while the collector drives it, verifying the out-of-collection counter
// returns to zero.
func TestConcurrentMutatorsDrainCollectionEdge(t *testing.T) {
	m := NewMachine()
	var exit atomic.Bool
	const n = 16

	for i := 0; i < n; i++ {
		m.CountIntoCurrentPhase()
	}

	var wg sync.WaitGroup
	release := make(chan struct{})
	advanced := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-release
			to, _ := m.AdvanceMutator(NotCollecting, &exit)
			assert.Equal(t, Collecting, to)
			advanced <- struct{}{}
		}()
	}

	started := make(chan bool)
	go func() {
		started <- m.StartCollection(&exit, func() {})
	}()
	// The mutators are released once the new phase is published; the
	// collector's onAlone cannot run before they have all moved out.
	for m.Load().Phase() != Collecting {
		runtime.Gosched()
	}
	close(release)

	require.True(t, <-started)
	for i := 0; i < n; i++ {
		<-advanced
	}
	wg.Wait()

	assert.Equal(t, Collecting, m.Load().Phase())
	assert.Zero(t, m.Load().OutOfCollection())
}
