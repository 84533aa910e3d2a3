package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZeroValueIsNull(t *testing.T) {
	var c Cell
	assert.Equal(t, Null, c.Load())
	assert.Equal(t, Null, c.LoadSnapshot())
}

func TestStoreBothKeepsHalvesEqual(t *testing.T) {
	var c Cell
	c.StoreBoth(Handle(42))
	assert.EqualValues(t, 42, c.Load())
	assert.EqualValues(t, 42, c.LoadSnapshot())
}

func TestStoreCurrentOnlyLeavesSnapshot(t *testing.T) {
	var c Cell
	c.StoreBoth(Handle(7))
	c.StoreCurrentOnly(Handle(99))
	assert.EqualValues(t, 99, c.Load())
	assert.EqualValues(t, 7, c.LoadSnapshot())
}

func TestFastRestoreReconciles(t *testing.T) {
	var c Cell
	c.StoreBoth(Handle(1))
	c.StoreCurrentOnly(Handle(2))
	c.FastRestore()
	assert.EqualValues(t, 2, c.Load())
	assert.EqualValues(t, 2, c.LoadSnapshot())
}

func TestFastRestoreNoOpWhenEqual(t *testing.T) {
	var c Cell
	c.StoreBoth(Handle(5))
	c.FastRestore()
	assert.EqualValues(t, 5, c.Load())
	assert.EqualValues(t, 5, c.LoadSnapshot())
}

func TestRestoreReconciles(t *testing.T) {
	var c Cell
	c.StoreBoth(Handle(1))
	c.StoreCurrentOnly(Handle(3))
	c.Restore()
	assert.EqualValues(t, 3, c.Load())
	assert.EqualValues(t, 3, c.LoadSnapshot())
}

func TestBarrierVariants(t *testing.T) {
	var c Cell
	Regular(&c, Handle(10))
	assert.EqualValues(t, 10, c.Load())
	assert.EqualValues(t, 10, c.LoadSnapshot())

	CollectingBarrier(&c, Handle(20))
	assert.EqualValues(t, 20, c.Load())
	assert.EqualValues(t, 10, c.LoadSnapshot())
}
