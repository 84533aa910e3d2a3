package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nbtaylor/portablegc/snapshot"
)

func TestZeroValueCellIsNull(t *testing.T) {
	var h Handle
	assert.Equal(t, snapshot.Null, h.Cell().Load())
}

func TestCellStoresAndLoads(t *testing.T) {
	var h Handle
	h.Cell().StoreBoth(snapshot.Handle(7))
	assert.Equal(t, snapshot.Handle(7), h.Cell().Load())
	assert.Equal(t, snapshot.Handle(7), h.Cell().LoadSnapshot())
}
