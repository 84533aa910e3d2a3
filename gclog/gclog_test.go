package gclog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNopDiscardsEverything(t *testing.T) {
	l := Nop()
	l.CycleStart("trigger", 123)
	l.Phase("Collecting", "RestoringSnapshot")
	assert.NoError(t, l.Sync())
}

func TestCycleStartLogsFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := New(zap.New(core))
	l.CycleStart("byte-trigger", 42)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "gc: cycle start", entries[0].Message)
	}
}

func TestSweepSummaryLogsCounts(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := New(zap.New(core))
	l.SweepSummary(10, 3)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "gc: sweep complete", entries[0].Message)
	}
}
