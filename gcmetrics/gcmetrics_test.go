package gcmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCounter(t *testing.T, c prometheus.Counter) float64 {
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNewRegistersWithoutPanic(t *testing.T) {
	m := New()
	reg := prometheus.NewRegistry()
	assert.NotPanics(t, func() { m.MustRegister(reg) })
}

func TestCountersStartAtZero(t *testing.T) {
	m := New()
	assert.Equal(t, float64(0), readCounter(t, m.CyclesTotal))
}

func TestCollectorsIncludesEverySeries(t *testing.T) {
	m := New()
	assert.Len(t, m.Collectors(), 6)
}
