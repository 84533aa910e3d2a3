// Package gcmetrics exports collector health as Prometheus metrics, in
// the style of the storage worker's metric-vectors-plus-MustRegister-once
// pattern, adapted into a constructor so an embedding process controls
// the registry instead of the package reaching for the global default.
package gcmetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the collector's exported series. Construct one with New
// and register it into whatever registry the host process uses.
// gc.Collector updates every series except HandlesInUse, which it never
// sets, so that gauge stays at zero.
type Metrics struct {
	CyclesTotal      prometheus.Counter
	ObjectsMarked    prometheus.Counter
	ObjectsSwept     prometheus.Counter
	HandlesInUse     prometheus.Gauge
	LastCycleSeconds prometheus.Gauge
	Phase            prometheus.Gauge
}

// New constructs an unregistered Metrics set.
func New() *Metrics {
	return &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portablegc_cycles_total",
			Help: "Total number of completed collection cycles.",
		}),
		ObjectsMarked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portablegc_objects_marked_total",
			Help: "Total number of objects found reachable across all mark passes.",
		}),
		ObjectsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portablegc_objects_swept_total",
			Help: "Total number of objects returned to the handle table as garbage.",
		}),
		HandlesInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portablegc_handles_in_use",
			Help: "Handles currently allocated out of the handle table.",
		}),
		LastCycleSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portablegc_last_cycle_seconds",
			Help: "Wall-clock duration of the most recently completed collection cycle.",
		}),
		Phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portablegc_phase",
			Help: "Current phase state machine value (0=NotCollecting, 1=Collecting, 2=RestoringSnapshot).",
		}),
	}
}

// Collectors returns every metric as a prometheus.Collector, for bulk
// registration: reg.MustRegister(m.Collectors()...).
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.CyclesTotal,
		m.ObjectsMarked,
		m.ObjectsSwept,
		m.HandlesInUse,
		m.LastCycleSeconds,
		m.Phase,
	}
}

// MustRegister registers every metric into reg, panicking on collision
// just as the package-level prometheus.MustRegister would.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.Collectors()...)
}
