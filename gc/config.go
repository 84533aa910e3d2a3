package gc

import (
	"os"
	"strconv"

	"github.com/nbtaylor/portablegc/gclog"
	"github.com/nbtaylor/portablegc/gcmetrics"
	"github.com/nbtaylor/portablegc/trigger"
)

// MaxTriggerEnvVar overrides Config.TriggerPoint at startup with a
// numeric byte threshold, for tuning collection frequency without a
// rebuild.
const MaxTriggerEnvVar = "PORTABLEGC_MAX_TRIGGER"

// Config sizes and wires a Collector. Init fills in only a nil Logger;
// every other field is used exactly as given, so callers normally start
// from DefaultConfig() and override only what they need.
type Config struct {
	// HandleBlocks is the number of recyclable blocks the handle table
	// carves at startup.
	HandleBlocks int
	// HandlesPerBlock is how many handle ids each block contains.
	HandlesPerBlock int
	// MaxThreads bounds concurrently-registered mutator threads.
	MaxThreads int
	// TriggerPoint is the accumulated-byte threshold that fires a cycle.
	TriggerPoint int64
	// Logger narrates cycle events; nil means no-op.
	Logger *gclog.Logger
	// Metrics exports collector health as Prometheus series; nil disables
	// metrics entirely.
	Metrics *gcmetrics.Metrics
}

// DefaultConfig returns sane defaults: a modest handle pool suitable for
// an embedding process, 256 max threads, and a 300 million byte trigger
// point, overridable by MaxTriggerEnvVar.
func DefaultConfig() Config {
	cfg := Config{
		HandleBlocks:    1024,
		HandlesPerBlock: 1024,
		MaxThreads:      256,
		TriggerPoint:    trigger.DefaultTriggerPoint,
		Logger:          gclog.Nop(),
	}
	if v, ok := os.LookupEnv(MaxTriggerEnvVar); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.TriggerPoint = n
		}
	}
	return cfg
}
