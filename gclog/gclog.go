// Package gclog provides the collector's cycle narration: a thin
// wrapper around *zap.Logger so the rest of the module can log structured
// fields without every package importing zap directly, in the manner of
// the reference object store's optional *zap.Logger-or-Nop constructor
// argument.
package gclog

import "go.uber.org/zap"

// Logger narrates collector-cycle events. The zero value is not usable;
// use New or Nop.
type Logger struct {
	z *zap.Logger
}

// New wraps an existing zap logger. If z is nil, logging is a no-op.
func New(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

// Nop returns a Logger that discards everything, for tests and callers
// that don't want GC narration.
func Nop() *Logger { return New(nil) }

// CycleStart logs the beginning of a collection cycle.
func (l *Logger) CycleStart(reason string, accumulatedBytes int64) {
	l.z.Info("gc: cycle start",
		zap.String("reason", reason),
		zap.Int64("accumulated_bytes", accumulatedBytes),
	)
}

// Phase logs a phase-state-machine transition.
func (l *Logger) Phase(from, to string) {
	l.z.Debug("gc: phase transition", zap.String("from", from), zap.String("to", to))
}

// SweepSummary logs the outcome of a sweep pass.
func (l *Logger) SweepSummary(marked, swept int) {
	l.z.Info("gc: sweep complete", zap.Int("marked", marked), zap.Int("swept", swept))
}

// RestoreSummary logs the outcome of the snapshot restore passes.
func (l *Logger) RestoreSummary(fastRestored, finalized int) {
	l.z.Info("gc: restore complete",
		zap.Int("fast_restored", fastRestored),
		zap.Int("finalized", finalized),
	)
}

// ThreadEvent logs a thread joining/leaving collection (InitThread,
// ExitThread).
func (l *Logger) ThreadEvent(event string, threadSlot int) {
	l.z.Debug("gc: thread event", zap.String("event", event), zap.Int("slot", threadSlot))
}

// Warn surfaces a non-fatal anomaly, e.g. an object finalizer panic
// recovered during sweep.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.z.Warn(msg, fields...)
}

// Fatal logs msg at fatal level and terminates the process. zap runs its
// fatal hook (os.Exit(1) by default) regardless of which core backs the
// logger, so this still aborts even under Nop. Reserved for conditions
// with no recovery path, such as handle-pool exhaustion.
func (l *Logger) Fatal(msg string, fields ...zap.Field) {
	l.z.Fatal(msg, fields...)
}

// Sync flushes any buffered log entries; call during ExitCollector.
func (l *Logger) Sync() error { return l.z.Sync() }
