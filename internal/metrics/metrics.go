// Package metrics is a minimal instrumentation facade. The sync engine calls
// the package-level functions; a backend (Datadog today) is installed once at
// startup with SetBackend. With no backend installed every call is a no-op, so
// library code never checks whether metrics are configured.
//
// Metric names used by the engine:
//
//	sync_runs_total            counter   labels: source, status
//	sync_windows_total         counter   labels: source, status
//	sync_records_total         counter   labels: source, kind (saved|updated|rejected)
//	sync_window_duration_seconds  histogram  labels: source, status
//	sync_run_duration_seconds     histogram  labels: source, status
package metrics

import "sync/atomic"

// Labels are metric dimensions. Keep cardinality low: sources and statuses,
// never record keys or window boundaries.
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use; per-source syncs run in parallel.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer and need a final push before
// process exit.
type Flusher interface {
	Flush() error
}

var backend atomic.Value // of Backend

// SetBackend installs the active backend. Call once during startup, before
// any syncs run.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend.Store(b)
}

func current() Backend {
	b, _ := backend.Load().(Backend)
	return b
}

// IncCounter adds delta to the named counter.
func IncCounter(name string, delta float64, labels Labels) {
	if b := current(); b != nil {
		b.IncCounter(name, delta, labels)
	}
}

// ObserveHistogram records one sample of the named histogram.
func ObserveHistogram(name string, value float64, labels Labels) {
	if b := current(); b != nil {
		b.ObserveHistogram(name, value, labels)
	}
}

// Flush pushes buffered metrics if the backend supports it. Safe with no
// backend installed.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}
