// Package metrics is the process-wide metrics facade. Core packages record
// through the package-level helpers; the CLI installs a concrete Backend
// (Datadog, or the nop default).
package metrics

import (
	"sync"
	"time"
)

// Metric names understood by backends.
const (
	StepTotal           = "tap_step_total"
	StepDuration        = "tap_step_duration_seconds"
	RecordsTotal        = "tap_records_total"
	FilesTotal          = "tap_files_total"
	StoreRequestsTotal  = "tap_store_requests_total"
	StoreErrorsTotal    = "tap_store_errors_total"
	StoreRequestSeconds = "tap_store_request_duration_seconds"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric events. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer.
type Flusher interface {
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b. A nil b restores the nop backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a counter.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the installed backend if it buffers.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// RecordStep counts one pipeline step and its duration.
func RecordStep(step string, err error, d time.Duration) {
	l := Labels{"step": step, "status": status(err)}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDuration, d.Seconds(), l)
}

// RecordRecords counts emitted records for table.
func RecordRecords(table string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RecordsTotal, float64(n), Labels{"table": table})
}

// RecordFile counts one processed file for table.
func RecordFile(table string, err error) {
	IncCounter(FilesTotal, 1, Labels{"table": table, "status": status(err)})
}

// RecordStoreRequest counts one object-store call.
func RecordStoreRequest(op string, err error, d time.Duration) {
	st := status(err)
	IncCounter(StoreRequestsTotal, 1, Labels{"op": op, "status": st})
	if err != nil {
		IncCounter(StoreErrorsTotal, 1, Labels{"op": op})
	}
	ObserveHistogram(StoreRequestSeconds, d.Seconds(), Labels{"op": op})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
