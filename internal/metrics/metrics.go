// Package metrics is the seam between the converter and a metrics backend.
//
// Core code records through the package-level helpers; the CLI installs a
// concrete backend (Datadog) with SetBackend. The default backend discards
// everything.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Metric names recorded by the converter.
const (
	TablesTotal         = "sqlconv_tables_total"
	RowsTotal           = "sqlconv_rows_total"
	StatementsTotal     = "sqlconv_statements_total"
	ChunksTotal         = "sqlconv_chunks_total"
	StepTotal           = "sqlconv_step_total"
	StepDurationSeconds = "sqlconv_step_duration_seconds"

	HTTPRequestsTotal          = "sqlconv_http_requests_total"
	HTTPRequestDurationSeconds = "sqlconv_http_request_duration_seconds"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric samples. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer samples.
type Flusher interface {
	Flush() error
}

// Nop discards all samples.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = Nop{}
)

// SetBackend installs b for all package-level helpers. nil restores Nop.
func SetBackend(b Backend) {
	if b == nil {
		b = Nop{}
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush flushes the installed backend when it buffers.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// RecordStep counts one execution of a pipeline step and observes its
// duration. status is "ok" when err is nil and "error" otherwise.
func RecordStep(step string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	b := current()
	l := Labels{"step": step, "status": status}
	b.IncCounter(StepTotal, 1, l)
	b.ObserveHistogram(StepDurationSeconds, time.Since(start).Seconds(), l)
}

// RecordTable counts a table outcome ("ok", "failed", "skipped").
func RecordTable(status string) {
	current().IncCounter(TablesTotal, 1, Labels{"status": status})
}

// RecordRows counts rendered data rows.
func RecordRows(n int) {
	if n > 0 {
		current().IncCounter(RowsTotal, float64(n), nil)
	}
}

// RecordStatements counts generated statements of a kind ("ddl",
// "insert", "comment").
func RecordStatements(kind string, n int) {
	if n > 0 {
		current().IncCounter(StatementsTotal, float64(n), Labels{"kind": kind})
	}
}

// RecordChunks counts chunks written by the splitter.
func RecordChunks(n int) {
	if n > 0 {
		current().IncCounter(ChunksTotal, float64(n), nil)
	}
}

// RecordHTTP counts one API request and observes its latency.
func RecordHTTP(status int, d time.Duration) {
	b := current()
	l := Labels{"status": strconv.Itoa(status)}
	b.IncCounter(HTTPRequestsTotal, 1, l)
	b.ObserveHistogram(HTTPRequestDurationSeconds, d.Seconds(), l)
}
