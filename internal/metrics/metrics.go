// Package metrics is a backend-agnostic facade for run metrics.
//
// Callers depend on Backend and Recorder only; concrete systems live in the
// prompush and datadog subpackages. The zero Recorder and a nil backend both
// fall back to Nop, so instrumentation is always safe to call.
package metrics

import "time"

// Metric names emitted by the pipeline.
const (
	RecordsTotal       = "csvsift_records_total"
	RunTotal           = "csvsift_run_total"
	RunDurationSeconds = "csvsift_run_duration_seconds"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it.
	Flush() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}
func (Nop) Flush() error                             { return nil }

// Recorder binds a Backend to a job name and knows the pipeline's metric
// vocabulary.
type Recorder struct {
	job     string
	backend Backend
}

// NewRecorder returns a Recorder. A nil backend is replaced by Nop.
func NewRecorder(job string, b Backend) *Recorder {
	if b == nil {
		b = Nop{}
	}
	return &Recorder{job: job, backend: b}
}

func (r *Recorder) be() Backend {
	if r == nil || r.backend == nil {
		return Nop{}
	}
	return r.backend
}

// Job returns the job label.
func (r *Recorder) Job() string {
	if r == nil {
		return ""
	}
	return r.job
}

// RecordRecords increments the record counter for kind (processed, skipped).
func (r *Recorder) RecordRecords(kind string, delta int64) {
	if delta <= 0 {
		return
	}
	r.be().IncCounter(RecordsTotal, float64(delta), Labels{
		"job":  r.Job(),
		"kind": kind,
	})
}

// RecordRun counts one finished run and observes its duration, both
// partitioned by final status.
func (r *Recorder) RecordRun(status string, d time.Duration) {
	lbls := Labels{
		"job":    r.Job(),
		"status": status,
	}
	b := r.be()
	b.IncCounter(RunTotal, 1, lbls)
	b.ObserveHistogram(RunDurationSeconds, d.Seconds(), lbls)
}

// Flush delegates to the backend.
func (r *Recorder) Flush() error {
	return r.be().Flush()
}
