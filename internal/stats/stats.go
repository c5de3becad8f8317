// Package stats counts accepted and rejected records for one pipeline run.
//
// All counters are updated atomically, so a single *Stats can be shared by
// every worker of a run without additional locking.
package stats

import "sync/atomic"

// Stats accumulates per-run record counts. The zero value is ready to use.
type Stats struct {
	processed atomic.Int64 // lines validated and written to the sink
	skipped   atomic.Int64 // lines rejected by validation
}

// RecordProcessed counts one accepted line.
func (s *Stats) RecordProcessed() { s.processed.Add(1) }

// RecordSkipped counts one rejected line.
func (s *Stats) RecordSkipped() { s.skipped.Add(1) }

// Snapshot returns the current counts.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Processed: s.processed.Load(),
		Skipped:   s.skipped.Load(),
	}
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Processed int64 `json:"processed"`
	Skipped   int64 `json:"skipped"`
}

// Total is the number of non-blank data lines seen.
func (s Snapshot) Total() int64 { return s.Processed + s.Skipped }
