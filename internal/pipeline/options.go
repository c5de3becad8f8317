package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"csvsift/internal/logger"
	"csvsift/internal/metrics"
	"csvsift/internal/skiplog"
)

const (
	// DefaultBatchSize bounds concurrent units (and, for DispatchBatch, the
	// number of lines per batch).
	DefaultBatchSize = 1000
	// DefaultProgressEvery is the heartbeat interval in lines read.
	DefaultProgressEvery = 100_000
)

// Dispatch selects how data lines are handed to concurrent units.
type Dispatch string

const (
	// DispatchPool runs a fixed set of workers fed by a bounded channel.
	DispatchPool Dispatch = "pool"
	// DispatchBatch groups lines into batches and settles each batch before
	// reading the next one.
	DispatchBatch Dispatch = "batch"
)

// ErrUnknownDispatch is returned for a dispatch name other than pool or batch.
var ErrUnknownDispatch = errors.New("unknown dispatch")

// ParseDispatch maps a case-insensitive name to a Dispatch. Empty means
// DispatchPool.
func ParseDispatch(s string) (Dispatch, error) {
	switch d := Dispatch(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return DispatchPool, nil
	case DispatchPool, DispatchBatch:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDispatch, s)
	}
}

type options struct {
	batchSize     int
	dispatch      Dispatch
	log           logger.Logger
	metrics       *metrics.Recorder
	rejects       *skiplog.Log
	progressEvery int64
}

// Option customizes a run.
type Option func(*options)

func newOptions(opts []Option) options {
	o := options{
		batchSize:     DefaultBatchSize,
		dispatch:      DispatchPool,
		log:           logger.NewNoopLogger(),
		progressEvery: DefaultProgressEvery,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithBatchSize sets the concurrency bound. Non-positive values keep the
// default.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithDispatch selects the dispatch strategy.
func WithDispatch(d Dispatch) Option {
	return func(o *options) { o.dispatch = d }
}

// WithLogger sets the run logger. A nil logger keeps the no-op default.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMetrics records per-run counters and duration on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *options) { o.metrics = r }
}

// WithRejects writes every skipped line to l. The caller keeps ownership of
// l and closes it after the run.
func WithRejects(l *skiplog.Log) Option {
	return func(o *options) { o.rejects = l }
}

// WithProgressEvery sets the heartbeat interval; zero or less disables it.
func WithProgressEvery(n int64) Option {
	return func(o *options) { o.progressEvery = n }
}
