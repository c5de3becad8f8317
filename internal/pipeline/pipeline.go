// Package pipeline runs the streaming validate-transform-write job.
//
// A run reads the input line by line, resolves the header from the first
// line, and hands every remaining line to a bounded set of concurrent units.
// Each unit validates its line, appends accepted output to the shared sink,
// and updates the shared counters. Peak memory is bounded by the batch size,
// never by the input size.
//
// Failure policy:
//
//   - a malformed header fails the run before any data line is read;
//   - a read error, sink write error or context cancellation aborts the run;
//   - an aborted run, or one that accepted no line, leaves no output file.
//
// Per-line rejections are counted, never returned as errors.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"csvsift/internal/datasource"
	"csvsift/internal/datasource/file"
	"csvsift/internal/fingerprint"
	"csvsift/internal/header"
	"csvsift/internal/linesource"
	"csvsift/internal/logger"
	"csvsift/internal/record"
	"csvsift/internal/sink"
	"csvsift/internal/skiplog"
	"csvsift/internal/stats"
)

// Result describes a finished run.
type Result struct {
	RunID       string
	Stats       stats.Snapshot
	State       State
	Reasons     map[string]int64 // skipped lines per reason
	Fingerprint fingerprint.Sum  // order-independent digest of accepted lines
	LinesRead   int64            // physical lines read, header included
	StartedAt   time.Time
	Duration    time.Duration
}

// Run processes the file at in and writes accepted records to out.
func Run(ctx context.Context, in, out string, opts ...Option) (stats.Snapshot, error) {
	res, err := RunDetailed(ctx, in, out, opts...)
	return res.Stats, err
}

// RunDetailed is Run with the full Result.
func RunDetailed(ctx context.Context, in, out string, opts ...Option) (Result, error) {
	return RunSource(ctx, file.NewLocal(in), out, opts...)
}

// RunSource is RunDetailed over an arbitrary line source.
func RunSource(ctx context.Context, src datasource.Source, out string, opts ...Option) (Result, error) {
	o := newOptions(opts)
	if _, err := ParseDispatch(string(o.dispatch)); err != nil {
		return Result{State: StateDeletedError}, err
	}

	r := &run{
		opts:    o,
		src:     src,
		outPath: out,
		rejects: o.rejects,
		res: Result{
			RunID:     ulid.Make().String(),
			StartedAt: time.Now(),
		},
	}
	if r.rejects == nil {
		r.rejects, _ = skiplog.New("")
	}
	r.log = o.log.With(
		zap.String("run_id", r.res.RunID),
		zap.String("input", sourceName(src)),
		zap.String("output", out),
	)

	err := r.finish(r.execute(ctx))
	return r.res, err
}

// run holds the state shared by the units of one execution.
type run struct {
	opts    options
	src     datasource.Source
	outPath string
	log     logger.Logger
	rejects *skiplog.Log

	cols  header.Columns
	sink  *sink.Sink
	stats stats.Stats
	fp    fingerprint.Set
	lines int64 // touched only by the reading goroutine

	res Result
}

// line is one numbered data line; the header is line 1.
type line struct {
	num  int64
	text string
}

func (r *run) execute(ctx context.Context) error {
	r.log.Info("run started",
		zap.Int("batch_size", r.opts.batchSize),
		zap.String("dispatch", string(r.opts.dispatch)),
	)
	r.transition(StateInit)

	next, stop := iter.Pull2(linesource.Lines(ctx, r.src))
	defer stop()

	first, err, ok := next()
	if !ok {
		// No lines at all: nothing to resolve, nothing to keep.
		r.transition(StateDeletedEmpty)
		return sink.Remove(r.outPath)
	}
	if err != nil {
		return err
	}
	r.lines++

	cols, err := header.Resolve(first)
	if err != nil {
		return err
	}
	r.cols = cols
	r.transition(StateHeaderResolved)

	s, err := sink.Create(r.outPath, header.Canonical)
	if err != nil {
		return err
	}
	r.sink = s

	r.transition(StateStreaming)
	switch r.opts.dispatch {
	case DispatchBatch:
		err = r.dispatchBatches(ctx, next)
	default:
		err = r.dispatchPool(ctx, next)
	}
	if err == nil {
		// A unit may finish cleanly after the caller gave up.
		err = ctx.Err()
	}
	return err
}

// read pulls the next data line, counting it and emitting the progress
// heartbeat. ok is false at end of input or on error.
func (r *run) read(next func() (string, error, bool)) (line, bool, error) {
	text, err, ok := next()
	if !ok {
		return line{}, false, nil
	}
	if err != nil {
		return line{}, false, err
	}
	r.lines++
	if every := r.opts.progressEvery; every > 0 && r.lines%every == 0 {
		snap := r.stats.Snapshot()
		r.log.Info("progress",
			zap.Int64("lines_read", r.lines),
			zap.Int64("processed", snap.Processed),
			zap.Int64("skipped", snap.Skipped),
		)
	}
	return line{num: r.lines, text: text}, true, nil
}

// handle is one unit of work: classify, then write and count.
func (r *run) handle(l line) error {
	res := record.Validate(l.text, r.cols)
	switch res.Outcome {
	case record.Skipped:
		r.stats.RecordSkipped()
		if err := r.rejects.Add(string(res.Reason), l.num, l.text); err != nil {
			return fmt.Errorf("line %d: %w", l.num, err)
		}
	case record.Processed:
		if err := r.sink.Append(res.Line); err != nil {
			return fmt.Errorf("line %d: %w", l.num, err)
		}
		r.fp.Add(res.Line)
		r.stats.RecordProcessed()
	}
	return nil
}

// finish settles the output file, fills in the Result and reports the run.
// It returns err, or the close error of an otherwise successful run.
func (r *run) finish(err error) error {
	switch {
	case err != nil:
		if r.sink != nil {
			if rmErr := r.sink.Remove(); rmErr != nil {
				r.log.Warn("remove output", zap.Error(rmErr))
			}
		} else if rmErr := sink.Remove(r.outPath); rmErr != nil {
			r.log.Warn("remove output", zap.Error(rmErr))
		}
		r.transition(StateDeletedError)
	case r.sink == nil:
		// Empty input, already settled in execute.
	case r.stats.Snapshot().Processed == 0:
		if rmErr := r.sink.Remove(); rmErr != nil {
			r.log.Warn("remove output", zap.Error(rmErr))
		}
		r.transition(StateDeletedEmpty)
	default:
		if cerr := r.sink.Close(); cerr != nil {
			_ = r.sink.Remove()
			r.transition(StateDeletedError)
			err = cerr
			break
		}
		r.transition(StateCommitted)
	}

	r.res.Stats = r.stats.Snapshot()
	r.res.Reasons = r.rejects.Reasons()
	r.res.Fingerprint = r.fp.Sum()
	r.res.LinesRead = r.lines
	r.res.Duration = time.Since(r.res.StartedAt)

	r.opts.metrics.RecordRecords("processed", r.res.Stats.Processed)
	r.opts.metrics.RecordRecords("skipped", r.res.Stats.Skipped)
	r.opts.metrics.RecordRun(r.res.State.String(), r.res.Duration)

	if err != nil {
		r.log.Error("run aborted", zap.Error(err), zap.String("state", r.res.State.String()))
	}
	r.logSummary()
	return err
}

// logSummary prints the end-of-run counters. Every accepted line must be in
// the sink, so a mismatch between the two is reported.
func (r *run) logSummary() {
	snap := r.res.Stats
	r.log.Info("summary",
		zap.String("state", r.res.State.String()),
		zap.Int64("lines_read", r.res.LinesRead),
		zap.Int64("processed", snap.Processed),
		zap.Int64("skipped", snap.Skipped),
		zap.Int64("total", snap.Total()),
		zap.Any("reasons", r.res.Reasons),
		zap.Stringer("fingerprint", r.res.Fingerprint),
		zap.Duration("duration", r.res.Duration),
	)
	if r.sink != nil && r.res.State == StateCommitted && r.sink.Lines() != snap.Processed {
		r.log.Warn("record accounting mismatch",
			zap.Int64("processed", snap.Processed),
			zap.Int64("written", r.sink.Lines()),
		)
	}
}

func (r *run) transition(s State) {
	r.res.State = s
	r.log.Debug("state", zap.Stringer("state", s))
}

func sourceName(src datasource.Source) string {
	if p, ok := src.(interface{ Path() string }); ok {
		return p.Path()
	}
	return fmt.Sprintf("%T", src)
}

// isCanceled reports whether err is only a context cancellation.
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
