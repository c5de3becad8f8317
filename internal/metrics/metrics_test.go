package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-memory Backend for tests.
type fakeBackend struct {
	mu sync.Mutex

	counters   []call
	histograms []call
	flushes    int
	flushErr   error
}

type call struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, call{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histograms = append(f.histograms, call{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return f.flushErr
}

func TestRecordRecords(t *testing.T) {
	t.Parallel()

	fb := &fakeBackend{}
	r := NewRecorder("jobX", fb)

	r.RecordRecords("processed", 3)
	r.RecordRecords("processed", 0)
	r.RecordRecords("skipped", -1)
	r.RecordRecords("skipped", 5)

	require.Len(t, fb.counters, 2)
	assert.Equal(t, call{RecordsTotal, 3, Labels{"job": "jobX", "kind": "processed"}}, fb.counters[0])
	assert.Equal(t, call{RecordsTotal, 5, Labels{"job": "jobX", "kind": "skipped"}}, fb.counters[1])
	assert.Empty(t, fb.histograms)
}

func TestRecordRun(t *testing.T) {
	t.Parallel()

	fb := &fakeBackend{}
	r := NewRecorder("jobA", fb)

	r.RecordRun("committed", 2*time.Second)
	r.RecordRun("deleted_error", 1500*time.Millisecond)

	require.Len(t, fb.counters, 2)
	require.Len(t, fb.histograms, 2)

	assert.Equal(t, RunTotal, fb.counters[0].name)
	assert.Equal(t, 1.0, fb.counters[0].value)
	assert.Equal(t, "committed", fb.counters[0].labels["status"])

	assert.Equal(t, RunDurationSeconds, fb.histograms[0].name)
	assert.InDelta(t, 2.0, fb.histograms[0].value, 0.001)
	assert.Equal(t, "deleted_error", fb.histograms[1].labels["status"])
	assert.InDelta(t, 1.5, fb.histograms[1].value, 0.001)
}

func TestFlush(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	fb := &fakeBackend{flushErr: boom}
	r := NewRecorder("job", fb)

	require.ErrorIs(t, r.Flush(), boom)
	assert.Equal(t, 1, fb.flushes)
}

func TestNilSafety(t *testing.T) {
	t.Parallel()

	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordRecords("processed", 1)
		r.RecordRun("committed", time.Second)
	})
	assert.NoError(t, r.Flush())
	assert.Empty(t, r.Job())

	r = NewRecorder("job", nil)
	assert.NotPanics(t, func() { r.RecordRecords("skipped", 1) })
	assert.NoError(t, r.Flush())
}
