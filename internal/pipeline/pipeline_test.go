package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"csvsift/internal/fingerprint"
	"csvsift/internal/header"
	"csvsift/internal/logger"
	"csvsift/internal/metrics"
	"csvsift/internal/sink"
	"csvsift/internal/skiplog"
	"csvsift/internal/stats"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var dispatches = []Dispatch{DispatchPool, DispatchBatch}

func writeInput(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func outPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "out.csv")
}

// readOutput returns the header and the data lines of an output file.
func readOutput(t *testing.T, path string) (string, []string) {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(b), sink.LineSeparator), sink.LineSeparator)
	require.NotEmpty(t, lines)
	return lines[0], lines[1:]
}

func assertNoFile(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist, "expected %s to be absent", path)
}

func TestRunScenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		batchSize int
		want      stats.Snapshot
		wantLines []string
	}{
		{
			name:      "mixed valid and invalid",
			input:     "name,email,age\njohn doe,john@example.com,25\njane smith,invalid-email,30\nbob,bob@example.com,-5",
			want:      stats.Snapshot{Processed: 1, Skipped: 2},
			wantLines: []string{"JOHN DOE,john@example.com,25"},
		},
		{
			name:      "batch of two with five valid lines",
			input:     "name,email,age\na,a@x.io,1\nb,b@x.io,2\nc,c@x.io,3\nd,d@x.io,4\ne,e@x.io,5\n",
			batchSize: 2,
			want:      stats.Snapshot{Processed: 5},
			wantLines: []string{"A,a@x.io,1", "B,b@x.io,2", "C,c@x.io,3", "D,d@x.io,4", "E,e@x.io,5"},
		},
		{
			name:      "non-numeric age skipped, numeric prefix accepted",
			input:     "name,email,age\nann,ann@x.io,abc\nben,ben@x.io,25extra\n",
			want:      stats.Snapshot{Processed: 1, Skipped: 1},
			wantLines: []string{"BEN,ben@x.io,25"},
		},
		{
			name:      "columns reordered among extra columns",
			input:     "id,age,city,email,name\r\n1, 40 ,x,c@x.io,carl\r\n2,7,y,d@x.io,straße\r\n",
			want:      stats.Snapshot{Processed: 2},
			wantLines: []string{"CARL,c@x.io,40", "STRASSE,d@x.io,7"},
		},
		{
			name:      "blank lines are neither processed nor skipped",
			input:     "name,email,age\n\n   \nx,x@x.io,1\n\t\n,,\n",
			want:      stats.Snapshot{Processed: 1, Skipped: 1},
			wantLines: []string{"X,x@x.io,1"},
		},
	}

	for _, tt := range tests {
		for _, d := range dispatches {
			t.Run(tt.name+"/"+string(d), func(t *testing.T) {
				t.Parallel()

				in, out := writeInput(t, tt.input), outPath(t)
				got, err := Run(context.Background(), in, out,
					WithBatchSize(tt.batchSize),
					WithDispatch(d),
				)
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)

				hdr, lines := readOutput(t, out)
				assert.Equal(t, header.Canonical, hdr)
				assert.ElementsMatch(t, tt.wantLines, lines)
			})
		}
	}
}

func TestRunEmptyInput(t *testing.T) {
	t.Parallel()

	for _, d := range dispatches {
		t.Run(string(d), func(t *testing.T) {
			t.Parallel()

			in, out := writeInput(t, ""), outPath(t)
			// A stale output from an earlier run must not survive.
			require.NoError(t, os.WriteFile(out, []byte("stale"), 0o644))

			res, err := RunDetailed(context.Background(), in, out, WithDispatch(d))
			require.NoError(t, err)
			assert.Equal(t, stats.Snapshot{}, res.Stats)
			assert.Equal(t, StateDeletedEmpty, res.State)
			assert.Zero(t, res.LinesRead)
			assertNoFile(t, out)
		})
	}
}

func TestRunHeaderOnly(t *testing.T) {
	t.Parallel()

	in, out := writeInput(t, "name,email,age\n"), outPath(t)
	res, err := RunDetailed(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, StateDeletedEmpty, res.State)
	assert.Equal(t, int64(1), res.LinesRead)
	assertNoFile(t, out)
}

func TestRunZeroAccepted(t *testing.T) {
	t.Parallel()

	for _, d := range dispatches {
		t.Run(string(d), func(t *testing.T) {
			t.Parallel()

			in := writeInput(t, "name,email,age\na,nope,1\nb,b@x.io,-1\nc,c@x.io\n")
			out := outPath(t)

			res, err := RunDetailed(context.Background(), in, out, WithDispatch(d), WithBatchSize(2))
			require.NoError(t, err)
			assert.Equal(t, stats.Snapshot{Skipped: 3}, res.Stats)
			assert.Equal(t, StateDeletedEmpty, res.State)
			assert.Equal(t, map[string]int64{"invalid_email": 1, "invalid_age": 1, "malformed": 1}, res.Reasons)
			assertNoFile(t, out)
		})
	}
}

func TestRunMalformedHeader(t *testing.T) {
	t.Parallel()

	in := writeInput(t, "name,mail,years\njohn,john@x.io,3\n")
	out := outPath(t)

	res, err := RunDetailed(context.Background(), in, out)
	require.ErrorIs(t, err, header.ErrMalformedHeader)
	assert.ErrorContains(t, err, "email, age")
	assert.Equal(t, StateDeletedError, res.State)
	assert.Equal(t, stats.Snapshot{}, res.Stats)
	assertNoFile(t, out)
}

func TestRunMissingInput(t *testing.T) {
	t.Parallel()

	out := outPath(t)
	_, err := Run(context.Background(), filepath.Join(t.TempDir(), "absent.csv"), out)
	require.ErrorIs(t, err, os.ErrNotExist)
	assertNoFile(t, out)
}

func TestRunUnwritableOutput(t *testing.T) {
	t.Parallel()

	in := writeInput(t, "name,email,age\na,a@x.io,1\n")
	out := filepath.Join(t.TempDir(), "missing-dir", "out.csv")

	res, err := RunDetailed(context.Background(), in, out)
	require.Error(t, err)
	assert.Equal(t, StateDeletedError, res.State)
	assertNoFile(t, out)
}

// fullOutputPath returns an output path linked to /dev/full: the sink opens
// fine and every flush fails with ENOSPC.
func fullOutputPath(t *testing.T) string {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("/dev/full is Linux only")
	}
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skipf("/dev/full unavailable: %v", err)
	}
	p := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.Symlink("/dev/full", p))
	return p
}

func assertNoLink(t *testing.T, path string) {
	t.Helper()
	_, err := os.Lstat(path)
	assert.ErrorIs(t, err, os.ErrNotExist, "expected %s to be absent", path)
}

func TestRunSinkFailsMidRun(t *testing.T) {
	t.Parallel()

	const valid, invalid = 3000, 500
	var b strings.Builder
	b.WriteString("name,email,age\n")
	for i := range valid + invalid {
		if i%7 == 0 && i/7 < invalid {
			fmt.Fprintf(&b, "bad%04d,no-at-sign,1\n", i)
			continue
		}
		fmt.Fprintf(&b, "%s%04d,user%04d@example.com,%d\n", strings.Repeat("n", 40), i, i, i%90)
	}
	in := writeInput(t, b.String())

	for _, d := range dispatches {
		t.Run(string(d), func(t *testing.T) {
			t.Parallel()

			out := fullOutputPath(t)
			// One batch holds the whole input, so every unit runs even after
			// the sink fails.
			res, err := RunDetailed(context.Background(), in, out,
				WithDispatch(d), WithBatchSize(valid+invalid))
			require.Error(t, err)
			assert.ErrorIs(t, err, syscall.ENOSPC)
			assert.Equal(t, 1, strings.Count(err.Error(), "no space left on device"),
				"sink failure reported once: %.200s", err)
			assert.Equal(t, StateDeletedError, res.State)
			assertNoLink(t, out)

			assert.Positive(t, res.Stats.Processed, "lines before the failure are counted")
			assert.Less(t, res.Stats.Processed, int64(valid), "failed appends are not counted")
			if d == DispatchBatch {
				assert.EqualValues(t, invalid, res.Stats.Skipped, "siblings keep classifying")
			} else {
				assert.LessOrEqual(t, res.Stats.Skipped, int64(invalid))
			}
		})
	}
}

func TestRunSinkFailsOnClose(t *testing.T) {
	t.Parallel()

	in := writeInput(t, "name,email,age\njohn,j@x.io,30\nbad,nope,1\njane,a@x.io,25\n")
	for _, d := range dispatches {
		t.Run(string(d), func(t *testing.T) {
			t.Parallel()

			out := fullOutputPath(t)
			res, err := RunDetailed(context.Background(), in, out, WithDispatch(d))
			require.Error(t, err)
			assert.ErrorIs(t, err, syscall.ENOSPC)
			assert.Contains(t, err.Error(), "close sink")
			assert.Equal(t, StateDeletedError, res.State)
			assert.Equal(t, stats.Snapshot{Processed: 2, Skipped: 1}, res.Stats)
			assertNoLink(t, out)
		})
	}
}

func TestRunUnknownDispatch(t *testing.T) {
	t.Parallel()

	in, out := writeInput(t, "name,email,age\na,a@x.io,1\n"), outPath(t)
	_, err := Run(context.Background(), in, out, WithDispatch("fanout"))
	require.ErrorIs(t, err, ErrUnknownDispatch)
	assertNoFile(t, out)
}

// failingSource yields content and then fails with err.
type failingSource struct {
	content string
	err     error
}

func (s failingSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(io.MultiReader(strings.NewReader(s.content), errReader{s.err})), nil
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestRunReadErrorMidStream(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk on fire")
	var b strings.Builder
	b.WriteString("name,email,age\n")
	for i := range 50 {
		fmt.Fprintf(&b, "u%d,u%d@x.io,%d\n", i, i, i)
	}

	for _, d := range dispatches {
		t.Run(string(d), func(t *testing.T) {
			t.Parallel()

			out := outPath(t)
			res, err := RunSource(context.Background(), failingSource{b.String(), boom}, out,
				WithDispatch(d), WithBatchSize(8))
			require.ErrorIs(t, err, boom)
			assert.Equal(t, StateDeletedError, res.State)
			assertNoFile(t, out)
		})
	}
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()

	for _, d := range dispatches {
		t.Run(string(d), func(t *testing.T) {
			t.Parallel()

			in, out := writeInput(t, "name,email,age\na,a@x.io,1\n"), outPath(t)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			res, err := RunDetailed(ctx, in, out, WithDispatch(d))
			require.ErrorIs(t, err, context.Canceled)
			assert.Equal(t, StateDeletedError, res.State)
			assertNoFile(t, out)
		})
	}
}

// genInput builds n data lines where every third line is invalid and every
// seventh is blank. It returns the input and the expected accepted lines.
func genInput(n int) (string, []string, stats.Snapshot) {
	var (
		b    strings.Builder
		want []string
		snap stats.Snapshot
	)
	b.WriteString("age,name,email\n")
	for i := range n {
		switch {
		case i%7 == 0:
			b.WriteString("  \n")
		case i%3 == 0:
			fmt.Fprintf(&b, "%d,user%d,broken-email\n", i, i)
			snap.Skipped++
		default:
			fmt.Fprintf(&b, "%d,user%d,u%d@x.io\n", i, i, i)
			want = append(want, fmt.Sprintf("USER%d,u%d@x.io,%d", i, i, i))
			snap.Processed++
		}
	}
	return b.String(), want, snap
}

func TestRunAccountingAndIdempotence(t *testing.T) {
	t.Parallel()

	input, want, wantSnap := genInput(5000)
	in := writeInput(t, input)

	var sums []fingerprint.Sum
	for _, d := range dispatches {
		for _, size := range []int{1, 3, 64, DefaultBatchSize} {
			out := outPath(t)
			res, err := RunDetailed(context.Background(), in, out, WithDispatch(d), WithBatchSize(size))
			require.NoError(t, err, "dispatch=%s size=%d", d, size)

			assert.Equal(t, wantSnap, res.Stats)
			assert.Equal(t, StateCommitted, res.State)
			assert.Equal(t, int64(5001), res.LinesRead)

			_, lines := readOutput(t, out)
			require.Len(t, lines, len(want))
			assert.Equal(t, fingerprint.Of(lines), res.Fingerprint)

			sorted := slices.Clone(lines)
			slices.Sort(sorted)
			exp := slices.Clone(want)
			slices.Sort(exp)
			assert.Equal(t, exp, sorted, "every accepted line exactly once")

			sums = append(sums, res.Fingerprint)
		}
	}
	for _, s := range sums[1:] {
		assert.Equal(t, sums[0], s)
	}
}

func TestRunRejectsLog(t *testing.T) {
	t.Parallel()

	in := writeInput(t, "name,email,age\nok,ok@x.io,1\n\nbad,bad,2\nold,old@x.io,-3\n")
	out := outPath(t)
	rejPath := filepath.Join(t.TempDir(), "rejects", "rejects.csv")

	rej, err := skiplog.New(rejPath)
	require.NoError(t, err)

	res, err := RunDetailed(context.Background(), in, out, WithRejects(rej))
	require.NoError(t, err)
	require.NoError(t, rej.Close())

	assert.Equal(t, map[string]int64{"invalid_email": 1, "invalid_age": 1}, res.Reasons)

	f, err := os.Open(rejPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, skiplog.Header, rows[0])
	assert.ElementsMatch(t, [][]string{
		{"invalid_email", "4", "bad,bad,2"},
		{"invalid_age", "5", "old,old@x.io,-3"},
	}, rows[1:])
}

type recordingBackend struct {
	mu       sync.Mutex
	counters map[string]float64
	observed []string
}

func (b *recordingBackend) IncCounter(name string, delta float64, l metrics.Labels) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.counters == nil {
		b.counters = map[string]float64{}
	}
	b.counters[name+"/"+l["kind"]+l["status"]] += delta
}

func (b *recordingBackend) ObserveHistogram(name string, _ float64, l metrics.Labels) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observed = append(b.observed, name+"/"+l["status"])
}

func (b *recordingBackend) Flush() error { return nil }

func TestRunMetrics(t *testing.T) {
	t.Parallel()

	in := writeInput(t, "name,email,age\na,a@x.io,1\nb,b@x.io,2\nc,nope,3\n")
	be := &recordingBackend{}

	_, err := Run(context.Background(), in, outPath(t), WithMetrics(metrics.NewRecorder("test", be)))
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{
		metrics.RecordsTotal + "/processed": 2,
		metrics.RecordsTotal + "/skipped":   1,
		metrics.RunTotal + "/committed":     1,
	}, be.counters)
	assert.Equal(t, []string{metrics.RunDurationSeconds + "/committed"}, be.observed)
}

func TestRunLogging(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	l := &logger.ZapLogger{Logger: zap.New(core)}

	input, _, snap := genInput(10)
	in := writeInput(t, input)

	_, err := Run(context.Background(), in, outPath(t), WithLogger(l), WithProgressEvery(4))
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessage("run started").Len())
	// 11 lines read: heartbeats at 4 and 8.
	assert.Equal(t, 2, logs.FilterMessage("progress").Len())

	summary := logs.FilterMessage("summary").All()
	require.Len(t, summary, 1)
	fields := summary[0].ContextMap()
	assert.Equal(t, snap.Processed, fields["processed"])
	assert.Equal(t, snap.Skipped, fields["skipped"])
	assert.Equal(t, "committed", fields["state"])
	assert.NotEmpty(t, fields["run_id"])

	var states []string
	for _, e := range logs.FilterMessage("state").All() {
		states = append(states, fmt.Sprint(e.ContextMap()["state"]))
	}
	assert.Equal(t, []string{"init", "header_resolved", "streaming", "draining", "committed"}, states)
	assert.Zero(t, logs.FilterMessage("run aborted").Len())
}

func TestRunAbortLogged(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	l := &logger.ZapLogger{Logger: zap.New(core)}

	_, err := Run(context.Background(), writeInput(t, "nope\n"), outPath(t), WithLogger(l))
	require.Error(t, err)

	aborted := logs.FilterMessage("run aborted").All()
	require.Len(t, aborted, 1)
	assert.Equal(t, "deleted_error", aborted[0].ContextMap()["state"])
}

func TestRunDurationAndID(t *testing.T) {
	t.Parallel()

	in := writeInput(t, "name,email,age\na,a@x.io,1\n")
	before := time.Now()
	a, err := RunDetailed(context.Background(), in, outPath(t))
	require.NoError(t, err)
	b, err := RunDetailed(context.Background(), in, outPath(t))
	require.NoError(t, err)

	assert.Len(t, a.RunID, 26)
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.False(t, a.StartedAt.Before(before))
	assert.Positive(t, a.Duration)
}

func TestParseDispatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Dispatch
		wantErr bool
	}{
		{in: "", want: DispatchPool},
		{in: "pool", want: DispatchPool},
		{in: " Batch ", want: DispatchBatch},
		{in: "fanout", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDispatch(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownDispatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		s        State
		want     string
		terminal bool
	}{
		{StateInit, "init", false},
		{StateHeaderResolved, "header_resolved", false},
		{StateStreaming, "streaming", false},
		{StateDraining, "draining", false},
		{StateCommitted, "committed", true},
		{StateDeletedEmpty, "deleted_empty", true},
		{StateDeletedError, "deleted_error", true},
		{State(99), "unknown", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.s.String())
		assert.Equal(t, tt.terminal, tt.s.Terminal(), tt.want)
		assert.Equal(t, tt.s == StateCommitted, tt.s.OutputKept(), tt.want)
	}
}

func BenchmarkRun(b *testing.B) {
	input, _, _ := genInput(100_000)
	dir := b.TempDir()
	in := filepath.Join(dir, "in.csv")
	if err := os.WriteFile(in, []byte(input), 0o644); err != nil {
		b.Fatal(err)
	}

	for _, d := range dispatches {
		b.Run(string(d), func(b *testing.B) {
			b.SetBytes(int64(len(input)))
			for i := 0; i < b.N; i++ {
				if _, err := Run(context.Background(), in, filepath.Join(dir, "out.csv"), WithDispatch(d)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
