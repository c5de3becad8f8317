// Package skiplog records rejected input lines and tallies rejection reasons.
//
// A Log always counts reasons; when created with a path it also writes one
// CSV row per rejection (reason, line_number, raw_line) so operators can
// inspect what was dropped. All methods are safe for concurrent use.
package skiplog

import (
	"encoding/csv"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Header is the first row of every rejects file.
var Header = []string{"reason", "line_number", "raw_line"}

// Log is a concurrency-safe rejects recorder.
type Log struct {
	mu      sync.Mutex
	reasons map[string]int64
	f       *os.File
	w       *csv.Writer
}

// New returns a Log. An empty path yields a counting-only Log. Otherwise
// missing parent directories are created and the file is truncated.
func New(path string) (*Log, error) {
	l := &Log{reasons: make(map[string]int64)}
	if path == "" {
		return l, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open rejects %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write rejects header: %w", err)
	}
	l.f, l.w = f, w
	return l, nil
}

// Add counts one rejection and, when backed by a file, records it.
func (l *Log) Add(reason string, lineNum int64, raw string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.reasons[reason]++
	if l.w == nil {
		return nil
	}
	if err := l.w.Write([]string{reason, strconv.FormatInt(lineNum, 10), raw}); err != nil {
		return fmt.Errorf("write reject: %w", err)
	}
	return nil
}

// Reasons returns a copy of the per-reason tally.
func (l *Log) Reasons() map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.reasons)
}

// Close flushes and closes the backing file, if any. It is idempotent.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.w == nil {
		return nil
	}
	l.w.Flush()
	flushErr := l.w.Error()
	closeErr := l.f.Close()
	l.w, l.f = nil, nil
	if flushErr != nil {
		return fmt.Errorf("flush rejects: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close rejects: %w", closeErr)
	}
	return nil
}
