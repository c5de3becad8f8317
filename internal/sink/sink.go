// Package sink implements the append-only output file of a pipeline run.
//
// A Sink is opened once per run, shared by every worker, and released with
// Close (keep the file) or Remove (discard it). Appends are serialized by an
// internal mutex, so concurrent callers never interleave partial lines.
package sink

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"sync"
)

const writeBufSize = 64 << 10 // 64 KiB

// LineSeparator terminates every line written by a Sink.
var LineSeparator = func() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}()

// Sink is an append-only, line-oriented file writer safe for concurrent use.
type Sink struct {
	path string

	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	lines  int64
	err    error // first write error; sticky
	closed bool
}

// Create truncates or creates path and writes header as the first line.
// On failure nothing is left behind at path.
func Create(path, header string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create sink %s: %w", path, err)
	}
	s := &Sink{
		path: path,
		f:    f,
		w:    bufio.NewWriterSize(f, writeBufSize),
	}
	if err := s.write(header); err != nil {
		_ = f.Close()
		_ = Remove(path)
		return nil, fmt.Errorf("write sink header %s: %w", path, err)
	}
	return s, nil
}

// Path returns the file path the sink writes to.
func (s *Sink) Path() string { return s.path }

// Append writes one line followed by LineSeparator. Once a write has failed,
// every later Append returns that same error.
func (s *Sink) Append(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("append to sink %s: %w", s.path, os.ErrClosed)
	}
	if s.err != nil {
		return s.err
	}
	if err := s.write(line); err != nil {
		s.err = fmt.Errorf("append to sink %s: %w", s.path, err)
		return s.err
	}
	s.lines++
	return nil
}

// Lines reports how many data lines (excluding the header) were appended.
func (s *Sink) Lines() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines
}

// Close flushes buffered lines and closes the file. It is idempotent; only
// the first call reports an error.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	flushErr := s.w.Flush()
	closeErr := s.f.Close()
	if err := errors.Join(flushErr, closeErr); err != nil {
		return fmt.Errorf("close sink %s: %w", s.path, err)
	}
	return nil
}

// Remove closes the sink, discarding any close error, and deletes the file.
func (s *Sink) Remove() error {
	_ = s.Close()
	return Remove(s.path)
}

func (s *Sink) write(line string) error {
	if _, err := s.w.WriteString(line); err != nil {
		return err
	}
	_, err := s.w.WriteString(LineSeparator)
	return err
}

// Remove deletes the file at path. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove sink %s: %w", path, err)
	}
	return nil
}
