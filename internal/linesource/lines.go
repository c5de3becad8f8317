// Package linesource turns a data source into a lazy, forward-only sequence
// of text lines.
//
// Input bytes are decoded as UTF-8: a leading byte-order mark is dropped and
// invalid sequences become U+FFFD. CR, LF and CRLF all terminate a line and
// are never part of the yielded text. Nothing beyond one line (bounded by
// MaxLineSize) is buffered, so arbitrarily large files stream in constant
// memory.
package linesource

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"iter"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"csvsift/internal/datasource"
	"csvsift/internal/datasource/file"
)

const (
	readBufSize = 256 << 10 // 256 KiB

	// MaxLineSize bounds a single line; longer lines end the sequence with
	// bufio.ErrTooLong.
	MaxLineSize = 16 << 20 // 16 MiB
)

// Lines returns a sequence over the lines of src. The source is opened when
// iteration starts and closed when it ends, so each range over the sequence
// reads from the beginning.
//
// Errors are yielded as ("", err) and end the sequence: a source that cannot
// be opened yields exactly one error and no lines. Cancelling ctx ends the
// sequence with ctx.Err().
func Lines(ctx context.Context, src datasource.Source) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		rc, err := src.Open(ctx)
		if err != nil {
			yield("", err)
			return
		}
		defer rc.Close()

		dec := transform.NewReader(rc, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
		sc := bufio.NewScanner(dec)
		sc.Buffer(make([]byte, readBufSize), MaxLineSize)
		sc.Split(ScanLines)

		for sc.Scan() {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(sc.Text(), nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield("", fmt.Errorf("read line: %w", err))
		}
	}
}

// File is shorthand for Lines over a local file.
func File(ctx context.Context, path string) iter.Seq2[string, error] {
	return Lines(ctx, file.NewLocal(path))
}

// ScanLines is a bufio.SplitFunc that treats "\n", "\r\n" and a lone "\r" as
// line terminators. A final line without a terminator is still returned; a
// trailing terminator does not produce an extra empty line.
func ScanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		// CR: need one more byte to tell CRLF from a lone CR.
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
