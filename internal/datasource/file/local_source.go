// Package file implements a local filesystem-backed data source.
package file

import (
	"context"
	"fmt"
	"io"
	"os"

	"csvsift/internal/datasource"
)

var _ datasource.Source = (*Local)(nil)

// Local opens one file from the local disk for sequential reading.
type Local struct{ path string }

// NewLocal returns a Local bound to path. Each Open returns an independent
// reader, so a Local may be shared across goroutines.
func NewLocal(path string) *Local { return &Local{path: path} }

// Path returns the configured filesystem path.
func (l *Local) Path() string { return l.path }

// Open opens the file for reading.
//
// A context that is already done short-circuits with ctx.Err() before the
// filesystem is touched. Filesystem errors are wrapped with the path and stay
// matchable with errors.Is (e.g. os.ErrNotExist, os.ErrPermission). The
// kernel is told to expect sequential access where the platform supports it.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	adviseSequential(f)
	return f, nil
}
