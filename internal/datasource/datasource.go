// Package datasource defines where raw input bytes come from.
package datasource

import (
	"context"
	"io"
)

// Source opens a fresh reader over the input on every call.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}
