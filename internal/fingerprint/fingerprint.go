// Package fingerprint computes an order-independent digest of a set of lines.
//
// Each line is hashed with xxh3 and the hashes are summed modulo 2^64, so two
// outputs holding the same lines in a different order fingerprint equal. The
// accumulator is lock-free and may be fed from many goroutines.
package fingerprint

import (
	"fmt"
	"sync/atomic"

	"github.com/zeebo/xxh3"
)

// Set accumulates line hashes. The zero value is an empty set.
type Set struct {
	sum   atomic.Uint64
	count atomic.Int64
}

// Add folds line into the set.
func (s *Set) Add(line string) {
	s.sum.Add(xxh3.HashString(line))
	s.count.Add(1)
}

// Sum returns the current digest.
func (s *Set) Sum() Sum {
	return Sum{Hash: s.sum.Load(), Lines: s.count.Load()}
}

// Sum is a finished digest: the wrapped hash sum plus the number of lines.
type Sum struct {
	Hash  uint64 `json:"hash"`
	Lines int64  `json:"lines"`
}

// String renders the digest as "<16 hex digits>/<lines>".
func (s Sum) String() string {
	return fmt.Sprintf("%016x/%d", s.Hash, s.Lines)
}

// Of is a convenience for fingerprinting an in-memory slice.
func Of(lines []string) Sum {
	var s Set
	for _, l := range lines {
		s.Add(l)
	}
	return s.Sum()
}
