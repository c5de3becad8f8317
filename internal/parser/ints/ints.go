// Package ints provides helpers for extracting integer values from text
// fields. It is intended for ETL tasks where numeric columns are dirty: values
// may carry units, trailing garbage or stray whitespace.
package ints

import "math"

// LeadingInt parses the longest leading decimal integer of s.
//
// Leading ASCII whitespace is ignored, an optional '+' or '-' sign is
// accepted, and scanning stops at the first non-digit byte. Anything after the
// digit run is ignored, so "25extra" yields 25 and "3.7" yields 3.
//
// ok is false when no digit follows the optional sign ("abc", "", "-") or when
// the value does not fit in an int64; an overflowing digit run such as
// "99999999999999999999" is rejected rather than clamped.
func LeadingInt(s string) (n int64, ok bool) {
	i := 0
	for i < len(s) && isSpace(s[i]) {
		i++
	}

	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}

	start := i
	// Accumulate as a negative number so math.MinInt64 is representable.
	var acc int64
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		d := int64(s[i] - '0')
		if acc < (math.MinInt64+d)/10 {
			return 0, false
		}
		acc = acc*10 - d
		i++
	}
	if i == start {
		return 0, false
	}

	if neg {
		return acc, true
	}
	if acc == math.MinInt64 {
		return 0, false
	}
	return -acc, true
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
