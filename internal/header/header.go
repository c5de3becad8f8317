// Package header resolves the column layout of a delimited input file from
// its header line.
package header

import (
	"errors"
	"fmt"
	"strings"
)

// Delimiter separates fields in both the input and the output files.
const Delimiter = ","

// Required column names, in canonical output order.
const (
	ColName  = "name"
	ColEmail = "email"
	ColAge   = "age"
)

// Canonical is the header line written to every output file.
const Canonical = ColName + Delimiter + ColEmail + Delimiter + ColAge

// ErrMalformedHeader is returned when the header line lacks one or more of
// the required columns.
var ErrMalformedHeader = errors.New("malformed header")

// Columns holds the source positions of the required fields.
type Columns struct {
	Name  int
	Email int
	Age   int
}

// MaxIndex returns the largest of the three positions; a data line needs at
// least MaxIndex()+1 fields to be structurally valid.
func (c Columns) MaxIndex() int {
	return max(c.Name, c.Email, c.Age)
}

// Resolve splits line on Delimiter and locates the required columns by exact,
// case-sensitive match. Extra columns are ignored; when a name repeats, the
// first occurrence wins.
func Resolve(line string) (Columns, error) {
	idx := map[string]int{ColName: -1, ColEmail: -1, ColAge: -1}
	for i, h := range strings.Split(line, Delimiter) {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		if pos, ok := idx[h]; ok && pos < 0 {
			idx[h] = i
		}
	}

	var missing []string
	for _, c := range []string{ColName, ColEmail, ColAge} {
		if idx[c] < 0 {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return Columns{}, fmt.Errorf("%w: missing column(s) %s", ErrMalformedHeader, strings.Join(missing, ", "))
	}

	return Columns{Name: idx[ColName], Email: idx[ColEmail], Age: idx[ColAge]}, nil
}
