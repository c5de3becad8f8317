// Package record validates and transforms a single raw data line.
//
// Validate is pure: it touches no shared state and performs no I/O, so it can
// run concurrently from any number of goroutines and is tested without files.
package record

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"csvsift/internal/header"
	"csvsift/internal/parser/ints"
)

// Outcome classifies a data line.
type Outcome uint8

const (
	// Blank lines are empty or whitespace-only. They are dropped silently and
	// are not counted as skipped.
	Blank Outcome = iota
	// Skipped lines failed structural or semantic validation.
	Skipped
	// Processed lines passed validation and carry a transformed output line.
	Processed
)

func (o Outcome) String() string {
	switch o {
	case Blank:
		return "blank"
	case Skipped:
		return "skipped"
	case Processed:
		return "processed"
	default:
		return "unknown"
	}
}

// Reason explains why a line was skipped.
type Reason string

const (
	ReasonMalformed    Reason = "malformed"
	ReasonInvalidEmail Reason = "invalid_email"
	ReasonInvalidAge   Reason = "invalid_age"
)

// Result is the outcome of validating one line. Line is set only for
// Processed results and Reason only for Skipped ones.
type Result struct {
	Outcome Outcome
	Line    string
	Reason  Reason
}

// Validate classifies line using the column positions in cols and, for valid
// records, produces the output line "NAME,email,age".
func Validate(line string, cols header.Columns) Result {
	if strings.TrimSpace(line) == "" {
		return Result{Outcome: Blank}
	}

	fields := strings.Split(line, header.Delimiter)
	if len(fields) <= cols.MaxIndex() {
		return skip(ReasonMalformed)
	}

	name := strings.TrimSpace(fields[cols.Name])
	email := strings.TrimSpace(fields[cols.Email])
	rawAge := strings.TrimSpace(fields[cols.Age])
	if name == "" || email == "" || rawAge == "" {
		return skip(ReasonMalformed)
	}

	if !strings.Contains(email, "@") {
		return skip(ReasonInvalidEmail)
	}
	age, ok := ints.LeadingInt(rawAge)
	if !ok || age < 0 {
		return skip(ReasonInvalidAge)
	}

	var b strings.Builder
	b.Grow(len(name) + len(email) + 22)
	b.WriteString(upper(name))
	b.WriteString(header.Delimiter)
	b.WriteString(email)
	b.WriteString(header.Delimiter)
	b.WriteString(strconv.FormatInt(age, 10))

	return Result{Outcome: Processed, Line: b.String()}
}

func skip(r Reason) Result {
	return Result{Outcome: Skipped, Reason: r}
}

// upper applies full Unicode upper-casing ("straße" -> "STRASSE"). A Caser
// keeps internal state, so one is built per call rather than shared.
func upper(s string) string {
	if isASCII(s) {
		return strings.ToUpper(s)
	}
	return cases.Upper(language.Und).String(s)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
