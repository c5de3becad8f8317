// Command gendata writes synthetic name,email,age input files for manual runs
// and benchmarks. Output is deterministic for a given seed.
package main

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

type options struct {
	rows         int
	invalidRatio float64
	blankRatio   float64
	seed         uint64
	extraColumns bool
	crlf         bool
}

// Totals counts what was written, by kind.
type Totals struct {
	Valid, Invalid, Blank int
}

var (
	firstNames = []string{"john", "jane", "bob", "ana", "jürgen", "straße", "zoë", "li", "omar", "maría"}
	lastNames  = []string{"doe", "smith", "o'neil", "nguyen", "müller", "garcía", "kim", "ivanova"}
	domains    = []string{"example.com", "example.org", "mail.test"}
)

func main() {
	var (
		out  string
		opts options
	)
	fs := pflag.NewFlagSet("gendata", pflag.ExitOnError)
	fs.StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	fs.IntVarP(&opts.rows, "rows", "n", 1000, "number of data lines")
	fs.Float64Var(&opts.invalidRatio, "invalid-ratio", 0.1, "share of lines that fail validation")
	fs.Float64Var(&opts.blankRatio, "blank-ratio", 0.01, "share of blank lines")
	fs.Uint64Var(&opts.seed, "seed", 1, "random seed")
	fs.BoolVar(&opts.extraColumns, "extra-columns", false, "add id and city columns and shuffle column order")
	fs.BoolVar(&opts.crlf, "crlf", false, "terminate lines with CRLF")
	_ = fs.Parse(os.Args[1:])

	if err := run(out, opts); err != nil {
		fmt.Fprintln(os.Stderr, "gendata:", err)
		os.Exit(1)
	}
}

func run(out string, opts options) error {
	if opts.rows < 0 || opts.invalidRatio < 0 || opts.blankRatio < 0 || opts.invalidRatio+opts.blankRatio > 1 {
		return fmt.Errorf("rows must be >= 0 and ratios must be >= 0 with a sum <= 1")
	}

	var w io.Writer = os.Stdout
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	bw := bufio.NewWriterSize(w, 1<<20)
	t, err := generate(bw, opts)
	if err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %d lines: valid=%d invalid=%d blank=%d\n", opts.rows, t.Valid, t.Invalid, t.Blank)
	return nil
}

func generate(w io.Writer, opts options) (Totals, error) {
	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))
	eol := "\n"
	if opts.crlf {
		eol = "\r\n"
	}

	cols := []string{"name", "email", "age"}
	if opts.extraColumns {
		cols = append(cols, "id", "city")
		rng.Shuffle(len(cols), func(i, j int) { cols[i], cols[j] = cols[j], cols[i] })
	}
	if _, err := io.WriteString(w, strings.Join(cols, ",")+eol); err != nil {
		return Totals{}, err
	}

	var t Totals
	fields := make(map[string]string, len(cols))
	row := make([]string, len(cols))
	for i := range opts.rows {
		p := rng.Float64()
		var line string
		switch {
		case p < opts.blankRatio:
			line = strings.Repeat(" ", rng.IntN(3))
			t.Blank++
		default:
			first := firstNames[rng.IntN(len(firstNames))]
			last := lastNames[rng.IntN(len(lastNames))]
			fields["name"] = first + " " + last
			fields["email"] = first + "." + strconv.Itoa(i) + "@" + domains[rng.IntN(len(domains))]
			fields["age"] = strconv.Itoa(18 + rng.IntN(70))
			fields["id"] = strconv.Itoa(i + 1)
			fields["city"] = "city" + strconv.Itoa(rng.IntN(100))

			if p < opts.blankRatio+opts.invalidRatio {
				corrupt(rng, fields)
				t.Invalid++
			} else {
				t.Valid++
			}
			for j, c := range cols {
				row[j] = fields[c]
			}
			line = strings.Join(row, ",")
		}
		if _, err := io.WriteString(w, line+eol); err != nil {
			return t, err
		}
	}
	return t, nil
}

// corrupt breaks exactly one rule the validator enforces.
func corrupt(rng *rand.Rand, f map[string]string) {
	switch rng.IntN(4) {
	case 0:
		f["email"] = strings.ReplaceAll(f["email"], "@", "_at_")
	case 1:
		f["age"] = "unknown"
	case 2:
		f["age"] = "-" + f["age"]
	default:
		f["name"] = "  "
	}
}
