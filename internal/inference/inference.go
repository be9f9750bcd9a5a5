// Package inference classifies columns from observed cell values.
//
// Precedence, most specific first:
//
//	all_missing  no non-missing value was observed
//	integer      every value parses as a base-10 int64
//	float        every value parses as a finite float64
//	boolean      every value is one of true/false, yes/no, 1/0 (case-insensitive)
//	text         anything else
//
// Integer outranks Boolean, so a column made only of 0 and 1 is Integer.
// Inference is best-effort and never fails.
package inference

import (
	"math"
	"strconv"
	"strings"
)

// Type is the effective type of a column.
type Type string

const (
	Integer    Type = "integer"
	Float      Type = "float"
	Boolean    Type = "boolean"
	Text       Type = "text"
	AllMissing Type = "all_missing"
)

// Numeric reports whether values of t feed numeric statistics.
func (t Type) Numeric() bool { return t == Integer || t == Float }

// IsMissing reports whether v is absent: blank after trimming, or equal to
// sentinel after trimming. An empty sentinel only matches blank values.
func IsMissing(v, sentinel string) bool {
	s := strings.TrimSpace(v)
	return s == "" || (sentinel != "" && s == sentinel)
}

// ParseInt parses a trimmed base-10 integer.
func ParseInt(v string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	return n, err == nil
}

// ParseFloat parses a trimmed finite float. NaN and infinities are rejected.
func ParseFloat(v string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseBool recognizes the canonical boolean tokens.
func ParseBool(v string) (value bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "1":
		return true, true
	case "false", "no", "0":
		return false, true
	}
	return false, false
}

// Flags tracks which types are still possible for one column.
// The zero value is not ready; use NewFlags.
type Flags struct {
	seen  bool
	isInt bool
	isFlt bool
	isBln bool
}

func NewFlags() Flags {
	return Flags{isInt: true, isFlt: true, isBln: true}
}

// Observe narrows the candidates with one non-missing value.
func (f *Flags) Observe(v string) {
	f.seen = true
	if f.isInt {
		if _, ok := ParseInt(v); !ok {
			f.isInt = false
		}
	}
	if f.isFlt {
		if _, ok := ParseFloat(v); !ok {
			f.isFlt = false
		}
	}
	if f.isBln {
		if _, ok := ParseBool(v); !ok {
			f.isBln = false
		}
	}
}

// Type resolves the candidates by precedence.
func (f Flags) Type() Type {
	switch {
	case !f.seen:
		return AllMissing
	case f.isInt:
		return Integer
	case f.isFlt:
		return Float
	case f.isBln:
		return Boolean
	}
	return Text
}

// Inferencer assigns a Type to each column of a fixed-width table.
type Inferencer struct {
	missing string
	cols    []Flags
	rows    int
}

// New returns an Inferencer for width columns with the given missing sentinel.
func New(width int, missing string) *Inferencer {
	cols := make([]Flags, width)
	for i := range cols {
		cols[i] = NewFlags()
	}
	return &Inferencer{missing: missing, cols: cols}
}

// Observe feeds one row. Rows of a different width are ignored.
func (in *Inferencer) Observe(fields []string) {
	if len(fields) != len(in.cols) {
		return
	}
	in.rows++
	for i, v := range fields {
		if IsMissing(v, in.missing) {
			continue
		}
		in.cols[i].Observe(v)
	}
}

// Rows returns how many rows were observed.
func (in *Inferencer) Rows() int { return in.rows }

// Types returns one Type per column.
func (in *Inferencer) Types() []Type {
	out := make([]Type, len(in.cols))
	for i, f := range in.cols {
		out[i] = f.Type()
	}
	return out
}
