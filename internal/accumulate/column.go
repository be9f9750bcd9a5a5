// Package accumulate folds the cells of one column into bounded summary
// state: missing and unique counts, numeric moments and quantiles, boolean
// counts and a capped frequency table.
//
// A Column is owned by a single goroutine and must receive its cells in row
// order.
package accumulate

import (
	"dataprof/internal/inference"
	"dataprof/internal/quantile"
)

const (
	ModeExact       = "exact"
	ModeApproximate = "approximate"

	DefaultTopK              = 10
	DefaultFrequencyCapacity = 1024
)

type ValueCount struct {
	Value   string  `json:"value"`
	Count   int64   `json:"count"`
	Percent float64 `json:"percent"` // of non-missing cells
}

type NumericSummary struct {
	Count        int64    `json:"count"`
	Min          float64  `json:"min"`
	Max          float64  `json:"max"`
	Mean         float64  `json:"mean"`
	StdDev       *float64 `json:"stddev"`
	Sum          float64  `json:"sum"`
	Median       float64  `json:"median"`
	Q1           float64  `json:"q1"`
	Q3           float64  `json:"q3"`
	QuantileMode string   `json:"quantile_mode"`
	// MinInt and MaxInt are the exact extremes of an all-integer column.
	// Min, Max, Sum and the moments are float64 and round integers beyond
	// 2^53.
	MinInt *int64 `json:"min_int,omitempty"`
	MaxInt *int64 `json:"max_int,omitempty"`
	// In approximate mode each quantile is an order statistic adjacent to
	// rank p*(n-1), within QuantileRelativeError of its value and within
	// QuantileErrorBound in absolute terms. Both are 0 in exact mode.
	QuantileErrorBound    float64 `json:"quantile_error_bound"`
	QuantileRelativeError float64 `json:"quantile_relative_error"`
}

type CategoricalSummary struct {
	TopValues []ValueCount `json:"top_values"`
	K         int          `json:"k"`
	// Approximate is set when the frequency table evicted values, so counts
	// are lower bounds.
	Approximate bool `json:"approximate"`
}

type BooleanSummary struct {
	True  int64 `json:"true"`
	False int64 `json:"false"`
}

// Options configures a Column.
type Options struct {
	// Type fixes the column type. Ignored when Progressive is set.
	Type inference.Type
	// Progressive defers the type decision to Result, refining candidacy
	// flags with every value.
	Progressive bool
	// Missing is the sentinel treated as no data, besides blank values.
	Missing string

	TopK              int
	FrequencyCapacity int
	UniqueExactLimit  int

	// Approximate starts numeric quantiles as a sketch.
	Approximate      bool
	RelativeAccuracy float64
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.FrequencyCapacity <= 0 {
		o.FrequencyCapacity = DefaultFrequencyCapacity
	}
	o.FrequencyCapacity = max(o.FrequencyCapacity, o.TopK)
	if o.UniqueExactLimit <= 0 {
		o.UniqueExactLimit = DefaultUniqueExactLimit
	}
	if o.RelativeAccuracy <= 0 || o.RelativeAccuracy >= 1 {
		o.RelativeAccuracy = quantile.DefaultRelativeAccuracy
	}
	return o
}

// Result is the finalized state of a Column.
type Result struct {
	Type              inference.Type
	Count             int64
	Missing           int64
	Unique            uint64
	UniqueApproximate bool

	Numeric     *NumericSummary
	Categorical *CategoricalSummary
	Boolean     *BooleanSummary
}

// Column accumulates one column.
type Column struct {
	opt Options

	total   int64
	missing int64

	uniq   *uniqueTracker
	num    *numericState
	freq   *FrequencyTable
	trues  int64
	falses int64

	flags inference.Flags
	// late counts values seen by a column sampled as all_missing.
	late int64
}

func NewColumn(opt Options) *Column {
	opt = opt.withDefaults()
	c := &Column{
		opt:   opt,
		uniq:  newUniqueTracker(opt.UniqueExactLimit),
		flags: inference.NewFlags(),
	}

	switch {
	case opt.Progressive:
		c.num = newNumericState(opt.Approximate, opt.RelativeAccuracy)
		c.freq = NewFrequencyTable(opt.FrequencyCapacity)
	case opt.Type.Numeric():
		c.num = newNumericState(opt.Approximate, opt.RelativeAccuracy)
	case opt.Type == inference.Text, opt.Type == inference.AllMissing:
		c.freq = NewFrequencyTable(opt.FrequencyCapacity)
	}
	return c
}

// Add folds one cell.
func (c *Column) Add(v string) {
	c.total++
	if inference.IsMissing(v, c.opt.Missing) {
		c.missing++
		return
	}
	c.uniq.add(v)

	if c.opt.Progressive {
		c.addProgressive(v)
		return
	}

	switch c.opt.Type {
	case inference.Integer:
		n, ok := inference.ParseInt(v)
		if !ok {
			c.missing++
			return
		}
		c.num.addInt(n)
	case inference.Float:
		f, ok := inference.ParseFloat(v)
		if !ok {
			c.missing++
			return
		}
		c.num.add(f)
	case inference.Boolean:
		b, ok := inference.ParseBool(v)
		if !ok {
			c.missing++
			return
		}
		c.countBool(b)
	case inference.AllMissing:
		c.late++
		c.freq.Add(v)
	default:
		c.freq.Add(v)
	}
}

func (c *Column) addProgressive(v string) {
	c.flags.Observe(v)
	if c.num != nil {
		if n, ok := inference.ParseInt(v); ok {
			c.num.addInt(n)
		} else if f, ok := inference.ParseFloat(v); ok {
			c.num.add(f)
		} else {
			// no longer numeric; release the quantile buffer
			c.num = nil
		}
	}
	if b, ok := inference.ParseBool(v); ok {
		c.countBool(b)
	}
	c.freq.Add(v)
}

func (c *Column) countBool(b bool) {
	if b {
		c.trues++
	} else {
		c.falses++
	}
}

// Promote switches numeric quantiles from exact to approximate.
func (c *Column) Promote() {
	if c.num != nil {
		c.num.promote()
	}
}

// Count returns the number of cells added so far.
func (c *Column) Count() int64 { return c.total }

// Result finalizes the column. It may be called once, after the last Add.
func (c *Column) Result() Result {
	typ := c.opt.Type
	if c.opt.Progressive {
		typ = c.flags.Type()
	} else if typ == inference.AllMissing && c.late > 0 {
		typ = inference.Text
	}

	r := Result{
		Type:              typ,
		Count:             c.total,
		Missing:           c.missing,
		Unique:            c.uniq.count(),
		UniqueApproximate: c.uniq.approximate(),
	}
	nonMissing := c.total - c.missing

	switch typ {
	case inference.Integer, inference.Float:
		if c.num != nil {
			r.Numeric = c.num.summary()
		}
	case inference.Boolean:
		r.Boolean = &BooleanSummary{True: c.trues, False: c.falses}
		r.Categorical = c.booleanTop(nonMissing)
	case inference.Text:
		top := c.freq.Top(c.opt.TopK)
		withPercent(top, nonMissing)
		r.Categorical = &CategoricalSummary{
			TopValues:   top,
			K:           c.opt.TopK,
			Approximate: c.freq.Evicted(),
		}
	}
	return r
}

// booleanTop ranks the canonical tokens, true first on a tie.
func (c *Column) booleanTop(nonMissing int64) *CategoricalSummary {
	var top []ValueCount
	if c.trues > 0 {
		top = append(top, ValueCount{Value: "true", Count: c.trues})
	}
	if c.falses > 0 {
		fv := ValueCount{Value: "false", Count: c.falses}
		if c.falses > c.trues {
			top = append([]ValueCount{fv}, top...)
		} else {
			top = append(top, fv)
		}
	}
	if len(top) > c.opt.TopK {
		top = top[:c.opt.TopK]
	}
	withPercent(top, nonMissing)
	return &CategoricalSummary{TopValues: top, K: c.opt.TopK}
}

func withPercent(top []ValueCount, nonMissing int64) {
	if nonMissing <= 0 {
		return
	}
	for i := range top {
		top[i].Percent = float64(top[i].Count) / float64(nonMissing) * 100
	}
}
