// Package quantile estimates order statistics of a numeric stream.
//
// Exact retains every value and interpolates between order statistics at
// index p*(n-1). Approx feeds a DDSketch and answers with a neighbouring
// order statistic within a relative error; its memory does not grow with n.
package quantile

import (
	"math"
	"sort"

	"github.com/DataDog/sketches-go/ddsketch"
)

// DefaultRelativeAccuracy is the relative error of Approx answers.
const DefaultRelativeAccuracy = 0.01

// Estimator answers quantile queries over the values added so far.
type Estimator interface {
	Add(x float64)
	Quantile(p float64) float64
	Count() int
	Exact() bool
}

// Exact keeps all values in memory.
type Exact struct {
	vals   []float64
	sorted bool
}

func NewExact() *Exact { return &Exact{} }

func (e *Exact) Add(x float64) {
	e.vals = append(e.vals, x)
	e.sorted = false
}

func (e *Exact) Count() int  { return len(e.vals) }
func (e *Exact) Exact() bool { return true }

// Quantile returns NaN when no value was added.
func (e *Exact) Quantile(p float64) float64 {
	return Interpolate(e.Sorted(), p)
}

// Sorted returns the retained values in ascending order. The slice is owned
// by e.
func (e *Exact) Sorted() []float64 {
	if !e.sorted {
		sort.Float64s(e.vals)
		e.sorted = true
	}
	return e.vals
}

// Promote moves the retained values into a sketch and releases the buffer.
func (e *Exact) Promote(relativeAccuracy float64) *Approx {
	a := NewApprox(relativeAccuracy)
	for _, v := range e.vals {
		a.Add(v)
	}
	e.vals = nil
	return a
}

// Interpolate computes the p-quantile of ascending values: the order
// statistics around index p*(n-1), weighted by its fractional part.
func Interpolate(sorted []float64, p float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return math.NaN()
	case n == 1:
		return sorted[0]
	}
	p = math.Min(math.Max(p, 0), 1)

	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Approx is a bounded-memory estimator backed by a DDSketch. Instead of
// interpolating, it answers with one of the two order statistics Exact
// interpolates between (index floor or ceil of p*(n-1)), within relative
// error RelativeError of that value. Results are clamped to the observed
// [min, max] and do not depend on arrival order. Memory grows with the
// logarithm of the value range, not with n.
type Approx struct {
	sk       *ddsketch.DDSketch
	alpha    float64
	n        int
	min, max float64
}

// NewApprox returns an estimator with the given relative accuracy. Values
// outside (0, 1) select DefaultRelativeAccuracy.
func NewApprox(relativeAccuracy float64) *Approx {
	if relativeAccuracy <= 0 || relativeAccuracy >= 1 {
		relativeAccuracy = DefaultRelativeAccuracy
	}
	sk, err := ddsketch.NewDefaultDDSketch(relativeAccuracy)
	if err != nil {
		// accuracy is in (0, 1)
		panic(err)
	}
	return &Approx{
		sk:    sk,
		alpha: relativeAccuracy,
		min:   math.Inf(1),
		max:   math.Inf(-1),
	}
}

func (a *Approx) Add(x float64) {
	m := a.sk.MaxIndexableValue()
	_ = a.sk.Add(math.Max(math.Min(x, m), -m))
	a.n++
	a.min = math.Min(a.min, x)
	a.max = math.Max(a.max, x)
}

func (a *Approx) Count() int  { return a.n }
func (a *Approx) Exact() bool { return false }

func (a *Approx) Quantile(p float64) float64 {
	if a.n == 0 {
		return math.NaN()
	}
	q, err := a.sk.GetValueAtQuantile(math.Min(math.Max(p, 0), 1))
	if err != nil {
		return math.NaN()
	}
	return math.Min(math.Max(q, a.min), a.max)
}

// RelativeError is the bound on |Quantile(p) - v| / |v|, where v is the
// order statistic the answer stands for.
func (a *Approx) RelativeError() float64 { return a.alpha }

// ErrorBound is an absolute bound on the distance between Quantile(p) and
// the order statistic it stands for: the relative error applied to the
// largest observed magnitude.
func (a *Approx) ErrorBound() float64 {
	if a.n == 0 {
		return 0
	}
	return a.alpha * math.Max(math.Abs(a.min), math.Abs(a.max))
}

var (
	_ Estimator = (*Exact)(nil)
	_ Estimator = (*Approx)(nil)
)
