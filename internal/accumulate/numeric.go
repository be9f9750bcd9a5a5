package accumulate

import (
	"math"

	"dataprof/internal/quantile"

	"gonum.org/v1/gonum/stat"
)

// numericState holds the running moments of one numeric column. Quantiles
// come from est, which is exact until promoted.
type numericState struct {
	n        int64
	sum      float64
	mean, m2 float64 // Welford
	min, max float64
	// integer extremes, valid while every value came through addInt
	ints       int64
	imin, imax int64
	est        quantile.Estimator
	accuracy   float64
}

func newNumericState(approximate bool, accuracy float64) *numericState {
	s := &numericState{min: math.Inf(1), max: math.Inf(-1), accuracy: accuracy}
	if approximate {
		s.est = quantile.NewApprox(accuracy)
	} else {
		s.est = quantile.NewExact()
	}
	return s
}

func (s *numericState) add(x float64) {
	s.n++
	s.sum += x
	d := x - s.mean
	s.mean += d / float64(s.n)
	s.m2 += d * (x - s.mean)
	s.min = math.Min(s.min, x)
	s.max = math.Max(s.max, x)
	s.est.Add(x)
}

// addInt adds an integer value, keeping its extremes exact beyond 2^53.
func (s *numericState) addInt(n int64) {
	if s.ints == 0 || n < s.imin {
		s.imin = n
	}
	if s.ints == 0 || n > s.imax {
		s.imax = n
	}
	s.ints++
	s.add(float64(n))
}

// promote switches exact quantiles to a sketch. It is a no-op once
// approximate.
func (s *numericState) promote() {
	if ex, ok := s.est.(*quantile.Exact); ok {
		s.est = ex.Promote(s.accuracy)
	}
}

func (s *numericState) summary() *NumericSummary {
	if s.n == 0 {
		return nil
	}
	out := &NumericSummary{
		Count: s.n,
		Min:   s.min,
		Max:   s.max,
		Sum:   s.sum,
		Mean:  s.mean,
	}
	if s.ints == s.n {
		imin, imax := s.imin, s.imax
		out.MinInt, out.MaxInt = &imin, &imax
	}

	switch est := s.est.(type) {
	case *quantile.Exact:
		vals := est.Sorted()
		out.QuantileMode = ModeExact
		if len(vals) > 1 {
			mean, sd := stat.MeanStdDev(vals, nil)
			out.Mean = mean
			out.StdDev = &sd
		}
	case *quantile.Approx:
		out.QuantileMode = ModeApproximate
		out.QuantileErrorBound = est.ErrorBound()
		out.QuantileRelativeError = est.RelativeError()
		if s.n > 1 {
			sd := math.Sqrt(math.Max(s.m2, 0) / float64(s.n-1))
			out.StdDev = &sd
		}
	}
	out.Q1 = s.est.Quantile(0.25)
	out.Median = s.est.Quantile(0.5)
	out.Q3 = s.est.Quantile(0.75)
	return out
}
