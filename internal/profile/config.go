package profile

import (
	"errors"
	"fmt"
	"strings"

	"dataprof/internal/accumulate"
	"dataprof/internal/dedupe"
	"dataprof/internal/quantile"
)

// Mode selects how numeric quantiles are computed.
type Mode string

const (
	// ModeAuto starts exact and switches to approximate once the input is
	// estimated, or observed, to reach ApproxThreshold rows.
	ModeAuto        Mode = "auto"
	ModeExact       Mode = "exact"
	ModeApproximate Mode = "approximate"
)

// ParseMode accepts auto, exact and approximate (also "approx").
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "exact":
		return ModeExact, nil
	case "approximate", "approx":
		return ModeApproximate, nil
	}
	return "", &ConfigError{Field: "mode", Err: fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, s)}
}

// Inference selects how column types are decided.
type Inference string

const (
	// InferSample decides types from the first SampleRows data rows.
	InferSample Inference = "sample"
	// InferProgressive refines types over the whole pass.
	InferProgressive Inference = "progressive"
)

const (
	DefaultSampleRows      = 1000
	DefaultApproxThreshold = 100_000
	DefaultMaxExactRows    = 5_000_000
	DefaultBatchSize       = 256
)

// Config is the complete set of options of one profiling run.
type Config struct {
	// Header: the first row names the columns. Ignored for sources that
	// carry their own header.
	Header bool
	// Missing is the sentinel treated as no data besides blank cells.
	Missing string

	Mode            Mode
	Inference       Inference
	SampleRows      int
	ApproxThreshold int64
	// MaxExactRows is the hard ceiling of rows whose numeric values may be
	// retained in exact mode.
	MaxExactRows int64
	// ExpectedRows is an optional caller hint of the input size.
	ExpectedRows int64

	TopK                int
	FrequencyCapacity   int
	UniqueExactLimit    int
	DuplicateExactLimit int
	FalsePositiveRate   float64
	// RelativeAccuracy bounds the error of approximate quantiles.
	RelativeAccuracy float64

	// Workers > 1 spreads columns over that many goroutines.
	Workers   int
	BatchSize int

	// MaxRows and MaxBytes stop the pass early with a partial profile.
	// Zero means unlimited.
	MaxRows  int64
	MaxBytes int64
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		Header:              true,
		Mode:                ModeAuto,
		Inference:           InferSample,
		SampleRows:          DefaultSampleRows,
		ApproxThreshold:     DefaultApproxThreshold,
		MaxExactRows:        DefaultMaxExactRows,
		TopK:                accumulate.DefaultTopK,
		FrequencyCapacity:   accumulate.DefaultFrequencyCapacity,
		UniqueExactLimit:    accumulate.DefaultUniqueExactLimit,
		DuplicateExactLimit: dedupe.DefaultExactLimit,
		FalsePositiveRate:   dedupe.DefaultFalsePositiveRate,
		RelativeAccuracy:    quantile.DefaultRelativeAccuracy,
		Workers:             1,
		BatchSize:           DefaultBatchSize,
	}
}

// withDefaults fills zero-valued fields. Header and Missing are taken as
// given.
func (c Config) withDefaults() Config {
	d := Defaults()
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.Inference == "" {
		c.Inference = d.Inference
	}
	if c.SampleRows == 0 {
		c.SampleRows = d.SampleRows
	}
	if c.ApproxThreshold == 0 {
		c.ApproxThreshold = d.ApproxThreshold
	}
	if c.MaxExactRows == 0 {
		c.MaxExactRows = d.MaxExactRows
	}
	if c.TopK == 0 {
		c.TopK = d.TopK
	}
	if c.FrequencyCapacity == 0 {
		c.FrequencyCapacity = d.FrequencyCapacity
	}
	if c.FrequencyCapacity < c.TopK {
		c.FrequencyCapacity = c.TopK
	}
	if c.UniqueExactLimit == 0 {
		c.UniqueExactLimit = d.UniqueExactLimit
	}
	if c.DuplicateExactLimit == 0 {
		c.DuplicateExactLimit = d.DuplicateExactLimit
	}
	if c.FalsePositiveRate == 0 {
		c.FalsePositiveRate = d.FalsePositiveRate
	}
	if c.RelativeAccuracy == 0 {
		c.RelativeAccuracy = d.RelativeAccuracy
	}
	if c.Workers == 0 {
		c.Workers = d.Workers
	}
	if c.BatchSize == 0 {
		c.BatchSize = d.BatchSize
	}
	return c
}

// Validate reports the first invalid or contradictory option as a
// *ConfigError. It expects defaults to be applied.
func (c Config) Validate() error {
	invalid := func(field, format string, args ...any) error {
		return &ConfigError{Field: field, Err: fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)}
	}

	switch c.Mode {
	case ModeAuto, ModeExact, ModeApproximate:
	default:
		return invalid("mode", "unknown mode %q", c.Mode)
	}
	switch c.Inference {
	case InferSample, InferProgressive:
	default:
		return invalid("inference", "unknown inference %q", c.Inference)
	}

	positive := []struct {
		field string
		v     int64
	}{
		{"sample_rows", int64(c.SampleRows)},
		{"approx_threshold", c.ApproxThreshold},
		{"max_exact_rows", c.MaxExactRows},
		{"top_k", int64(c.TopK)},
		{"frequency_capacity", int64(c.FrequencyCapacity)},
		{"unique_exact_limit", int64(c.UniqueExactLimit)},
		{"duplicate_exact_limit", int64(c.DuplicateExactLimit)},
		{"workers", int64(c.Workers)},
		{"batch_size", int64(c.BatchSize)},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return invalid(p.field, "must be positive, got %d", p.v)
		}
	}
	for _, p := range []struct {
		field string
		v     int64
	}{{"expected_rows", c.ExpectedRows}, {"max_rows", c.MaxRows}, {"max_bytes", c.MaxBytes}} {
		if p.v < 0 {
			return invalid(p.field, "must not be negative, got %d", p.v)
		}
	}
	if c.FalsePositiveRate <= 0 || c.FalsePositiveRate >= 1 {
		return invalid("false_positive_rate", "must be in (0,1), got %v", c.FalsePositiveRate)
	}
	if c.RelativeAccuracy <= 0 || c.RelativeAccuracy >= 1 {
		return invalid("relative_accuracy", "must be in (0,1), got %v", c.RelativeAccuracy)
	}
	if c.Mode == ModeAuto && c.ApproxThreshold > c.MaxExactRows {
		return invalid("approx_threshold", "%d exceeds max_exact_rows %d", c.ApproxThreshold, c.MaxExactRows)
	}
	if c.Mode == ModeExact && c.ExpectedRows > c.MaxExactRows {
		return exceeded(c.ExpectedRows, c.MaxExactRows, "expected")
	}
	return nil
}

var (
	// ErrInvalidConfig marks options that are malformed or contradict each
	// other.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrModeMemoryExceeded is returned when exact mode is forced on an input
	// larger than MaxExactRows. Callers may retry with ModeApproximate.
	ErrModeMemoryExceeded = errors.New("exact mode exceeds the memory ceiling")
)

// ConfigError is a configuration-level failure. It is raised before any row
// is processed, except when an exact run crosses its ceiling mid-stream.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "profile config: " + e.Err.Error()
	}
	return fmt.Sprintf("profile config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func exceeded(rows, ceiling int64, how string) error {
	return &ConfigError{
		Field: "mode",
		Err:   fmt.Errorf("%w: %s %d rows, ceiling %d; use approximate mode", ErrModeMemoryExceeded, how, rows, ceiling),
	}
}
