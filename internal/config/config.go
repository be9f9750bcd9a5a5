// Package config loads the dataprof CLI configuration.
//
// Values come from four layers, highest priority first:
//
//  1. command-line flags (applied by the caller)
//  2. environment variables, optionally seeded from a .env file
//  3. the YAML file given with --config
//  4. profile.Defaults
//
// File and env are merged here; the CLI overlays the flags the user set.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"dataprof/internal/datasource/sqlds"
	"dataprof/internal/profile"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment keys.
const (
	EnvDSN            = "DATAPROF_DSN"
	EnvDriver         = "DATAPROF_DRIVER"
	EnvJob            = "DATAPROF_JOB"
	EnvMetricsBackend = "METRICS_BACKEND"
	EnvMetricsTags    = "METRICS_TAGS"
)

type File struct {
	Profile ProfileSection `yaml:"profile"`
	Source  SourceSection  `yaml:"source"`
	Metrics MetricsSection `yaml:"metrics"`
}

// ProfileSection mirrors profile.Config. Zero values keep the defaults.
type ProfileSection struct {
	Header              *bool   `yaml:"header"`
	Missing             string  `yaml:"missing"`
	Mode                string  `yaml:"mode"`
	Inference           string  `yaml:"inference"`
	SampleRows          int     `yaml:"sample_rows"`
	ApproxThreshold     int64   `yaml:"approx_threshold"`
	MaxExactRows        int64   `yaml:"max_exact_rows"`
	ExpectedRows        int64   `yaml:"expected_rows"`
	TopK                int     `yaml:"top_k"`
	FrequencyCapacity   int     `yaml:"frequency_capacity"`
	UniqueExactLimit    int     `yaml:"unique_exact_limit"`
	DuplicateExactLimit int     `yaml:"duplicate_exact_limit"`
	FalsePositiveRate   float64 `yaml:"false_positive_rate"`
	RelativeAccuracy    float64 `yaml:"relative_accuracy"`
	Workers             int     `yaml:"workers"`
	BatchSize           int     `yaml:"batch_size"`
	MaxRows             int64   `yaml:"max_rows"`
	MaxBytes            int64   `yaml:"max_bytes"`
}

type SourceSection struct {
	Separator  string `yaml:"separator"`
	Encoding   string `yaml:"encoding"`
	LazyQuotes *bool  `yaml:"lazy_quotes"`
	TrimSpace  bool   `yaml:"trim_space"`

	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Query  string `yaml:"query"`
}

type MetricsSection struct {
	// Backend is "none" (default) or "datadog".
	Backend string `yaml:"backend"`
	// Tags is a comma-separated list of key:value tags.
	Tags string `yaml:"tags"`
	Job  string `yaml:"job"`
}

// Load reads and validates the YAML file at path. An empty path yields an
// empty File.
func Load(path string) (*File, error) {
	var f File
	if strings.TrimSpace(path) == "" {
		return &f, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &f, nil
}

// LoadDotEnv seeds the process environment from the given .env files
// (default ".env"). Variables already set are kept; missing files are
// ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides file values with the non-blank environment variables
// reported by getenv (os.Getenv when nil).
func (f *File) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&f.Source.DSN, EnvDSN)
	set(&f.Source.Driver, EnvDriver)
	set(&f.Metrics.Backend, EnvMetricsBackend)
	set(&f.Metrics.Tags, EnvMetricsTags)
	set(&f.Metrics.Job, EnvJob)
}

// Validate checks the fields that are not validated by profile.Config.
func (f *File) Validate() error {
	if _, err := ParseSeparator(f.Source.Separator); err != nil {
		return err
	}
	if d := strings.TrimSpace(f.Source.Driver); d != "" {
		if _, err := sqlds.DriverName(d); err != nil {
			return fmt.Errorf("source.driver: %w", err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(f.Metrics.Backend)) {
	case "", "none", "datadog":
	default:
		return fmt.Errorf("metrics.backend: unknown backend %q (want none or datadog)", f.Metrics.Backend)
	}
	if f.Profile.Mode != "" {
		if _, err := profile.ParseMode(f.Profile.Mode); err != nil {
			return err
		}
	}
	switch strings.ToLower(strings.TrimSpace(f.Profile.Inference)) {
	case "", string(profile.InferSample), string(profile.InferProgressive):
	default:
		return fmt.Errorf("profile.inference: unknown inference %q", f.Profile.Inference)
	}
	return nil
}

// ProfileConfig overlays the profile section on profile.Defaults. The result
// is validated by profile.New.
func (f *File) ProfileConfig() (profile.Config, error) {
	p := f.Profile
	cfg := profile.Defaults()

	if p.Header != nil {
		cfg.Header = *p.Header
	}
	cfg.Missing = p.Missing
	if p.Mode != "" {
		m, err := profile.ParseMode(p.Mode)
		if err != nil {
			return profile.Config{}, err
		}
		cfg.Mode = m
	}
	if p.Inference != "" {
		cfg.Inference = profile.Inference(strings.ToLower(strings.TrimSpace(p.Inference)))
	}

	setInt(&cfg.SampleRows, p.SampleRows)
	setInt(&cfg.ApproxThreshold, p.ApproxThreshold)
	setInt(&cfg.MaxExactRows, p.MaxExactRows)
	setInt(&cfg.ExpectedRows, p.ExpectedRows)
	setInt(&cfg.TopK, p.TopK)
	setInt(&cfg.FrequencyCapacity, p.FrequencyCapacity)
	setInt(&cfg.UniqueExactLimit, p.UniqueExactLimit)
	setInt(&cfg.DuplicateExactLimit, p.DuplicateExactLimit)
	setInt(&cfg.Workers, p.Workers)
	setInt(&cfg.BatchSize, p.BatchSize)
	setInt(&cfg.MaxRows, p.MaxRows)
	setInt(&cfg.MaxBytes, p.MaxBytes)
	if p.FalsePositiveRate != 0 {
		cfg.FalsePositiveRate = p.FalsePositiveRate
	}
	if p.RelativeAccuracy != 0 {
		cfg.RelativeAccuracy = p.RelativeAccuracy
	}
	return cfg, nil
}

func setInt[T int | int64](dst *T, v T) {
	if v != 0 {
		*dst = v
	}
}

// ParseSeparator accepts a single character or one of the names "tab",
// "comma", "semicolon", "pipe" and `\t`. Blank means detect (zero rune).
func ParseSeparator(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	case "comma":
		return ',', nil
	case "semicolon":
		return ';', nil
	case "pipe":
		return '|', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("source.separator: want a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("source.separator: %q cannot be used", s)
	}
	return r, nil
}

// LazyQuotesOr reports the lazy_quotes setting, def when unset.
func (s SourceSection) LazyQuotesOr(def bool) bool {
	if s.LazyQuotes == nil {
		return def
	}
	return *s.LazyQuotes
}
