package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"dataprof/internal/config"
	"dataprof/internal/metrics"
	"dataprof/internal/metrics/datadog"
	"dataprof/internal/profile"
	"dataprof/internal/source"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const (
	// previewFull: inputs up to this many rows are previewed whole.
	previewFull = 25
	// previewHead is the preview size of longer inputs.
	previewHead = 10
)

// app holds the flag values shared by all commands.
type app struct {
	stdout, stderr io.Writer

	verbose        bool
	metricsBackend string
	pretty         bool
	summary        bool
	configPath     string
	envFile        string

	// profile options
	missing     string
	mode        string
	threshold   int64
	sampleRows  int
	progressive bool
	topK        int
	maxRows     int64
	maxBytes    int64
	workers     int

	// csv
	sep        string
	noHeader   bool
	encoding   string
	lazyQuotes bool
	trimSpace  bool

	// html
	table int

	// json
	arraySep string

	// sql
	driver string
	dsn    string
	query  string
}

func (a *app) addProfileFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&a.missing, "missing", "", "extra missing-value sentinel (blank cells are always missing)")
	f.StringVar(&a.mode, "mode", "auto", "quantile mode: auto|exact|approximate")
	f.Int64Var(&a.threshold, "threshold", profile.DefaultApproxThreshold, "rows at which auto mode switches to approximate")
	f.IntVar(&a.sampleRows, "sample-rows", profile.DefaultSampleRows, "rows used for type inference")
	f.BoolVar(&a.progressive, "progressive", false, "refine types over the whole input instead of the sample")
	f.IntVar(&a.topK, "top-k", profile.Defaults().TopK, "most frequent values reported per column")
	f.Int64Var(&a.maxRows, "max-rows", 0, "stop after this many data rows (0: no limit)")
	f.Int64Var(&a.maxBytes, "max-bytes", 0, "stop after this many input bytes (0: no limit)")
	f.IntVar(&a.workers, "workers", 1, "goroutines sharing the columns")
}

// resolve merges the config file, the environment and the flags set on cmd.
func (a *app) resolve(cmd *cobra.Command) (*config.File, profile.Config, error) {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return nil, profile.Config{}, err
	}
	file, err := config.Load(a.configPath)
	if err != nil {
		return nil, profile.Config{}, err
	}
	file.ApplyEnv(nil)

	cfg, err := file.ProfileConfig()
	if err != nil {
		return nil, profile.Config{}, err
	}

	changed := cmd.Flags().Changed
	if changed("missing") {
		cfg.Missing = a.missing
	}
	if changed("mode") {
		m, err := profile.ParseMode(a.mode)
		if err != nil {
			return nil, profile.Config{}, err
		}
		cfg.Mode = m
	}
	if changed("threshold") {
		cfg.ApproxThreshold = a.threshold
	}
	if changed("sample-rows") {
		cfg.SampleRows = a.sampleRows
	}
	if changed("progressive") {
		cfg.Inference = profile.InferSample
		if a.progressive {
			cfg.Inference = profile.InferProgressive
		}
	}
	if changed("top-k") {
		cfg.TopK = a.topK
	}
	if changed("max-rows") {
		cfg.MaxRows = a.maxRows
	}
	if changed("max-bytes") {
		cfg.MaxBytes = a.maxBytes
	}
	if changed("workers") {
		cfg.Workers = a.workers
	}

	if changed("no-header") {
		cfg.Header = !a.noHeader
	}
	if changed("sep") {
		file.Source.Separator = a.sep
	}
	if changed("encoding") {
		file.Source.Encoding = a.encoding
	}
	if changed("lazy-quotes") {
		file.Source.LazyQuotes = &a.lazyQuotes
	}
	if changed("trim-space") {
		file.Source.TrimSpace = a.trimSpace
	}
	if changed("driver") {
		file.Source.Driver = a.driver
	}
	if changed("dsn") {
		file.Source.DSN = a.dsn
	}
	if changed("query") {
		file.Source.Query = a.query
	}
	if changed("metrics-backend") {
		file.Metrics.Backend = a.metricsBackend
	}

	if err := file.Validate(); err != nil {
		return nil, profile.Config{}, err
	}
	return file, cfg, nil
}

func (a *app) logger() *log.Logger {
	if !a.verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(a.stderr, "dataprof: ", log.LstdFlags|log.Lmicroseconds)
}

// openMetrics returns the configured backend and its shutdown func. A
// backend that fails to start is logged and replaced by metrics.Nop.
func (a *app) openMetrics(ctx context.Context, file *config.File, logger *log.Logger) (metrics.Backend, func()) {
	name := strings.ToLower(strings.TrimSpace(file.Metrics.Backend))
	switch name {
	case "datadog":
		job := file.Metrics.Job
		if job == "" {
			job = "dataprof"
		}
		tags := append(datadog.ParseTagsCSV(file.Metrics.Tags), "run_id:"+uuid.NewString())

		b, err := datadog.NewBackend(context.WithoutCancel(ctx), datadog.Options{
			JobName:    job,
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			logger.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return metrics.Nop{}, func() {}
		}
		logger.Printf("metrics: backend=%s job_name=%s tags=%v", name, job, tags)
		return b, func() {
			if err := b.Close(); err != nil {
				logger.Printf("metrics: datadog close/flush error: %v", err)
			}
		}
	default:
		logger.Printf("metrics: disabled (backend=%q)", name)
		return metrics.Nop{}, func() {}
	}
}

// run profiles src and writes the result. src is closed before returning.
func (a *app) run(cmd *cobra.Command, file *config.File, cfg profile.Config, src source.Source) error {
	defer src.Close()

	ctx := cmd.Context()
	logger := a.logger()
	backend, closeMetrics := a.openMetrics(ctx, file, logger)
	defer closeMetrics()

	p, err := profile.New(cfg,
		profile.WithLogger(logger),
		profile.WithMetrics(backend),
		profile.WithPreview(previewFull+1),
	)
	if err != nil {
		return err
	}
	prof, err := p.Run(ctx, src)
	if err != nil {
		return err
	}
	if len(prof.Preview) > previewFull {
		prof.Preview = prof.Preview[:previewHead]
	}
	if prof.Partial {
		logger.Printf("partial profile: reason=%s rows=%d", prof.PartialReason, prof.RowCount)
	}

	if a.summary {
		return writeSummary(a.stdout, prof)
	}
	return a.writeJSON(prof)
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	if a.pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return nil
}
