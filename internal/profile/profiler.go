// Package profile drives one profiling pass over a source.Source and
// assembles the immutable DatasetProfile.
//
// A run reads the optional header, buffers a bounded sample that fixes the
// column types and the quantile mode, replays the sample into the column
// accumulators and streams the rest of the input through them. Row-level
// problems (wrong field count, unparseable record) and cell-level problems
// (value not matching the column type) become counters in the profile; only
// source failures and configuration errors are returned.
package profile

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"dataprof/internal/accumulate"
	"dataprof/internal/dedupe"
	"dataprof/internal/inference"
	"dataprof/internal/metrics"
	"dataprof/internal/source"
)

// Logger is the minimal logging interface used by the profiler.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Option customizes a Profiler.
type Option func(*Profiler)

// WithLogger sets the stage logger. The default discards output.
func WithLogger(l Logger) Option {
	return func(p *Profiler) { p.logger = l }
}

// WithMetrics sets the metrics backend. The default is metrics.Nop.
func WithMetrics(b metrics.Backend) Option {
	return func(p *Profiler) {
		if b != nil {
			p.metrics = b
		}
	}
}

// WithPreview keeps the first n processed rows in DatasetProfile.Preview.
func WithPreview(n int) Option {
	return func(p *Profiler) { p.preview = max(n, 0) }
}

// maxSkipLogs bounds the per-run log lines about skipped rows.
const maxSkipLogs = 10

// Profiler runs profiling passes with a fixed configuration. It holds no
// per-run state and may be reused, also concurrently.
type Profiler struct {
	cfg     Config
	logger  Logger
	metrics metrics.Backend
	preview int
}

// New validates cfg, after filling its zero-valued fields with defaults.
// Invalid options are reported as *ConfigError before any I/O.
func New(cfg Config, opts ...Option) (*Profiler, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Profiler{cfg: cfg, metrics: metrics.Nop{}}
	for _, o := range opts {
		o(p)
	}
	if p.logger == nil {
		p.logger = log.New(io.Discard, "", 0)
	}
	return p, nil
}

// Config returns the effective configuration.
func (p *Profiler) Config() Config { return p.cfg }

// Run profiles src. The caller keeps ownership of src and closes it.
//
// Errors are either source failures (source.ErrEmpty, source.ErrEncoding,
// source.ErrUnreadable) or a *ConfigError wrapping ErrModeMemoryExceeded.
// Cancellation of ctx and the MaxRows/MaxBytes budgets are not errors: the
// returned profile covers the rows seen so far and is marked Partial.
func (p *Profiler) Run(ctx context.Context, src source.Source) (*DatasetProfile, error) {
	start := time.Now()

	r := &run{
		p:    p,
		cfg:  p.cfg,
		logf: p.logger.Printf,
		src:  src,
	}
	r.sized, _ = src.(source.Sized)

	prof, err := r.execute(ctx)

	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case prof.Partial:
		status = "partial"
	}
	p.metrics.IncCounter(metrics.RunsTotal, 1, metrics.Labels{"status": status})
	metrics.RecordStage(p.metrics, "total", status, time.Since(start).Seconds())
	if err != nil {
		r.logf("stage=run status=error duration=%s err=%v", durMS(start), err)
		return nil, err
	}

	metrics.RecordRows(p.metrics, "processed", prof.RowCount)
	metrics.RecordRows(p.metrics, "skipped", prof.SkippedRows)
	metrics.RecordRows(p.metrics, "duplicate", prof.DuplicateRows)
	if prof.BytesRead > 0 {
		p.metrics.ObserveHistogram(metrics.SourceBytes, float64(prof.BytesRead), nil)
	}
	r.logf("stage=run status=%s rows=%d skipped=%d duration=%s", status, prof.RowCount, prof.SkippedRows, durMS(start))
	return prof, nil
}

// run is the state of one pass. It is confined to the producer goroutine.
type run struct {
	p     *Profiler
	cfg   Config
	logf  func(format string, v ...any)
	src   source.Source
	sized source.Sized

	names         []string
	width         int
	headerPresent bool

	sample    [][]string
	accepted  int64 // data rows handed out by read
	processed int64
	skipped   int64
	skipLogs  int
	rawBytes  int64 // byte estimate for sources that are not Sized

	eof     bool
	partial PartialReason
}

func (r *run) done() bool { return r.eof || r.partial != "" }

func (r *run) execute(ctx context.Context) (*DatasetProfile, error) {
	inferStart := time.Now()

	if err := r.readHeader(ctx); err != nil {
		return nil, err
	}

	for !r.done() && len(r.sample) < r.cfg.SampleRows {
		fields, ok, err := r.read(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		r.sample = append(r.sample, append([]string(nil), fields...))
	}
	if r.width == 0 {
		// records were read but none fixed a schema
		if r.partial != "" || r.skipped > 0 {
			return r.emptyProfile(), nil
		}
		return nil, source.Empty()
	}

	approx, estimate, err := r.chooseMode()
	if err != nil {
		return nil, err
	}

	types := make([]inference.Type, r.width)
	if r.cfg.Inference == InferSample {
		inf := inference.New(r.width, r.cfg.Missing)
		for _, row := range r.sample {
			inf.Observe(row)
		}
		types = inf.Types()
	}
	r.logf("stage=infer ok mode=%s inference=%s sample_rows=%d columns=%d approximate=%t duration=%s",
		r.cfg.Mode, r.cfg.Inference, len(r.sample), r.width, approx, durMS(inferStart))
	metrics.RecordStage(r.p.metrics, "infer", "ok", time.Since(inferStart).Seconds())

	scanStart := time.Now()
	cols := make([]*accumulate.Column, r.width)
	for i := range cols {
		cols[i] = accumulate.NewColumn(accumulate.Options{
			Type:              types[i],
			Progressive:       r.cfg.Inference == InferProgressive,
			Missing:           r.cfg.Missing,
			TopK:              r.cfg.TopK,
			FrequencyCapacity: r.cfg.FrequencyCapacity,
			UniqueExactLimit:  r.cfg.UniqueExactLimit,
			Approximate:       approx,
			RelativeAccuracy:  r.cfg.RelativeAccuracy,
		})
	}
	det := dedupe.New(dedupe.Options{
		ExactLimit:        r.cfg.DuplicateExactLimit,
		FalsePositiveRate: r.cfg.FalsePositiveRate,
		ExpectedRows:      estimate,
	})
	disp := newDispatcher(cols, r.cfg.Workers, r.cfg.BatchSize)

	var preview [][]string
	process := func(fields []string) error {
		if r.cfg.Mode == ModeExact && r.processed+1 > r.cfg.MaxExactRows {
			return exceeded(r.processed+1, r.cfg.MaxExactRows, "read")
		}
		det.Add(fields)
		disp.add(fields)
		r.processed++
		if len(preview) < r.p.preview {
			preview = append(preview, append([]string(nil), fields...))
		}
		if r.cfg.Mode == ModeAuto && !approx && r.processed >= r.cfg.ApproxThreshold {
			disp.promote()
			approx = true
			r.logf("stage=scan promote=approximate rows=%d", r.processed)
		}
		return nil
	}

	scanErr := func() error {
		for _, row := range r.sample {
			if err := process(row); err != nil {
				return err
			}
		}
		r.sample = nil
		for !r.done() {
			fields, ok, err := r.read(ctx)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			if err := process(fields); err != nil {
				return err
			}
		}
		return nil
	}()
	if err := disp.close(); err != nil && scanErr == nil {
		scanErr = err
	}
	if scanErr != nil {
		metrics.RecordStage(r.p.metrics, "scan", "error", time.Since(scanStart).Seconds())
		return nil, scanErr
	}
	r.logf("stage=scan ok rows=%d skipped=%d workers=%d duration=%s", r.processed, r.skipped, min(r.cfg.Workers, r.width), durMS(scanStart))
	metrics.RecordStage(r.p.metrics, "scan", "ok", time.Since(scanStart).Seconds())

	finStart := time.Now()
	prof := r.finalize(cols, det, approx)
	prof.Preview = preview
	r.logf("stage=finalize ok duration=%s", durMS(finStart))
	metrics.RecordStage(r.p.metrics, "finalize", "ok", time.Since(finStart).Seconds())
	return prof, nil
}

// readHeader names the columns. Sources with their own header are not
// consumed; otherwise the first record is the header when cfg.Header is set.
// Without a header the width is taken from the first data row.
func (r *run) readHeader(ctx context.Context) error {
	if h, ok := r.src.(source.Headered); ok {
		hdr := h.Header()
		if len(hdr) == 0 {
			return source.Empty()
		}
		r.names = columnNames(hdr)
		r.width = len(hdr)
		r.headerPresent = true
		return nil
	}
	if !r.cfg.Header {
		return nil
	}

	row, ok, err := r.pull(ctx)
	if err != nil || !ok {
		return err
	}
	if len(row.Fields) == 0 {
		return source.Empty()
	}
	r.names = columnNames(row.Fields)
	r.width = len(row.Fields)
	r.headerPresent = true
	return nil
}

// read returns the next data row of the schema's width. Rows of another
// width are skipped. ok is false once the input ended or the pass stopped.
func (r *run) read(ctx context.Context) (fields []string, ok bool, err error) {
	for {
		if r.cfg.MaxRows > 0 && r.accepted >= r.cfg.MaxRows {
			r.probeEnd(ctx, PartialRowBudget)
			return nil, false, nil
		}
		row, ok, err := r.pull(ctx)
		if err != nil || !ok {
			return nil, false, err
		}
		if r.width == 0 {
			if len(row.Fields) == 0 {
				r.skip(row.Index, "empty record")
				continue
			}
			r.width = len(row.Fields)
			r.names = positionalNames(r.width)
		}
		if len(row.Fields) != r.width {
			r.skip(row.Index, "field count mismatch")
			continue
		}
		r.accepted++
		return row.Fields, true, nil
	}
}

// probeEnd is called when the row budget is used up: the run is partial
// unless the input ends right there.
func (r *run) probeEnd(ctx context.Context, reason PartialReason) {
	if _, err := r.src.Next(ctx); errors.Is(err, io.EOF) {
		r.eof = true
		return
	}
	r.partial = reason
}

// pull reads one record, skipping malformed ones. ok is false at the end of
// the input, on cancellation and when the byte budget is exhausted.
func (r *run) pull(ctx context.Context) (row source.RawRow, ok bool, err error) {
	for {
		if r.done() {
			return source.RawRow{}, false, nil
		}
		if ctx.Err() != nil {
			r.partial = PartialCanceled
			return source.RawRow{}, false, nil
		}

		row, err := r.src.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			r.eof = true
			return source.RawRow{}, false, nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			r.partial = PartialCanceled
			return source.RawRow{}, false, nil
		case errors.Is(err, source.ErrMalformed):
			r.skip(source.RecordIndex(err), err.Error())
			continue
		case source.Fatal(err):
			return source.RawRow{}, false, err
		default:
			return source.RawRow{}, false, source.Unreadable(row.Index, err)
		}

		if r.sized == nil {
			r.rawBytes += int64(len(row.Fields))
			for _, f := range row.Fields {
				r.rawBytes += int64(len(f))
			}
		}
		if r.cfg.MaxBytes > 0 && r.bytesRead() > r.cfg.MaxBytes {
			r.partial = PartialByteBudget
			return source.RawRow{}, false, nil
		}
		return row, true, nil
	}
}

func (r *run) skip(index int, reason string) {
	r.skipped++
	if r.skipLogs < maxSkipLogs {
		r.skipLogs++
		r.logf("stage=scan skip record=%d reason=%q", index, reason)
	}
}

// bytesRead is the source offset for Sized sources, otherwise the field
// bytes plus one separator or terminator per field.
func (r *run) bytesRead() int64 {
	if r.sized != nil {
		return r.sized.Offset()
	}
	return r.rawBytes
}

// estimateRows predicts the total row count from the caller hint, a
// completely buffered input, or the bytes-per-row of the sample.
func (r *run) estimateRows() (int64, bool) {
	if r.cfg.ExpectedRows > 0 {
		return r.cfg.ExpectedRows, true
	}
	if r.eof {
		return r.accepted, true
	}
	if r.sized == nil || len(r.sample) == 0 {
		return 0, false
	}
	size, off := r.sized.SizeHint(), r.sized.Offset()
	if size <= 0 || off <= 0 {
		return 0, false
	}
	seen := r.accepted + r.skipped
	return int64(float64(size) / float64(off) * float64(seen)), true
}

// chooseMode decides whether quantiles start approximate. Forced exact mode
// fails when the estimated input exceeds MaxExactRows.
func (r *run) chooseMode() (approx bool, estimate int64, err error) {
	estimate, known := r.estimateRows()
	switch r.cfg.Mode {
	case ModeApproximate:
		return true, estimate, nil
	case ModeExact:
		if known && estimate > r.cfg.MaxExactRows {
			return false, estimate, exceeded(estimate, r.cfg.MaxExactRows, "estimated")
		}
		return false, estimate, nil
	}
	return known && estimate >= r.cfg.ApproxThreshold, estimate, nil
}

func (r *run) emptyProfile() *DatasetProfile {
	return &DatasetProfile{
		Columns:         []ColumnProfile{},
		CompletenessPct: 100,
		DuplicateMode:   string(dedupe.Exact),
		SkippedRows:     r.skipped,
		Mode:            ModeExact,
		Inference:       r.cfg.Inference,
		Partial:         r.partial != "",
		PartialReason:   r.partial,
		BytesRead:       r.bytesRead(),
		Separator:       r.separator(),
	}
}

func (r *run) separator() string {
	if s, ok := r.src.(interface{ Separator() rune }); ok {
		return string(s.Separator())
	}
	return ""
}

func (r *run) finalize(cols []*accumulate.Column, det *dedupe.Detector, approx bool) *DatasetProfile {
	prof := &DatasetProfile{
		RowCount:      r.processed,
		ColumnCount:   r.width,
		Columns:       make([]ColumnProfile, len(cols)),
		DuplicateRows: det.Duplicates(),
		DuplicateMode: string(det.Mode()),
		SkippedRows:   r.skipped,
		Mode:          ModeExact,
		Inference:     r.cfg.Inference,
		Partial:       r.partial != "",
		PartialReason: r.partial,
		HeaderPresent: r.headerPresent,
		Separator:     r.separator(),
		BytesRead:     r.bytesRead(),
	}
	if approx {
		prof.Mode = ModeApproximate
	}
	if det.Mode() == dedupe.Approximate {
		prof.DuplicateFalsePositiveRate = det.FalsePositiveRate()
	}
	if r.cfg.Inference == InferSample {
		prof.InferenceRows = int(min(r.processed, int64(r.cfg.SampleRows)))
	} else {
		prof.InferenceRows = int(r.processed)
	}

	for i, c := range cols {
		res := c.Result()
		prof.Columns[i] = ColumnProfile{
			Name:              r.names[i],
			Index:             i,
			Type:              res.Type,
			Count:             res.Count,
			MissingCount:      res.Missing,
			NonMissingCount:   res.Count - res.Missing,
			MissingPct:        percent(res.Missing, res.Count),
			UniqueCount:       res.Unique,
			UniqueApproximate: res.UniqueApproximate,
			Numeric:           res.Numeric,
			Categorical:       res.Categorical,
			Boolean:           res.Boolean,
		}
		prof.TotalCells += res.Count
		prof.MissingCells += res.Missing
	}

	prof.CompletenessPct = 100
	if prof.TotalCells > 0 {
		prof.CompletenessPct = float64(prof.TotalCells-prof.MissingCells) / float64(prof.TotalCells) * 100
	}
	return prof
}

func percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }
