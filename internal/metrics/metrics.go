// Package metrics defines the backend-agnostic instrumentation surface of the
// profiler. The profiler receives a Backend as an option and never reaches
// for process-wide state; Nop is used when no backend is configured.
package metrics

// Labels are low-cardinality dimensions attached to a sample.
type Labels map[string]string

// Backend receives counters and histogram observations. Implementations must
// be safe for concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Metric names emitted by the profiler.
const (
	// RunsTotal counts finished runs; label "status" is ok, partial or error.
	RunsTotal = "profile_runs_total"
	// RowsTotal counts rows; label "kind" is processed, skipped or duplicate.
	RowsTotal = "profile_rows_total"
	// StageDurationSeconds observes stage wall time; labels "stage", "status".
	StageDurationSeconds = "profile_stage_duration_seconds"
	// SourceBytes observes bytes consumed per run.
	SourceBytes = "profile_source_bytes"
)

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}

// RecordStage observes the duration of one profiling stage.
func RecordStage(b Backend, stage, status string, seconds float64) {
	b.ObserveHistogram(StageDurationSeconds, seconds, Labels{"stage": stage, "status": status})
}

// RecordRows adds n rows of the given kind.
func RecordRows(b Backend, kind string, n int64) {
	if n <= 0 {
		return
	}
	b.IncCounter(RowsTotal, float64(n), Labels{"kind": kind})
}

var _ Backend = Nop{}
