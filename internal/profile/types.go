package profile

import (
	"dataprof/internal/accumulate"
	"dataprof/internal/inference"
)

// ColumnType is the effective type of a column.
type ColumnType = inference.Type

const (
	TypeInteger    = inference.Integer
	TypeFloat      = inference.Float
	TypeBoolean    = inference.Boolean
	TypeText       = inference.Text
	TypeAllMissing = inference.AllMissing
)

type (
	NumericSummary     = accumulate.NumericSummary
	CategoricalSummary = accumulate.CategoricalSummary
	BooleanSummary     = accumulate.BooleanSummary
	ValueCount         = accumulate.ValueCount
)

// ColumnSchema is fixed once per run.
type ColumnSchema struct {
	Name  string     `json:"name"`
	Index int        `json:"index"`
	Type  ColumnType `json:"type"`
}

// PartialReason explains why a pass stopped before the end of the input.
type PartialReason string

const (
	PartialCanceled   PartialReason = "canceled"
	PartialRowBudget  PartialReason = "row_budget"
	PartialByteBudget PartialReason = "byte_budget"
)

// DatasetProfile is the immutable result of one run.
//
// Cell accounting: for every column, MissingCount + NonMissingCount equals
// RowCount, so the column totals add up to RowCount * ColumnCount. Rows
// skipped for a wrong field count or a parse failure are only counted in
// SkippedRows.
type DatasetProfile struct {
	RowCount        int64           `json:"row_count"`
	ColumnCount     int             `json:"column_count"`
	Columns         []ColumnProfile `json:"columns"`
	TotalCells      int64           `json:"total_cells"`
	MissingCells    int64           `json:"missing_cells"`
	CompletenessPct float64         `json:"completeness_pct"`

	DuplicateRows int64  `json:"duplicate_rows"`
	DuplicateMode string `json:"duplicate_mode"`
	// DuplicateFalsePositiveRate is set in approximate duplicate mode.
	DuplicateFalsePositiveRate float64 `json:"duplicate_false_positive_rate,omitempty"`

	SkippedRows int64 `json:"skipped_rows"`

	Mode          Mode          `json:"mode"`
	Inference     Inference     `json:"inference"`
	InferenceRows int           `json:"inference_rows"`
	Partial       bool          `json:"partial"`
	PartialReason PartialReason `json:"partial_reason,omitempty"`

	HeaderPresent bool   `json:"header_present"`
	Separator     string `json:"separator,omitempty"`
	BytesRead     int64  `json:"bytes_read,omitempty"`

	// Preview holds the first processed rows when requested.
	Preview [][]string `json:"preview,omitempty"`
}

// Schema returns the column schema of the profile.
func (p *DatasetProfile) Schema() []ColumnSchema {
	out := make([]ColumnSchema, len(p.Columns))
	for i, c := range p.Columns {
		out[i] = ColumnSchema{Name: c.Name, Index: c.Index, Type: c.Type}
	}
	return out
}

// Column returns the profile of the named column.
func (p *DatasetProfile) Column(name string) (ColumnProfile, bool) {
	for _, c := range p.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnProfile{}, false
}

// ColumnProfile summarizes one column. Numeric is set for integer and float
// columns with at least one parsed value, Categorical for text and boolean
// columns, Boolean for boolean columns.
type ColumnProfile struct {
	Name              string     `json:"name"`
	Index             int        `json:"index"`
	Type              ColumnType `json:"type"`
	Count             int64      `json:"count"`
	MissingCount      int64      `json:"missing_count"`
	NonMissingCount   int64      `json:"non_missing_count"`
	MissingPct        float64    `json:"missing_pct"`
	UniqueCount       uint64     `json:"unique_count"`
	UniqueApproximate bool       `json:"unique_approximate"`

	Numeric     *NumericSummary     `json:"numeric,omitempty"`
	Categorical *CategoricalSummary `json:"categorical,omitempty"`
	Boolean     *BooleanSummary     `json:"boolean,omitempty"`
}
