package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"dataprof/internal/profile"
)

// writeSummary prints a human-readable report of prof.
func writeSummary(w io.Writer, prof *profile.DatasetProfile) error {
	fmt.Fprintf(w, "rows: %d  columns: %d  skipped: %d  duplicates: %d (%s)\n",
		prof.RowCount, prof.ColumnCount, prof.SkippedRows, prof.DuplicateRows, prof.DuplicateMode)
	fmt.Fprintf(w, "completeness: %.2f%%  missing cells: %d of %d\n",
		prof.CompletenessPct, prof.MissingCells, prof.TotalCells)
	fmt.Fprintf(w, "mode: %s  inference: %s (%d rows)", prof.Mode, prof.Inference, prof.InferenceRows)
	if prof.BytesRead > 0 {
		fmt.Fprintf(w, "  size: %d bytes", prof.BytesRead)
	}
	fmt.Fprintln(w)
	if prof.Partial {
		fmt.Fprintf(w, "partial: %s\n", prof.PartialReason)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "column\ttype\tmissing\tunique\tdetails")
	for _, c := range prof.Columns {
		unique := fmt.Sprint(c.UniqueCount)
		if c.UniqueApproximate {
			unique = "~" + unique
		}
		fmt.Fprintf(tw, "%s\t%s\t%d (%.1f%%)\t%s\t%s\n",
			c.Name, c.Type, c.MissingCount, c.MissingPct, unique, details(c))
	}
	return tw.Flush()
}

func details(c profile.ColumnProfile) string {
	switch {
	case c.Numeric != nil:
		n := c.Numeric
		lo, hi := fmt.Sprintf("%g", n.Min), fmt.Sprintf("%g", n.Max)
		if n.MinInt != nil && n.MaxInt != nil {
			lo, hi = fmt.Sprint(*n.MinInt), fmt.Sprint(*n.MaxInt)
		}
		s := fmt.Sprintf("min=%s q1=%g median=%g q3=%g max=%s mean=%g", lo, n.Q1, n.Median, n.Q3, hi, n.Mean)
		if n.StdDev != nil {
			s += fmt.Sprintf(" stddev=%g", *n.StdDev)
		}
		if n.QuantileMode == "approximate" {
			s += fmt.Sprintf(" (±%g)", n.QuantileErrorBound)
		}
		return s
	case c.Categorical != nil:
		parts := make([]string, 0, len(c.Categorical.TopValues))
		for _, v := range c.Categorical.TopValues {
			parts = append(parts, fmt.Sprintf("%q=%d", v.Value, v.Count))
		}
		return "top: " + strings.Join(parts, " ")
	}
	return ""
}
