package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dataprof/internal/config"
	"dataprof/internal/profile"
)

// runCLI executes the command line with a clean environment and no .env file.
func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	for _, k := range []string{config.EnvDSN, config.EnvDriver, config.EnvJob, config.EnvMetricsBackend, config.EnvMetricsTags} {
		t.Setenv(k, "")
	}
	args = append(args, "--env-file", filepath.Join(t.TempDir(), "none.env"))

	var out, errb bytes.Buffer
	code = execute(context.Background(), args, &out, &errb)
	return code, out.String(), errb.String()
}

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func decodeProfile(t *testing.T, s string) profile.DatasetProfile {
	t.Helper()
	var prof profile.DatasetProfile
	if err := json.Unmarshal([]byte(s), &prof); err != nil {
		t.Fatalf("decode profile: %v\n%s", err, s)
	}
	return prof
}

func numbersCSV(n int) string {
	var b strings.Builder
	b.WriteString("id;label\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%d;l%d\n", i, i%3)
	}
	return b.String()
}

func TestCSV_PrintsProfileJSON(t *testing.T) {
	path := writeTemp(t, "small.csv", numbersCSV(5))

	code, out, stderr := runCLI(t, "csv", path)
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, stderr)
	}
	prof := decodeProfile(t, out)
	if prof.RowCount != 5 || prof.ColumnCount != 2 {
		t.Fatalf("rows=%d cols=%d, want 5 and 2", prof.RowCount, prof.ColumnCount)
	}
	if prof.Separator != ";" {
		t.Fatalf("separator=%q, want ;", prof.Separator)
	}
	if got := prof.Columns[0].Type; got != profile.TypeInteger {
		t.Fatalf("id type=%s, want integer", got)
	}
	// short inputs are previewed whole
	if len(prof.Preview) != 5 {
		t.Fatalf("preview rows=%d, want 5", len(prof.Preview))
	}
}

func TestCSV_PreviewHeadOfLongInput(t *testing.T) {
	path := writeTemp(t, "long.csv", numbersCSV(40))

	code, out, stderr := runCLI(t, "csv", path)
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, stderr)
	}
	prof := decodeProfile(t, out)
	if len(prof.Preview) != previewHead {
		t.Fatalf("preview rows=%d, want %d", len(prof.Preview), previewHead)
	}
	if prof.Preview[0][0] != "1" {
		t.Fatalf("preview starts at %v", prof.Preview[0])
	}
}

func TestCSV_FlagsOverrideConfigFile(t *testing.T) {
	path := writeTemp(t, "data.csv", numbersCSV(20))
	cfgPath := writeTemp(t, "dataprof.yaml", "profile:\n  max_rows: 5\n  mode: exact\n")

	code, out, stderr := runCLI(t, "csv", path, "--config", cfgPath)
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, stderr)
	}
	prof := decodeProfile(t, out)
	if !prof.Partial || prof.PartialReason != profile.PartialRowBudget || prof.RowCount != 5 {
		t.Fatalf("partial=%v reason=%q rows=%d", prof.Partial, prof.PartialReason, prof.RowCount)
	}

	code, out, stderr = runCLI(t, "csv", path, "--config", cfgPath, "--max-rows", "0", "--mode", "approximate")
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, stderr)
	}
	prof = decodeProfile(t, out)
	if prof.Partial || prof.RowCount != 20 || prof.Mode != profile.ModeApproximate {
		t.Fatalf("partial=%v rows=%d mode=%s", prof.Partial, prof.RowCount, prof.Mode)
	}
}

func TestCSV_NoHeaderAndSeparator(t *testing.T) {
	path := writeTemp(t, "raw.txt", "1|a\n2|b\n3|c\n")

	code, out, stderr := runCLI(t, "csv", path, "--no-header", "--sep", "pipe")
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, stderr)
	}
	prof := decodeProfile(t, out)
	if prof.HeaderPresent || prof.RowCount != 3 {
		t.Fatalf("header=%v rows=%d", prof.HeaderPresent, prof.RowCount)
	}
	if prof.Columns[1].Name != "column_2" {
		t.Fatalf("name=%q, want column_2", prof.Columns[1].Name)
	}
}

func TestCSV_Summary(t *testing.T) {
	path := writeTemp(t, "small.csv", numbersCSV(6))

	code, out, stderr := runCLI(t, "csv", path, "--summary")
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, stderr)
	}
	for _, want := range []string{"rows: 6", "columns: 2", "completeness: 100.00%", "median=3.5", "max=6", `"l0"=2`} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestCSV_VerboseLogsStages(t *testing.T) {
	path := writeTemp(t, "small.csv", numbersCSV(3))

	code, _, stderr := runCLI(t, "csv", path, "-v")
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, stderr)
	}
	if !strings.Contains(stderr, "stage=scan ok") {
		t.Fatalf("stderr missing stage log:\n%s", stderr)
	}
}

func TestCLI_Errors(t *testing.T) {
	dir := t.TempDir()
	empty := writeTemp(t, "empty.csv", "")
	data := writeTemp(t, "data.csv", numbersCSV(3))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing_file", []string{"csv", filepath.Join(dir, "nope.csv")}, "unreadable"},
		{"empty_file", []string{"csv", empty}, "empty"},
		{"bad_mode", []string{"csv", data, "--mode", "fast"}, "unknown mode"},
		{"exact_over_ceiling", []string{"csv", data, "--mode", "exact", "--config", writeTemp(t, "c.yaml", "profile:\n  max_exact_rows: 2\n  approx_threshold: 2\n")}, "ceiling"},
		{"sql_without_driver", []string{"sql", "--dsn", "x", "--query", "select 1"}, "missing --driver"},
		{"no_args", []string{"csv"}, "accepts 1 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			if code != 1 {
				t.Fatalf("exit=%d, want 1", code)
			}
			if !strings.Contains(stderr, tt.want) {
				t.Fatalf("stderr=%q, want it to contain %q", stderr, tt.want)
			}
		})
	}
}

func TestPeek(t *testing.T) {
	path := writeTemp(t, "data.csv", numbersCSV(10))

	code, out, stderr := runCLI(t, "peek", path)
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, stderr)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1+peekLines {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	if lines[0] != `separator: ';'` {
		t.Fatalf("first line %q", lines[0])
	}
	if lines[1] != "1: [2] id | label" {
		t.Fatalf("second line %q", lines[1])
	}
}

func TestHTML(t *testing.T) {
	path := writeTemp(t, "report.html", `<html><body>
<table><tr><td>skip</td></tr></table>
<table>
  <tr><th>name</th><th>score</th></tr>
  <tr><td>a</td><td>1.5</td></tr>
  <tr><td>b</td><td>2.5</td></tr>
</table>
</body></html>`)

	code, out, stderr := runCLI(t, "html", path, "--table", "1")
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, stderr)
	}
	prof := decodeProfile(t, out)
	if prof.RowCount != 2 || prof.Columns[1].Name != "score" || prof.Columns[1].Type != profile.TypeFloat {
		t.Fatalf("rows=%d columns=%+v", prof.RowCount, prof.Columns)
	}
}

func TestJSON(t *testing.T) {
	path := writeTemp(t, "records.jsonl", `{"id": 1, "tags": ["a", "b"]}
{"id": 2, "tags": null}
7
{"id": 2, "tags": null}
`)

	code, out, stderr := runCLI(t, "json", path, "--array-sep", ";")
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, stderr)
	}
	prof := decodeProfile(t, out)
	if prof.RowCount != 3 || prof.SkippedRows != 1 || prof.DuplicateRows != 1 {
		t.Fatalf("rows=%d skipped=%d duplicates=%d", prof.RowCount, prof.SkippedRows, prof.DuplicateRows)
	}
	if prof.Preview[0][1] != "a;b" {
		t.Fatalf("preview=%v", prof.Preview)
	}
}

func TestSQL_DSNFromEnvironment(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE t (id INTEGER, note TEXT)`,
		`INSERT INTO t VALUES (1, 'x'), (2, NULL), (3, 'x')`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var out, errb bytes.Buffer
	t.Setenv(config.EnvMetricsBackend, "")
	t.Setenv(config.EnvDriver, "sqlite")
	t.Setenv(config.EnvDSN, dbPath)
	args := []string{"sql", "--query", "SELECT id, note FROM t ORDER BY id", "--env-file", filepath.Join(t.TempDir(), "none.env")}
	if code := execute(context.Background(), args, &out, &errb); code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, errb.String())
	}

	prof := decodeProfile(t, out.String())
	if prof.RowCount != 3 || prof.Columns[1].MissingCount != 1 {
		t.Fatalf("rows=%d note=%+v", prof.RowCount, prof.Columns[1])
	}
}
