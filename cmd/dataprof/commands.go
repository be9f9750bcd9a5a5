package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"dataprof/internal/config"
	"dataprof/internal/datasource/sqlds"
	csvsrc "dataprof/internal/parser/csv"
	htmlsrc "dataprof/internal/parser/html"
	jsonsrc "dataprof/internal/parser/json"
	"dataprof/internal/source"

	"github.com/spf13/cobra"
)

// peekLines is the number of records shown by peek.
const peekLines = 5

func newCSVCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "csv <path|->",
		Short: "Profile a delimited text file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, cfg, err := a.resolve(cmd)
			if err != nil {
				return err
			}
			src, err := openCSV(args[0], file.Source)
			if err != nil {
				return err
			}
			return a.run(cmd, file, cfg, src)
		},
	}
	a.addProfileFlags(cmd)
	a.addCSVFlags(cmd)
	cmd.Flags().BoolVar(&a.noHeader, "no-header", false, "the first row is data; columns are named column_1..n")
	return cmd
}

func (a *app) addCSVFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&a.sep, "sep", "", "field separator (default: detect ';', ',' or tab)")
	f.StringVar(&a.encoding, "encoding", "", "input encoding label, e.g. windows-1250 (default UTF-8)")
	f.BoolVar(&a.lazyQuotes, "lazy-quotes", true, "tolerate bare quotes in fields")
	f.BoolVar(&a.trimSpace, "trim-space", false, "trim surrounding whitespace of every field")
}

func openCSV(path string, s config.SourceSection) (*csvsrc.Reader, error) {
	sep, err := config.ParseSeparator(s.Separator)
	if err != nil {
		return nil, err
	}
	return csvsrc.Open(path, csvsrc.Options{
		Separator:  sep,
		LazyQuotes: s.LazyQuotesOr(true),
		TrimSpace:  s.TrimSpace,
		Encoding:   s.Encoding,
	})
}

func newHTMLCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "html <path|->",
		Short: "Profile a table of an HTML document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, cfg, err := a.resolve(cmd)
			if err != nil {
				return err
			}
			r, err := openInput(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			src, err := htmlsrc.ReadTable(r, a.table)
			if err != nil {
				return err
			}
			return a.run(cmd, file, cfg, src)
		},
	}
	a.addProfileFlags(cmd)
	cmd.Flags().IntVar(&a.table, "table", 0, "0-based index of the <table> in document order")
	return cmd
}

func newJSONCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "json <path|->",
		Short: "Profile the records of a JSON or JSONL document",
		Long: "Records are the objects of a root array, of the first array-of-objects\n" +
			"field of a root object, or a stream of objects. The keys of the first\n" +
			"record name the columns.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, cfg, err := a.resolve(cmd)
			if err != nil {
				return err
			}
			src, err := jsonsrc.Open(args[0], jsonsrc.Options{ArrayJoinSeparator: a.arraySep})
			if err != nil {
				return err
			}
			return a.run(cmd, file, cfg, src)
		},
	}
	a.addProfileFlags(cmd)
	cmd.Flags().StringVar(&a.arraySep, "array-sep", ",", "separator joining arrays of scalars into one cell")
	return cmd
}

func newSQLCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sql",
		Short: "Profile the result set of a SQL query",
		Long: "Runs one read-only query against postgres, mssql or sqlite and profiles its rows.\n" +
			"The DSN and driver may also come from DATAPROF_DSN and DATAPROF_DRIVER.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, cfg, err := a.resolve(cmd)
			if err != nil {
				return err
			}
			s := file.Source
			switch {
			case strings.TrimSpace(s.Driver) == "":
				return errors.New("sql: missing --driver (or DATAPROF_DRIVER)")
			case strings.TrimSpace(s.DSN) == "":
				return errors.New("sql: missing --dsn (or DATAPROF_DSN)")
			case strings.TrimSpace(s.Query) == "":
				return errors.New("sql: missing --query")
			}

			src, err := sqlds.Open(cmd.Context(), sqlds.Config{Kind: s.Driver, DSN: s.DSN, Query: s.Query})
			if err != nil {
				return err
			}
			return a.run(cmd, file, cfg, src)
		},
	}
	a.addProfileFlags(cmd)
	f := cmd.Flags()
	f.StringVar(&a.driver, "driver", "", "database backend: postgres|mssql|sqlite")
	f.StringVar(&a.dsn, "dsn", "", "data source name (highest priority over DATAPROF_DSN)")
	f.StringVar(&a.query, "query", "", "query whose result set is profiled")
	return cmd
}

// newPeekCmd prints the first records split on the detected separator,
// without profiling.
func newPeekCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peek <path|->",
		Short: "Show the first lines of a delimited file, split into fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _, err := a.resolve(cmd)
			if err != nil {
				return err
			}
			src, err := openCSV(args[0], file.Source)
			if err != nil {
				return err
			}
			defer src.Close()
			return peek(cmd.Context(), a.stdout, src, peekLines)
		},
	}
	a.addCSVFlags(cmd)
	return cmd
}

func peek(ctx context.Context, w io.Writer, r *csvsrc.Reader, n int) error {
	fmt.Fprintf(w, "separator: %q\n", r.Separator())
	for i := 0; i < n; i++ {
		row, err := r.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, source.ErrMalformed):
			fmt.Fprintf(w, "skipped: %v\n", err)
			continue
		default:
			return err
		}
		fmt.Fprintf(w, "%d: [%d] %s\n", row.Index, len(row.Fields), strings.Join(row.Fields, " | "))
	}
	return nil
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, source.Unreadable(0, err)
	}
	return f, nil
}
