// Command dataprof profiles tabular data and prints the profile as JSON.
//
// Sources:
//
//	dataprof csv data.csv            delimited text (file or "-" for stdin)
//	dataprof html report.html        the n-th <table> of an HTML document
//	dataprof json records.json       objects of a JSON array, envelope or JSONL
//	dataprof sql --driver sqlite ... the result set of one query
//	dataprof peek data.csv           first lines split on the detected separator
//
// Settings are resolved flag → env → --config file → default. The .env file
// in the working directory, when present, seeds the environment.
//
// Interrupting a run (SIGINT/SIGTERM) prints the partial profile of the rows
// read so far.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "dataprof: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "dataprof",
		Short:         "Profile tabular data",
		Long:          "Single-pass profiling of delimited text, HTML tables, JSON records and SQL query results.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "log stages to stderr")
	pf.StringVar(&a.metricsBackend, "metrics-backend", "none", "metrics backend: none|datadog")
	pf.BoolVar(&a.pretty, "pretty", false, "indent JSON output")
	pf.BoolVar(&a.summary, "summary", false, "print a text summary instead of JSON")
	pf.StringVar(&a.configPath, "config", "", "YAML config file")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded into the environment when present")

	root.AddCommand(
		newCSVCmd(a),
		newHTMLCmd(a),
		newJSONCmd(a),
		newSQLCmd(a),
		newPeekCmd(a),
	)
	return root
}
