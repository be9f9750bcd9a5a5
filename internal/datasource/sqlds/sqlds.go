// Package sqlds exposes the result set of a SQL query as a source.Source.
//
// Three backends are supported, each through its database/sql driver:
//   - "postgres" (jackc/pgx stdlib driver "pgx")
//   - "mssql"    (microsoft/go-mssqldb driver "sqlserver")
//   - "sqlite"   (modernc.org/sqlite driver "sqlite")
//
// The source is read-only: it runs exactly one query and streams its rows.
// Every value is rendered as text so the profiler sees the same shape it
// gets from delimited files; SQL NULL becomes the empty string (missing).
package sqlds

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"dataprof/internal/source"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

// Config selects the backend and the query to profile.
type Config struct {
	// Kind is "postgres", "mssql" or "sqlite" (aliases: postgresql,
	// sqlserver, sqlite3).
	Kind  string
	DSN   string
	Query string
	Args  []any
}

// DriverName maps a backend kind to its registered database/sql driver.
func DriverName(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "postgres", "postgresql":
		return "pgx", nil
	case "mssql", "sqlserver":
		return "sqlserver", nil
	case "sqlite", "sqlite3":
		return "sqlite", nil
	}
	return "", fmt.Errorf("sqlds: unsupported backend %q", kind)
}

// Rows streams a query result. It implements source.Source and
// source.Headered.
type Rows struct {
	rows   *sql.Rows
	db     *sql.DB // closed by Close when the source opened it
	header []string
	vals   []sql.NullString
	ptrs   []any
	out    []string
	line   int
}

// Open connects using cfg, verifies connectivity and runs the query.
// The returned Rows owns the connection pool and closes it on Close.
func Open(ctx context.Context, cfg Config) (*Rows, error) {
	driver, err := DriverName(cfg.Kind)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Query) == "" {
		return nil, fmt.Errorf("sqlds: query is required")
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, source.Unreadable(0, fmt.Errorf("open %s: %w", cfg.Kind, err))
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, source.Unreadable(0, fmt.Errorf("ping %s: %w", cfg.Kind, err))
	}

	r, err := Query(ctx, db, cfg.Query, cfg.Args...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	r.db = db
	return r, nil
}

// Query runs query on an existing pool. The caller keeps ownership of db.
func Query(ctx context.Context, db *sql.DB, query string, args ...any) (*Rows, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, source.Unreadable(0, fmt.Errorf("query: %w", err))
	}

	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, source.Unreadable(0, fmt.Errorf("columns: %w", err))
	}
	if len(cols) == 0 {
		_ = rows.Close()
		return nil, source.Empty()
	}

	r := &Rows{
		rows:   rows,
		header: cols,
		vals:   make([]sql.NullString, len(cols)),
		ptrs:   make([]any, len(cols)),
		out:    make([]string, len(cols)),
	}
	for i := range r.vals {
		r.ptrs[i] = &r.vals[i]
	}
	return r, nil
}

// Header implements source.Headered.
func (r *Rows) Header() []string { return r.header }

// Next implements source.Source. The returned fields are reused on the next
// call.
func (r *Rows) Next(ctx context.Context) (source.RawRow, error) {
	if err := ctx.Err(); err != nil {
		return source.RawRow{}, err
	}
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return source.RawRow{}, source.Unreadable(r.line+1, err)
		}
		return source.RawRow{}, io.EOF
	}
	r.line++

	if err := r.rows.Scan(r.ptrs...); err != nil {
		return source.RawRow{}, source.Malformed(r.line, err)
	}
	for i, v := range r.vals {
		if v.Valid {
			r.out[i] = v.String
		} else {
			r.out[i] = ""
		}
	}
	return source.RawRow{Fields: r.out, Index: r.line}, nil
}

// Close releases the result set, and the pool when Open created it.
func (r *Rows) Close() error {
	err := r.rows.Close()
	if r.db != nil {
		if cerr := r.db.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

var (
	_ source.Source   = (*Rows)(nil)
	_ source.Headered = (*Rows)(nil)
)
