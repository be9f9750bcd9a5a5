package sqlds

import (
	"context"
	"database/sql"
	"io"
	"path/filepath"
	"testing"

	"dataprof/internal/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `CREATE TABLE people (id INTEGER, name TEXT, score REAL, note TEXT)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO people VALUES
		(1, 'ann', 1.5, NULL),
		(2, 'bob', 2, 'x'),
		(3, NULL, NULL, 'y')`)
	require.NoError(t, err)
}

func collect(t *testing.T, r *Rows) [][]string {
	t.Helper()
	var out [][]string
	for {
		row, err := r.Next(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, append([]string(nil), row.Fields...))
	}
}

func TestQuery_StreamsRowsAsText(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	seed(t, db)

	r, err := Query(context.Background(), db, `SELECT id, name, score, note FROM people ORDER BY id`)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	assert.Equal(t, []string{"id", "name", "score", "note"}, r.Header())
	assert.Equal(t, [][]string{
		{"1", "ann", "1.5", ""},
		{"2", "bob", "2", "x"},
		{"3", "", "", "y"},
	}, collect(t, r))
}

func TestOpen_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	seed(t, db)
	require.NoError(t, db.Close())

	r, err := Open(context.Background(), Config{
		Kind:  "sqlite",
		DSN:   path,
		Query: `SELECT name FROM people WHERE id > ? ORDER BY id`,
		Args:  []any{1},
	})
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, [][]string{{"bob"}, {""}}, collect(t, r))
}

func TestOpen_BadQueryIsUnreadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	_, err := Open(context.Background(), Config{Kind: "sqlite", DSN: path, Query: `SELECT * FROM missing_table`})
	assert.ErrorIs(t, err, source.ErrUnreadable)
}

func TestDriverName(t *testing.T) {
	tests := map[string]string{
		"postgres":   "pgx",
		"PostgreSQL": "pgx",
		"mssql":      "sqlserver",
		"sqlserver":  "sqlserver",
		"sqlite":     "sqlite",
		" sqlite3 ":  "sqlite",
	}
	for kind, want := range tests {
		got, err := DriverName(kind)
		require.NoError(t, err, kind)
		assert.Equal(t, want, got, kind)
	}

	_, err := DriverName("oracle")
	assert.Error(t, err)
}

func TestOpen_RequiresQuery(t *testing.T) {
	_, err := Open(context.Background(), Config{Kind: "sqlite", DSN: ":memory:"})
	assert.Error(t, err)
}
