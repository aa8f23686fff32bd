package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcost/internal/core"
	applog "jobcost/internal/log"
)

func newTestDB(t *testing.T, withSample bool) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "job_costing.db")
	require.NoError(t, Bootstrap(context.Background(), path, withSample))
	return path
}

func exec(t *testing.T, path string, stmts ...string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}
}

func TestOpenSQLiteMissingFile(t *testing.T) {
	_, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nope.db"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
}

func TestLoadUnifiesRelations(t *testing.T) {
	path := newTestDB(t, false)
	exec(t, path,
		`INSERT INTO materials (project_id, date, cost) VALUES ('A', '2024-01-01', 100)`,
		`INSERT INTO labor (project_id, date, hours_worked, hourly_rate) VALUES ('A', '2024-01-01', 2, 50)`,
		`INSERT INTO overhead (project_id, date, cost) VALUES ('B', '2024-01-02 08:30:00', 12.5)`,
	)

	store, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer store.Close()

	ds, err := store.Load(context.Background())
	require.NoError(t, err)
	txs := ds.Transactions()
	require.Len(t, txs, 3)

	assert.Equal(t, core.Materials, txs[0].Category)
	assert.Equal(t, "100", txs[0].Cost.String())
	assert.Equal(t, core.Labor, txs[1].Category)
	assert.Equal(t, "100", txs[1].Cost.String())
	assert.Equal(t, core.Overhead, txs[2].Category)
	assert.Equal(t, "B", txs[2].ProjectID)
	assert.Equal(t, "2024-01-02", txs[2].Date.String())

	v := core.Summarize(ds, core.Filter{ProjectID: "A", Start: core.NewDate(2024, 1, 1), End: core.NewDate(2024, 1, 1)})
	assert.Equal(t, "200", v.Totals.Total.String())
	assert.True(t, v.Totals.Overhead.IsZero())
}

func TestLoadIsIdempotent(t *testing.T) {
	path := newTestDB(t, true)
	store, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer store.Close()

	first, err := store.Load(context.Background())
	require.NoError(t, err)
	second, err := store.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, len(sampleMaterials)+len(sampleLabors)+len(sampleOverhead), first.Len())
	assert.True(t, first.Equal(second))
	assert.Equal(t, []string{"101", "102", "103"}, first.Projects())
}

func TestBootstrapSampleOnlyOnce(t *testing.T) {
	path := newTestDB(t, true)
	require.NoError(t, Bootstrap(context.Background(), path, true))

	store, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer store.Close()
	ds, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(sampleMaterials)+len(sampleLabors)+len(sampleOverhead), ds.Len())
}

func TestLoadIntegerProjectIDs(t *testing.T) {
	path := newTestDB(t, false)
	exec(t, path,
		`DROP TABLE materials`,
		`CREATE TABLE materials (project_id INTEGER, date TEXT, cost NUMERIC)`,
		`INSERT INTO materials VALUES (7, '2024-01-01', 10)`,
	)
	store, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer store.Close()

	ds, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, ds.Projects())
}

func TestLoadMissingColumn(t *testing.T) {
	path := newTestDB(t, false)
	exec(t, path,
		`DROP TABLE labor`,
		`CREATE TABLE labor (project_id TEXT, date TEXT, hours_worked REAL)`,
	)
	store, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "hourly_rate")
}

func TestLoadMissingRelation(t *testing.T) {
	path := newTestDB(t, false)
	exec(t, path, `DROP TABLE overhead`)
	store, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrSchemaMismatch)
}

func TestLoadBadDate(t *testing.T) {
	path := newTestDB(t, false)
	exec(t, path, `INSERT INTO materials (project_id, date, cost) VALUES ('A', 'someday', 1)`)
	store, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrSchemaMismatch)
}

func TestOpenSQLiteIsReadOnly(t *testing.T) {
	path := newTestDB(t, false)
	store, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.db.Exec(`INSERT INTO materials (project_id, date, cost) VALUES ('A', '2024-01-01', 1)`)
	assert.Error(t, err)
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal(line, &m), string(line))
		out = append(out, m)
	}
	return out
}

func TestLoadLogsAsStorageComponent(t *testing.T) {
	path := newTestDB(t, true)
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Level: slog.LevelDebug, Format: "json", Output: &buf})

	ctx := applog.WithLogger(context.Background(), logger)
	store, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(context.Background())
	require.NoError(t, err)

	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "Cost relations loaded", lines[0]["msg"])
	assert.Equal(t, applog.ComponentStorage, lines[0][applog.FieldComponent])
	assert.Equal(t, DriverSQLite, lines[0][applog.FieldDriver])

	// SetLogger retags whatever logger it is given.
	buf.Reset()
	store.SetLogger(logger.WithComponent(applog.ComponentHTTP))
	_, err = store.Load(context.Background())
	require.NoError(t, err)
	lines = logLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, applog.ComponentStorage, lines[0][applog.FieldComponent])
}

func TestBootstrapLogsAsStorageComponent(t *testing.T) {
	path := newTestDB(t, true)
	var buf bytes.Buffer
	ctx := applog.WithLogger(context.Background(),
		applog.New(applog.Config{Level: slog.LevelInfo, Format: "json", Output: &buf}))

	require.NoError(t, Bootstrap(ctx, path, true))

	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "Skipping sample data, store already has rows", lines[0]["msg"])
	assert.Equal(t, applog.ComponentStorage, lines[0][applog.FieldComponent])
}
