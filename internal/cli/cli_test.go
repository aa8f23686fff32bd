package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcost/internal/core"
)

// testEnv points the commands at a SQLite file under a temp dir and pins every
// setting the commands read.
func testEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "job_costing.db")
	t.Setenv("DATA_BACKEND", "sqlite")
	t.Setenv("SQLITE_DB_PATH", path)
	t.Setenv("APP_HOST", "127.0.0.1")
	t.Setenv("APP_PORT", "8050")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("LOG_FILE", "")
	t.Setenv("DEBUG", "false")
	t.Setenv("REFRESH_INTERVAL", "0")
	t.Setenv("AMQP_URL", "")
	return path
}

func run(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	a := &app{}
	t.Cleanup(a.close)

	cmd := newRootCommand(a, "test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func initSample(t *testing.T) string {
	t.Helper()
	path := testEnv(t)
	out, err := run(t, context.Background(), "init", "--sample")
	require.NoError(t, err)
	require.Contains(t, out, "Initialized "+path)
	return path
}

func TestInitCreatesStore(t *testing.T) {
	path := initSample(t)

	_, err := os.Stat(path)
	require.NoError(t, err)

	// Running again keeps the existing rows.
	_, err = run(t, context.Background(), "init", "--sample")
	require.NoError(t, err)

	out, err := run(t, context.Background(), "summary", "--project", "101")
	require.NoError(t, err)
	assert.Contains(t, out, "8 transactions")
}

func TestInitRejectsPostgresBackend(t *testing.T) {
	testEnv(t)
	t.Setenv("DATA_BACKEND", "postgres")

	_, err := run(t, context.Background(), "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite backend")
}

func TestSummaryText(t *testing.T) {
	initSample(t)

	out, err := run(t, context.Background(), "summary", "--project", "101")
	require.NoError(t, err)

	assert.Contains(t, out, "Project 101")
	assert.Contains(t, out, "2024-01-03 to 2024-03-31")
	assert.Regexp(t, `Total Cost\s+14721\.75`, out)
	assert.Regexp(t, `Materials Cost\s+9025\.75`, out)
	assert.Regexp(t, `Labor Cost\s+4336\.00`, out)
	assert.Regexp(t, `Overhead Cost\s+1360\.00`, out)
	// The comparison section covers every project regardless of the filter.
	assert.Regexp(t, `103\s+Overhead\s+330\.00`, out)
}

func TestSummaryDefaultsToFirstProject(t *testing.T) {
	initSample(t)

	out, err := run(t, context.Background(), "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "Project 101")
	assert.Contains(t, out, "2024-01-03 to 2024-03-31")
}

func TestSummaryJSON(t *testing.T) {
	initSample(t)

	out, err := run(t, context.Background(), "summary",
		"--project", "102", "--start", "2024-02-01", "--end", "2024-02-29", "--json")
	require.NoError(t, err)

	var got struct {
		SnapshotVersion int64 `json:"snapshot_version"`
		View            struct {
			Totals struct {
				Total decimal.Decimal `json:"total"`
				Labor decimal.Decimal `json:"labor"`
			} `json:"totals"`
			Transactions []json.RawMessage `json:"transactions"`
			Comparison   []json.RawMessage `json:"comparison"`
		} `json:"view"`
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	assert.Equal(t, int64(1), got.SnapshotVersion)
	assert.True(t, decimal.RequireFromString("1599.75").Equal(got.View.Totals.Total), got.View.Totals.Total.String())
	assert.True(t, decimal.RequireFromString("684").Equal(got.View.Totals.Labor), got.View.Totals.Labor.String())
	assert.Len(t, got.View.Transactions, 3)
	assert.Len(t, got.View.Comparison, 9)
	assert.Empty(t, got.Error)
}

func TestSummaryInvalidFilter(t *testing.T) {
	initSample(t)

	_, err := run(t, context.Background(), "summary", "--start", "2024-03-01", "--end", "2024-01-01")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidFilter)

	out, err := run(t, context.Background(), "summary", "--start", "not-a-date", "--json")
	require.ErrorIs(t, err, core.ErrInvalidFilter)
	assert.Contains(t, out, `"error"`)
	assert.Contains(t, out, `"transactions": []`)
}

func TestSummaryMissingStore(t *testing.T) {
	testEnv(t)

	_, err := run(t, context.Background(), "summary")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
}

func TestRefreshRequiresBroker(t *testing.T) {
	testEnv(t)

	_, err := run(t, context.Background(), "refresh", "--reason", "nightly import")
	assert.ErrorIs(t, err, errNoBroker)
}

func TestInvalidConfigStopsCommand(t *testing.T) {
	initSample(t)
	t.Setenv("LOG_FORMAT", "xml")

	_, err := run(t, context.Background(), "summary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}

func TestEnvFile(t *testing.T) {
	testEnv(t)
	path := filepath.Join(t.TempDir(), "from-env-file.db")
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("SQLITE_DB_PATH="+path+"\n"), 0o600))
	// godotenv never overrides variables that are already set.
	require.NoError(t, os.Unsetenv("SQLITE_DB_PATH"))

	_, err := run(t, context.Background(), "--env-file", envFile, "init")
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestExplicitEnvFileMustExist(t *testing.T) {
	testEnv(t)

	_, err := run(t, context.Background(), "--env-file", filepath.Join(t.TempDir(), "missing.env"), "summary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load env file")
}

func TestServeFailsWithoutStore(t *testing.T) {
	testEnv(t)

	_, err := run(t, context.Background(), "serve")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestServeUntilCancelled(t *testing.T) {
	initSample(t)
	port := freePort(t)
	t.Setenv("APP_PORT", strconv.Itoa(port))
	base := "http://127.0.0.1:" + strconv.Itoa(port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		_, err := run(t, ctx, "serve")
		errCh <- err
	}()

	client := &http.Client{Timeout: time.Second}
	require.Eventually(t, func() bool {
		resp, err := client.Get(base + "/readyz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	resp, err := client.Get(base + "/api/view?project=101")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"total":"14721.75"`)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}
