package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/backtester/internal/config"
	"github.com/aristath/backtester/internal/di"
	"github.com/aristath/backtester/internal/modules/backtest"
	testutil "github.com/aristath/backtester/internal/testing"
)

func setupServer(t *testing.T) (*Server, *di.Container) {
	t.Helper()

	cfg := &config.Config{
		DataDir:    t.TempDir(),
		Port:       8001,
		DevMode:    true,
		SignalMode: backtest.SignalLagged20,
		Storage:    &config.StorageConfig{},
	}
	log := zerolog.Nop()

	container, err := di.Wire(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	s := New(Config{
		Log:       log,
		Config:    cfg,
		Container: container,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})
	s.systemHandlers.stats = func() (float64, float64) { return 12.5, 40 }
	return s, container
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, container := setupServer(t)

	w := serve(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])

	require.NoError(t, container.HistoryDB.Close())
	w = serve(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "history database unreachable")
}

func TestSystemStatus(t *testing.T) {
	s, _ := setupServer(t)

	w := serve(s, http.MethodGet, "/api/system/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status SystemStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, 12.5, status.CPUPercent)
	assert.Equal(t, 40.0, status.RAMPercent)
	require.Len(t, status.Databases, 2)
	assert.Equal(t, "history", status.Databases[0].Name)
	assert.Equal(t, "backtests", status.Databases[1].Name)
	assert.Equal(t, "standard", status.Databases[0].Profile)
	assert.Equal(t, "ledger", status.Databases[1].Profile)
	assert.True(t, status.Databases[0].Healthy)
	assert.Greater(t, status.Databases[0].SizeMB+status.Databases[0].WALSizeMB, 0.0)
}

func TestDiskUsage(t *testing.T) {
	s, _ := setupServer(t)

	w := serve(s, http.MethodGet, "/api/system/disk", "")
	require.Equal(t, http.StatusOK, w.Code)

	var usage DiskUsageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &usage))
	assert.Equal(t, s.cfg.DataDir, usage.DataDir)
	assert.Greater(t, usage.DataDirMB, 0.0)
}

func TestBacktestRoutesMounted(t *testing.T) {
	s, _ := setupServer(t)

	w := serve(s, http.MethodPost, "/api/history/price", testutil.PricesCSV)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = serve(s, http.MethodGet, "/api/history/price", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"symbols":3`)

	w = serve(s, http.MethodGet, "/api/backtests", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "backtester_history_observations_imported_total")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestCORSPreflight(t *testing.T) {
	s, _ := setupServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/backtests", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNotFound(t *testing.T) {
	s, _ := setupServer(t)

	w := serve(s, http.MethodGet, "/api/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
