package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/backtester/internal/database"
	"github.com/aristath/backtester/internal/modules/backtest"
	"github.com/aristath/backtester/internal/modules/history"
	"github.com/aristath/backtester/internal/modules/runs"
	testutil "github.com/aristath/backtester/internal/testing"
)

func openMemoryDB(t *testing.T, name string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	schema, err := database.Schema(name)
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)
	return db
}

func setupRouter(t *testing.T) http.Handler {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	historyRepo := history.NewRepository(openMemoryDB(t, database.NameHistory), log)
	runRepo := runs.NewRepository(openMemoryDB(t, database.NameBacktests), log)
	service := backtest.NewService(historyRepo, runRepo, nil, backtest.SignalLagged20, log)

	r := chi.NewRouter()
	r.Route("/api", NewHandler(service, historyRepo, true, log).RegisterRoutes)
	return r
}

type envelope struct {
	Data     json.RawMessage        `json:"data"`
	Error    string                 `json:"error"`
	Metadata map[string]interface{} `json:"metadata"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
		assert.Contains(t, env.Metadata, "timestamp")
	}
	return w, env
}

func importSample(t *testing.T, h http.Handler) {
	t.Helper()
	w, _ := do(t, h, http.MethodPost, "/api/history/price", testutil.PricesCSV)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w, _ = do(t, h, http.MethodPost, "/api/history/market_cap", testutil.MarketCapsCSV)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestHandleImport(t *testing.T) {
	h := setupRouter(t)

	w, env := do(t, h, http.MethodPost, "/api/history/price", testutil.PricesCSV)
	require.Equal(t, http.StatusCreated, w.Code)

	var data struct {
		Kind         string        `json:"kind"`
		Observations int           `json:"observations"`
		Stats        history.Stats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "price", data.Kind)
	assert.Equal(t, 12, data.Observations)
	assert.Equal(t, 1, data.Stats.Missing)
	assert.Equal(t, 4, data.Stats.Dates)

	w, env = do(t, h, http.MethodGet, "/api/history/price", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats history.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 3, stats.Symbols)
}

func TestHandleImport_ReplaceAndDelete(t *testing.T) {
	h := setupRouter(t)
	importSample(t, h)

	corrected := "Date,NEW\n2024-01-03,10\n2024-01-04,11\n"

	// a merge keeps the earlier dates and symbols
	w, _ := do(t, h, http.MethodPost, "/api/history/price", corrected)
	require.Equal(t, http.StatusCreated, w.Code)
	_, env := do(t, h, http.MethodGet, "/api/history/price", "")
	var stats history.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 4, stats.Symbols)
	assert.Equal(t, 4, stats.Dates)

	w, env = do(t, h, http.MethodPost, "/api/history/price?replace=true", corrected)
	require.Equal(t, http.StatusCreated, w.Code)
	var data struct {
		Replaced bool          `json:"replaced"`
		Stats    history.Stats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.True(t, data.Replaced)
	assert.Equal(t, 1, data.Stats.Symbols)
	assert.Equal(t, 2, data.Stats.Dates)
	require.NotNil(t, data.Stats.FirstDate)
	assert.Equal(t, "2024-01-03", data.Stats.FirstDate.Format("2006-01-02"))

	w, env = do(t, h, http.MethodPost, "/api/history/price?replace=maybe", corrected)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, env.Error)

	w, env = do(t, h, http.MethodDelete, "/api/history/market_cap", "")
	require.Equal(t, http.StatusOK, w.Code)
	var deleted struct {
		Deleted int64 `json:"deleted"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &deleted))
	assert.Equal(t, int64(8), deleted.Deleted)

	w, _ = do(t, h, http.MethodPost, "/api/backtests", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = do(t, h, http.MethodDelete, "/api/history/volume", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleImport_Errors(t *testing.T) {
	h := setupRouter(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"unknown kind", "/api/history/volume", testutil.PricesCSV, http.StatusBadRequest},
		{"missing date column", "/api/history/price", "Day,AAA\n2024-01-02,1\n", http.StatusBadRequest},
		{"bad number", "/api/history/price", "Date,AAA\n2024-01-02,abc\n", http.StatusBadRequest},
		{"duplicate date", "/api/history/price", "Date,AAA\n2024-01-02,1\n2024-01-02,2\n", http.StatusBadRequest},
		{"header only", "/api/history/price", "Date,AAA\n", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestRunLifecycle(t *testing.T) {
	h := setupRouter(t)
	importSample(t, h)

	w, env := do(t, h, http.MethodPost, "/api/backtests", `{"signal_mode":"reference"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		ID      string           `json:"id"`
		Summary backtest.Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, backtest.SignalReference, created.Summary.SignalMode)
	assert.Equal(t, 2, created.Summary.Rebalances)
	assert.Equal(t, 4, created.Summary.Days)

	w, env = do(t, h, http.MethodGet, "/api/backtests", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Runs  []backtest.RunInfo `json:"runs"`
		Count int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, created.ID, list.Runs[0].ID)

	w, env = do(t, h, http.MethodGet, "/api/backtests/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var rec backtest.Record
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Len(t, rec.Index, 4)
	assert.Len(t, rec.Rebalances, 2)

	w, _ = do(t, h, http.MethodGet, "/api/backtests/"+created.ID+"/series?format=csv", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Equal(t, "Date,Value", lines[0])
	assert.Len(t, lines, 5)
	assert.Equal(t, "2024-01-02,1", lines[1])

	w, env = do(t, h, http.MethodGet, "/api/backtests/"+created.ID+"/series", "")
	require.Equal(t, http.StatusOK, w.Code)
	var series struct {
		Series backtest.Series `json:"series"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &series))
	assert.Len(t, series.Series, 4)

	w, _ = do(t, h, http.MethodDelete, "/api/backtests/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = do(t, h, http.MethodGet, "/api/backtests/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleRun_Errors(t *testing.T) {
	h := setupRouter(t)

	w, _ := do(t, h, http.MethodPost, "/api/backtests", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "no stored panels")

	importSample(t, h)

	w, _ = do(t, h, http.MethodPost, "/api/backtests", `{"signal_mode":"fast"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, h, http.MethodPost, "/api/backtests", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// an older cap row merges into the stored panel
	w, _ = do(t, h, http.MethodPost, "/api/history/market_cap", "Date,AAA\n2023-06-01,1\n")
	require.Equal(t, http.StatusCreated, w.Code)
	w, _ = do(t, h, http.MethodPost, "/api/backtests", "")
	assert.Equal(t, http.StatusCreated, w.Code, "earlier caps are still valid")
}

func TestHandleRun_InsufficientHistory(t *testing.T) {
	h := setupRouter(t)

	w, _ := do(t, h, http.MethodPost, "/api/history/price", "Date,AAA\n2024-01-02,1\n")
	require.Equal(t, http.StatusCreated, w.Code)
	w, _ = do(t, h, http.MethodPost, "/api/history/market_cap", "Date,AAA\n2024-01-02,1\n")
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := do(t, h, http.MethodPost, "/api/backtests", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, env.Error, "market cap")
}

func TestHandleStream(t *testing.T) {
	h := setupRouter(t)
	importSample(t, h)

	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/backtests/stream", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, wsjson.Write(ctx, conn, RunRequest{SignalMode: backtest.SignalLagged20}))

	var types []string
	for {
		var msg struct {
			Type  string          `json:"type"`
			Data  json.RawMessage `json:"data"`
			Error string          `json:"error"`
		}
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		types = append(types, msg.Type)

		if msg.Type == MessageRebalance {
			var reb backtest.Rebalance
			require.NoError(t, json.Unmarshal(msg.Data, &reb))
			assert.InDelta(t, 1.0, reb.Gross, 1e-9)
		}
		if msg.Type != MessageRebalance {
			break
		}
	}

	assert.Equal(t, []string{MessageRebalance, MessageRebalance, MessageSummary}, types)
}

func TestHandleStream_ErrorMessage(t *testing.T) {
	srv := httptest.NewServer(setupRouter(t))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/backtests/stream", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, wsjson.Write(ctx, conn, RunRequest{}))

	var msg StreamMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, MessageError, msg.Type)
	assert.Contains(t, msg.Error, "no observations")
}
