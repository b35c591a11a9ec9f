package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HatiCode/rainfall/pkg/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleSnapshot() storage.Snapshot {
	return storage.Snapshot{
		Series:      "sleman",
		Model:       "linear",
		GeneratedAt: time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC),
		NLags:       12,
		HistoryEnd:  time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
		Points: []storage.Point{
			{Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Value: 412.5},
			{Date: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), Value: 388},
		},
	}
}

func TestNewServer_Timeouts(t *testing.T) {
	s := NewServer(":8081", http.NewServeMux(), nil)

	assert.Equal(t, ":8081", s.server.Addr)
	assert.NotNil(t, s.logger, "nil logger falls back to slog.Default")
	assert.Equal(t, 10*time.Second, s.server.ReadHeaderTimeout)
	assert.Equal(t, 30*time.Second, s.server.ReadTimeout)
	assert.Equal(t, 30*time.Second, s.server.WriteTimeout)
	assert.Equal(t, 60*time.Second, s.server.IdleTimeout)
}

func TestServer_StartStop(t *testing.T) {
	s := NewServer("127.0.0.1:0", http.NewServeMux(), discardLogger())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, s.Stop(5*time.Second))

	select {
	case err := <-errCh:
		assert.NoError(t, err, "clean shutdown is not an error")
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestServer_StartInvalidAddr(t *testing.T) {
	s := NewServer("127.0.0.1:-1", http.NewServeMux(), discardLogger())
	assert.Error(t, s.Start())
}

func TestWriteJSON_Snapshot(t *testing.T) {
	w := httptest.NewRecorder()

	require.NoError(t, WriteJSON(w, http.StatusOK, sampleSnapshot()))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	for _, key := range []string{"series", "model", "generatedAt", "nLags", "historyEnd", "points"} {
		assert.Contains(t, raw, key)
	}

	var got storage.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, []float64{412.5, 388}, got.Values())
	assert.True(t, got.Points[0].Date.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}

// A forecast value that is not representable in JSON must not leave a
// half-written 200 behind.
func TestWriteJSON_NaNForecastValue(t *testing.T) {
	snap := sampleSnapshot()
	snap.Points[1].Value = math.NaN()
	w := httptest.NewRecorder()

	err := WriteJSON(w, http.StatusOK, snap)

	require.Error(t, err)
	assert.Empty(t, w.Header().Get("Content-Type"))
	assert.Zero(t, w.Body.Len())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
	}{
		{"insufficient history", http.StatusUnprocessableEntity, errors.New("insufficient history: have 5 observations, need at least 12")},
		{"not ready", http.StatusServiceUnavailable, errors.New("no history loaded yet")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.status, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.err.Error(), body.Error)
		})
	}
}

func TestWriteErrorMessage(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorMessage(w, http.StatusBadRequest, "series parameter required")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"series parameter required"}`, w.Body.String())
}

func TestHealthHandlerWithCheck_StorePing(t *testing.T) {
	tests := []struct {
		name     string
		ping     error
		wantCode int
		wantBody string
	}{
		{"store reachable", nil, http.StatusOK, "OK"},
		{"store down", errors.New("redis: connection refused"), http.StatusServiceUnavailable, `{"error":"redis: connection refused"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			h := HealthHandlerWithCheck(func() error {
				calls++
				return tt.ping
			})

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, 1, calls, "store pinged once per probe")
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
		})
	}
}

type logEntry struct {
	Msg    string `json:"msg"`
	Method string `json:"method"`
	Path   string `json:"path"`
	Status int    `json:"status"`
	Panic  string `json:"panic"`
}

func decodeLog(t *testing.T, buf *bytes.Buffer) []logEntry {
	t.Helper()
	var entries []logEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e logEntry
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		entries = append(entries, e)
	}
	return entries
}

// forecasterHandler builds the handler chain the forecaster binary serves.
func forecasterHandler(logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /forecast/current", func(w http.ResponseWriter, r *http.Request) {
		_ = WriteJSON(w, http.StatusOK, sampleSnapshot())
	})
	mux.HandleFunc("GET /forecast", func(w http.ResponseWriter, r *http.Request) {
		var points []storage.Point
		_ = points[len(r.URL.Query().Get("months"))] // out of range
	})
	return RecoveryMiddleware(logger)(LoggingMiddleware(logger)(mux))
}

func TestMiddlewareChain(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		wantCode   int
		wantLogged []logEntry
	}{
		{
			name:     "snapshot",
			method:   http.MethodGet,
			target:   "/forecast/current?series=sleman",
			wantCode: http.StatusOK,
			wantLogged: []logEntry{
				{Msg: "HTTP request", Method: "GET", Path: "/forecast/current", Status: http.StatusOK},
			},
		},
		{
			name:     "unknown route",
			method:   http.MethodGet,
			target:   "/forecast/history",
			wantCode: http.StatusNotFound,
			wantLogged: []logEntry{
				{Msg: "HTTP request", Method: "GET", Path: "/forecast/history", Status: http.StatusNotFound},
			},
		},
		{
			name:     "wrong method",
			method:   http.MethodPost,
			target:   "/forecast/current",
			wantCode: http.StatusMethodNotAllowed,
			wantLogged: []logEntry{
				{Msg: "HTTP request", Method: "POST", Path: "/forecast/current", Status: http.StatusMethodNotAllowed},
			},
		},
		{
			// recovery is outermost: the request log is skipped on panic
			name:     "handler panic",
			method:   http.MethodGet,
			target:   "/forecast?months=12",
			wantCode: http.StatusInternalServerError,
			wantLogged: []logEntry{
				{Msg: "panic recovered", Method: "GET", Path: "/forecast"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := forecasterHandler(slog.New(slog.NewJSONHandler(&buf, nil)))

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(tt.method, tt.target, nil))

			assert.Equal(t, tt.wantCode, w.Code)

			got := decodeLog(t, &buf)
			require.Len(t, got, len(tt.wantLogged))
			for i, want := range tt.wantLogged {
				assert.Equal(t, want.Msg, got[i].Msg)
				assert.Equal(t, want.Method, got[i].Method)
				assert.Equal(t, want.Path, got[i].Path)
				if want.Status != 0 {
					assert.Equal(t, want.Status, got[i].Status)
				}
			}
		})
	}
}

func TestMiddlewareChain_PanicBody(t *testing.T) {
	var buf bytes.Buffer
	h := forecasterHandler(slog.New(slog.NewJSONHandler(&buf, nil)))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/forecast?months=6", nil))

	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
	entries := decodeLog(t, &buf)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Panic, "index out of range")
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusBadGateway)
	rw.WriteHeader(http.StatusOK)

	assert.Equal(t, http.StatusBadGateway, rw.statusCode)
}

func TestResponseWriter_ImplicitOK(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	_, err := rw.Write([]byte("OK"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rw.statusCode)
	assert.True(t, rw.written)
}
