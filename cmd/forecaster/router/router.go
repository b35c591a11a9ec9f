// Package router configures the forecaster's HTTP API.
//
// Routes:
//   - GET /forecast/current?series=<name> - latest stored snapshot
//   - GET /forecast?months=<n> - on-demand run over the latest loaded history
//   - GET /healthz - health check, failing when the store is unreachable
//   - GET /metrics - Prometheus metrics
//
// Snapshots older than the stale threshold carry an X-Rainfall-Stale header.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/rainfall/cmd/forecaster/metrics"
	"github.com/HatiCode/rainfall/pkg/client"
	"github.com/HatiCode/rainfall/pkg/features"
	"github.com/HatiCode/rainfall/pkg/forecast"
	"github.com/HatiCode/rainfall/pkg/httpx"
	"github.com/HatiCode/rainfall/pkg/storage"
)

// MaxMonths caps the horizon of a single on-demand request.
const MaxMonths = 1200

// ErrNotReady is returned by a Forecaster that has not loaded any history yet.
var ErrNotReady = errors.New("no history loaded yet")

// Forecaster runs on-demand forecasts over its current history and model.
type Forecaster interface {
	Forecast(ctx context.Context, monthsAhead int) (client.ForecastResponse, error)
}

// Deps are the collaborators the routes need.
type Deps struct {
	Store      storage.Store
	Forecaster Forecaster
	// DefaultMonths is used when the months parameter is absent.
	DefaultMonths int
	StaleAfter    time.Duration
	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// Metrics is optional; when set the served snapshot's age is recorded.
	Metrics *metrics.Metrics
	// Gatherer defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// SetupRoutes configures HTTP endpoints for the forecaster.
func SetupRoutes(d Deps) *http.ServeMux {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	mux := http.NewServeMux()

	mux.Handle("GET /healthz", httpx.HealthHandlerWithCheck(storeCheck(d.Store)))
	mux.HandleFunc("GET /forecast/current", handleGetSnapshot(d))
	mux.HandleFunc("GET /forecast", handleForecast(d))
	mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	return mux
}

type pinger interface {
	Ping(ctx context.Context) error
}

func storeCheck(store storage.Store) func() error {
	return func() error {
		p, ok := store.(pinger)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return p.Ping(ctx)
	}
}

// handleGetSnapshot returns a handler for GET /forecast/current?series=<name>.
func handleGetSnapshot(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("series")
		if name == "" {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "series parameter required")
			return
		}

		snapshot, found, err := d.Store.GetLatest(name)
		if err != nil {
			d.Logger.Error("failed to get snapshot", "series", name, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		if !found {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("snapshot not found for series %q", name))
			return
		}

		age := d.Clock.Since(snapshot.GeneratedAt)
		if d.Metrics != nil {
			d.Metrics.SetForecastAge(age.Seconds())
		}
		if age > d.StaleAfter {
			w.Header().Set(client.StaleHeader, "true")
		}

		if err := httpx.WriteJSON(w, http.StatusOK, snapshot); err != nil {
			d.Logger.Error("failed to encode snapshot", "series", name, "error", err)
		}
	}
}

// handleForecast returns a handler for GET /forecast?months=<n>.
func handleForecast(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		months := d.DefaultMonths
		if raw := r.URL.Query().Get("months"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				httpx.WriteErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid months %q", raw))
				return
			}
			months = n
		}
		if months > MaxMonths {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("months must be at most %d", MaxMonths))
			return
		}

		resp, err := d.Forecaster.Forecast(r.Context(), months)
		if err != nil {
			status := statusFor(err)
			if status >= http.StatusInternalServerError {
				d.Logger.Error("on-demand forecast failed", "months", months, "error", err)
			}
			httpx.WriteError(w, status, err)
			return
		}

		if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
			d.Logger.Error("failed to encode forecast", "error", err)
		}
	}
}

func statusFor(err error) int {
	var (
		ve  *features.ValidationError
		ihe *forecast.InsufficientHistoryError
		pe  *forecast.PredictionError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ihe):
		return http.StatusUnprocessableEntity
	case errors.As(err, &pe):
		return http.StatusBadGateway
	case errors.Is(err, ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
