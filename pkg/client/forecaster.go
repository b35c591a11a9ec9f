// Package client provides an HTTP client for the rainfall forecaster API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/HatiCode/rainfall/pkg/storage"
)

// StaleHeader is set by the forecaster on snapshots older than its
// staleness threshold.
const StaleHeader = "X-Rainfall-Stale"

// ForecasterClient fetches forecasts from the forecaster service.
// It is safe for concurrent use by multiple goroutines.
type ForecasterClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewForecasterClient creates a new client for the forecaster service.
// The baseURL should include the scheme and host (e.g., "http://localhost:8081").
// A default timeout of 5 seconds is used for HTTP requests.
func NewForecasterClient(baseURL string) *ForecasterClient {
	return NewForecasterClientWithTimeout(baseURL, 5*time.Second)
}

// NewForecasterClientWithTimeout creates a new client with a custom timeout.
func NewForecasterClientWithTimeout(baseURL string, timeout time.Duration) *ForecasterClient {
	return &ForecasterClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SnapshotResult contains the snapshot and metadata about staleness.
type SnapshotResult struct {
	Snapshot storage.Snapshot
	Stale    bool // true if the stale header was present
}

// ForecastResponse is the body of GET /forecast.
type ForecastResponse struct {
	Series      string          `json:"series"`
	Model       string          `json:"model"`
	NLags       int             `json:"nLags"`
	HistoryEnd  time.Time       `json:"historyEnd"`
	MonthsAhead int             `json:"monthsAhead"`
	Points      []storage.Point `json:"points"`
}

// StatusError is returned for any non-200 reply. Message carries the
// server's error text when it sent one.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status code: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status code: %d: %s", e.Code, e.Message)
}

// GetSnapshot fetches the latest stored forecast for series.
func (c *ForecasterClient) GetSnapshot(ctx context.Context, series string) (*SnapshotResult, error) {
	if series == "" {
		return nil, fmt.Errorf("series cannot be empty")
	}

	query := url.Values{}
	query.Set("series", series)

	resp, err := c.get(ctx, "/forecast/current", query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("snapshot not found for series %q", series)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var snapshot storage.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &SnapshotResult{
		Snapshot: snapshot,
		Stale:    resp.Header.Get(StaleHeader) == "true",
	}, nil
}

// Forecast asks the forecaster for an on-demand run of monthsAhead months
// over its latest loaded history.
func (c *ForecasterClient) Forecast(ctx context.Context, monthsAhead int) (*ForecastResponse, error) {
	query := url.Values{}
	query.Set("months", strconv.Itoa(monthsAhead))

	resp, err := c.get(ctx, "/forecast", query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var out ForecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

func (c *ForecasterClient) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &body)
	return &StatusError{Code: resp.StatusCode, Message: body.Error}
}

// IsStale reports whether snapshot is older than staleAfter.
func IsStale(snapshot storage.Snapshot, staleAfter time.Duration) bool {
	return time.Since(snapshot.GeneratedAt) > staleAfter
}
