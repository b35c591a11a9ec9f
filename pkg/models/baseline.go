package models

import (
	"context"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// BaselineModel implements a simple estimator using an exponential moving
// average over the lag columns and month-of-year seasonality.
//
// Algorithm:
//  1. Compute EMA over the lag values, oldest to newest
//  2. Optional seasonality: if the target month has a learned mean,
//     blend: yhat = 0.6*EMA + 0.4*Mean_m
//  3. All values are non-negative
//
// Train is optional; without it the model degrades to the plain EMA.
type BaselineModel struct {
	// lagColumns are ordered lag_1..lag_n (newest first)
	lagColumns []string

	mu sync.RWMutex

	// seasonality stores month-of-year means
	// map key is month (1-12), value is mean rainfall for that month
	seasonality map[int]float64
}

// NewBaselineModel creates a new baseline model reading the given lag columns.
// lagColumns must be ordered from the most recent lag to the oldest.
func NewBaselineModel(lagColumns []string) *BaselineModel {
	cols := make([]string, len(lagColumns))
	copy(cols, lagColumns)
	return &BaselineModel{
		lagColumns:  cols,
		seasonality: make(map[int]float64),
	}
}

// Name returns the model identifier.
func (m *BaselineModel) Name() string {
	return "baseline"
}

// Train extracts month-of-year means from the training frame.
// A month needs at least 2 samples to be learned.
func (m *BaselineModel) Train(ctx context.Context, history FeatureFrame) error {
	if len(history.Rows) == 0 {
		return nil
	}

	byMonth := make(map[int][]float64)
	for _, row := range history.Rows {
		value, hasValue := row["value"]
		month, hasMonth := row["month"]

		if hasValue && hasMonth {
			mo := int(month)
			if mo >= 1 && mo <= 12 {
				byMonth[mo] = append(byMonth[mo], value)
			}
		}
	}

	seasonality := make(map[int]float64, 12)
	for mo := 1; mo <= 12; mo++ {
		if samples := byMonth[mo]; len(samples) >= 2 {
			seasonality[mo] = stat.Mean(samples, nil)
		}
	}

	m.mu.Lock()
	m.seasonality = seasonality
	m.mu.Unlock()

	return nil
}

// Predict returns one estimate per feature row.
// Each row must carry every lag column; "month" is optional.
func (m *BaselineModel) Predict(ctx context.Context, features FeatureFrame) (Forecast, error) {
	if len(features.Rows) == 0 {
		return Forecast{}, fmt.Errorf("features cannot be empty")
	}
	if len(m.lagColumns) == 0 {
		return Forecast{}, fmt.Errorf("no lag columns configured")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]float64, len(features.Rows))
	lags := make([]float64, len(m.lagColumns))
	for i, row := range features.Rows {
		// oldest first for the EMA recursion
		for j, col := range m.lagColumns {
			v, ok := row[col]
			if !ok {
				return Forecast{}, fmt.Errorf("row %d: missing feature %q", i, col)
			}
			lags[len(lags)-1-j] = v
		}

		value := computeEMA(lags, len(lags))

		if mo, ok := row["month"]; ok {
			if seasonalMean, ok := m.seasonality[int(mo)]; ok {
				value = 0.6*value + 0.4*seasonalMean
			}
		}

		if value < 0 {
			value = 0
		}
		out[i] = value
	}

	return Forecast{Values: out}, nil
}

// computeEMA calculates the exponential moving average over the most recent n points.
// If there are fewer than n points, uses all available points.
// Returns 0 if values is empty.
//
// EMA formula: EMA_t = α * value_t + (1-α) * EMA_{t-1}
// where α = 2 / (n + 1)
func computeEMA(values []float64, n int) float64 {
	if len(values) == 0 {
		return 0
	}

	start := 0
	if len(values) > n {
		start = len(values) - n
	}
	window := values[start:]

	alpha := 2.0 / float64(len(window)+1)
	ema := window[0]

	for i := 1; i < len(window); i++ {
		ema = alpha*window[i] + (1-alpha)*ema
	}

	return ema
}
