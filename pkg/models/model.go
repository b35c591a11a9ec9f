// Package models defines the point-estimator contract consumed by the
// forecast engine and ships two estimators that satisfy it.
//
// Estimators are external collaborators of the engine: the engine never
// trains, validates or selects them, it only calls Predict once per step.
package models

import (
	"context"
	"errors"
)

// FeatureFrame is a batch of named feature rows.
// Training frames additionally carry the target in the "value" column.
type FeatureFrame struct {
	Rows []map[string]float64
}

// Forecast holds one predicted value per input row.
type Forecast struct {
	Values []float64
}

// Predictor turns feature rows into point estimates.
//
// Implementations must return exactly one value per input row and must be
// safe for concurrent use: separate forecast runs may share a Predictor.
type Predictor interface {
	// Name returns the model identifier.
	Name() string
	// Predict returns one estimate per row of features.
	Predict(ctx context.Context, features FeatureFrame) (Forecast, error)
}

// Model is a Predictor that can be fitted from a training frame.
type Model interface {
	Predictor
	// Train fits the model. Rows must carry the "value" target column.
	Train(ctx context.Context, history FeatureFrame) error
}

// PredictorFunc adapts a plain function to the Predictor interface.
// Each row is passed to the function independently.
type PredictorFunc func(row map[string]float64) float64

func (f PredictorFunc) Name() string { return "func" }

// Predict implements Predictor.
func (f PredictorFunc) Predict(ctx context.Context, features FeatureFrame) (Forecast, error) {
	if err := ctx.Err(); err != nil {
		return Forecast{}, err
	}
	out := make([]float64, len(features.Rows))
	for i, row := range features.Rows {
		out[i] = f(row)
	}
	return Forecast{Values: out}, nil
}

// ErrNotTrained is returned by Predict on a model that has not been fitted.
var ErrNotTrained = errors.New("model not trained")
