// Package forecast implements the autoregressive monthly forecast loop.
//
// An Engine walks the horizon one calendar month at a time. At every step it
// encodes the most recent lag window, asks the Predictor for exactly one value
// and appends that value to a run-private copy of the history, so later steps
// see earlier predictions as their lags. There is no bias correction: an error
// at step j flows unmodified into every lag window after it.
package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/rainfall/pkg/features"
	"github.com/HatiCode/rainfall/pkg/models"
	"github.com/HatiCode/rainfall/pkg/series"
)

// Point is a single forecast month.
type Point struct {
	Date  time.Time
	Value float64
}

// Sequence is an ordered run of contiguous forecast months that starts the
// month after the history it was produced from.
type Sequence struct {
	Points []Point
}

// Len returns the number of forecast points.
func (s Sequence) Len() int { return len(s.Points) }

// Values returns the predicted values in date order.
func (s Sequence) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Engine runs forecasts for one schema and predictor.
// It holds no per-run state: concurrent Run calls are safe as long as the
// predictor is.
type Engine struct {
	builder   *features.Builder
	predictor models.Predictor
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for per-step debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine. The schema must match the one the predictor
// was trained with; the engine has no way to check this.
func NewEngine(schema features.Schema, predictor models.Predictor, opts ...Option) (*Engine, error) {
	builder, err := features.NewBuilder(schema)
	if err != nil {
		return nil, err
	}
	if predictor == nil {
		return nil, &features.ValidationError{Field: "predictor", Reason: "must not be nil"}
	}

	e := &Engine{
		builder:   builder,
		predictor: predictor,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Schema returns the feature schema the engine encodes with.
func (e *Engine) Schema() features.Schema {
	return e.builder.Schema()
}

// Predictor returns the predictor the engine queries.
func (e *Engine) Predictor() models.Predictor {
	return e.predictor
}

// Run forecasts monthsAhead months past the end of history.
//
// The returned sequence has exactly monthsAhead points with contiguous dates
// starting one month after history's last observation. monthsAhead == 0
// returns an empty sequence without calling the predictor. Any failure
// returns an empty sequence: a run is never truncated.
//
// history is not modified.
func (e *Engine) Run(ctx context.Context, history series.History, monthsAhead int) (Sequence, error) {
	if monthsAhead < 0 {
		return Sequence{}, &features.ValidationError{
			Field:  "months_ahead",
			Reason: fmt.Sprintf("must not be negative, got %d", monthsAhead),
		}
	}

	nLags := e.builder.Schema().NLags
	if len(history) < nLags {
		return Sequence{}, &InsufficientHistoryError{Have: len(history), Need: nLags}
	}

	if monthsAhead == 0 {
		return Sequence{Points: []Point{}}, nil
	}

	// Run-private, append-only; discarded when Run returns.
	extended := make(series.History, len(history), len(history)+monthsAhead)
	copy(extended, history)

	points := make([]Point, 0, monthsAhead)

	for step := 1; step <= monthsAhead; step++ {
		if err := ctx.Err(); err != nil {
			return Sequence{}, err
		}

		date := series.NextMonth(extended.Last().Date)
		window := extended.Window(nLags)

		frame, err := e.builder.StepFrame(window, date)
		if err != nil {
			return Sequence{}, fmt.Errorf("step %d: build features: %w", step, err)
		}

		out, err := e.predictor.Predict(ctx, frame)
		if err != nil {
			return Sequence{}, &PredictionError{Step: step, Got: -1, Err: err}
		}
		if len(out.Values) != 1 {
			return Sequence{}, &PredictionError{Step: step, Got: len(out.Values)}
		}

		yhat := out.Values[0]
		extended = append(extended, series.Observation{Date: date, Value: yhat})
		points = append(points, Point{Date: date, Value: yhat})

		e.logger.Debug("forecast step",
			"step", step,
			"date", date.Format("2006-01"),
			"lag_1", window[len(window)-1],
			"value", yhat,
		)
	}

	return Sequence{Points: points}, nil
}
