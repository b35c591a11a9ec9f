package models

import (
	"context"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// DefaultRidgeLambda is the L2 penalty used when none is configured.
// A small penalty keeps the normal equations solvable on flat series,
// where every lag column is collinear with the intercept.
const DefaultRidgeLambda = 1.0

// LinearModel is a ridge-regularised least squares regression over a fixed,
// ordered set of feature columns plus an unpenalised intercept.
//
// The fitted coefficients are immutable between Train calls, so Predict is
// safe for concurrent use.
type LinearModel struct {
	columns []string
	lambda  float64

	mu           sync.RWMutex
	trained      bool
	intercept    float64
	coefficients []float64
}

// NewLinearModel creates an untrained linear model over columns.
// A non-positive lambda selects DefaultRidgeLambda.
func NewLinearModel(columns []string, lambda float64) *LinearModel {
	if len(columns) == 0 {
		panic("columns cannot be empty")
	}
	if lambda <= 0 {
		lambda = DefaultRidgeLambda
	}
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &LinearModel{columns: cols, lambda: lambda}
}

// Name returns the model identifier.
func (m *LinearModel) Name() string {
	return "linear"
}

// Coefficients returns the intercept and a copy of the column weights.
func (m *LinearModel) Coefficients() (float64, []float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]float64, len(m.coefficients))
	copy(out, m.coefficients)
	return m.intercept, out
}

// Train solves (XᵀX + λD)β = Xᵀy where D penalises every column except the
// intercept.
func (m *LinearModel) Train(ctx context.Context, history FeatureFrame) error {
	n := len(history.Rows)
	p := len(m.columns) + 1
	if n < 2 {
		return fmt.Errorf("need at least 2 training rows, got %d", n)
	}

	x := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	for i, row := range history.Rows {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		target, ok := row["value"]
		if !ok {
			return fmt.Errorf("row %d: missing target column %q", i, "value")
		}
		y.SetVec(i, target)
		x.Set(i, 0, 1)
		for j, col := range m.columns {
			v, ok := row[col]
			if !ok {
				return fmt.Errorf("row %d: missing feature %q", i, col)
			}
			x.Set(i, j+1, v)
		}
	}

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for j := 1; j < p; j++ {
		xtx.Set(j, j, xtx.At(j, j)+m.lambda)
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), y)

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		return fmt.Errorf("solve normal equations: %w", err)
	}

	coefficients := make([]float64, p-1)
	for j := range coefficients {
		coefficients[j] = beta.AtVec(j + 1)
	}

	m.mu.Lock()
	m.intercept = beta.AtVec(0)
	m.coefficients = coefficients
	m.trained = true
	m.mu.Unlock()

	return nil
}

// Predict returns β₀ + Σ βⱼ·xⱼ for each row.
func (m *LinearModel) Predict(ctx context.Context, features FeatureFrame) (Forecast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.trained {
		return Forecast{}, ErrNotTrained
	}
	if len(features.Rows) == 0 {
		return Forecast{}, fmt.Errorf("features cannot be empty")
	}

	out := make([]float64, len(features.Rows))
	for i, row := range features.Rows {
		sum := m.intercept
		for j, col := range m.columns {
			v, ok := row[col]
			if !ok {
				return Forecast{}, fmt.Errorf("row %d: missing feature %q", i, col)
			}
			sum += m.coefficients[j] * v
		}
		out[i] = sum
	}

	return Forecast{Values: out}, nil
}
