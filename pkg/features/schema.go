package features

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Column names of the encoding. Lag columns are "lag_1".."lag_n".
const (
	ColumnMonth    = "month"
	ColumnMonthSin = "month_sin"
	ColumnMonthCos = "month_cos"
	// ColumnTarget carries the observed value in training frames.
	ColumnTarget = "value"
)

// Schema is the contract shared by training-time and forecast-time feature
// construction. A predictor must be trained and queried with the same Schema.
type Schema struct {
	// NLags is the number of lag features, lag_1 being the most recent.
	NLags int
}

// Validate reports a *ValidationError if the schema is unusable.
func (s Schema) Validate() error {
	if s.NLags < 1 {
		return &ValidationError{Field: "n_lags", Reason: fmt.Sprintf("must be positive, got %d", s.NLags)}
	}
	return nil
}

// LagColumn returns the column name of the i-th lag (1-based).
func LagColumn(i int) string {
	return "lag_" + strconv.Itoa(i)
}

// LagColumns returns lag_1..lag_n.
func (s Schema) LagColumns() []string {
	cols := make([]string, s.NLags)
	for i := range cols {
		cols[i] = LagColumn(i + 1)
	}
	return cols
}

// Columns returns every feature column in model order:
// lag_1..lag_n, month, month_sin, month_cos.
func (s Schema) Columns() []string {
	return append(s.LagColumns(), ColumnMonth, ColumnMonthSin, ColumnMonthCos)
}

// Vector is one encoded feature row.
type Vector struct {
	// Lags[0] is lag_1, the value immediately preceding the target month.
	Lags     []float64
	Month    int
	MonthSin float64
	MonthCos float64
}

// Row renders the vector as a named feature map.
func (v Vector) Row() map[string]float64 {
	row := make(map[string]float64, len(v.Lags)+3)
	for i, lag := range v.Lags {
		row[LagColumn(i+1)] = lag
	}
	row[ColumnMonth] = float64(v.Month)
	row[ColumnMonthSin] = v.MonthSin
	row[ColumnMonthCos] = v.MonthCos
	return row
}

// Encode is the single encoding rule behind every feature row.
//
// window holds exactly s.NLags values ordered oldest to newest; target is the
// month being predicted. The calendar features describe target, not the lag
// dates, and are computed from the integer month alone.
func Encode(s Schema, window []float64, target time.Time) (Vector, error) {
	if err := s.Validate(); err != nil {
		return Vector{}, err
	}
	if len(window) != s.NLags {
		return Vector{}, &ValidationError{
			Field:  "window",
			Reason: fmt.Sprintf("expected %d values, got %d", s.NLags, len(window)),
		}
	}

	lags := make([]float64, s.NLags)
	for i := range lags {
		lags[i] = window[len(window)-1-i]
	}

	month := int(target.Month())
	angle := 2 * math.Pi * float64(month) / 12.0

	return Vector{
		Lags:     lags,
		Month:    month,
		MonthSin: math.Sin(angle),
		MonthCos: math.Cos(angle),
	}, nil
}

// ValidationError reports an invalid parameter such as a non-positive lag
// count or a negative horizon.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
