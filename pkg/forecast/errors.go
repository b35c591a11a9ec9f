package forecast

import "fmt"

// InsufficientHistoryError is returned when the history is shorter than the
// number of lags the schema requires.
type InsufficientHistoryError struct {
	Have int
	Need int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history: have %d observations, need at least %d", e.Have, e.Need)
}

// PredictionError is returned when the predictor fails or breaks its
// one-value-per-row contract at some step. The whole run is discarded.
type PredictionError struct {
	// Step is the 1-based forecast step that failed.
	Step int
	// Got is the number of values returned, or -1 when Err is set.
	Got int
	// Err is the predictor's own error, if any.
	Err error
}

func (e *PredictionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("prediction failed at step %d: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("prediction failed at step %d: expected 1 value, got %d", e.Step, e.Got)
}

func (e *PredictionError) Unwrap() error { return e.Err }
