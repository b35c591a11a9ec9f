// Package series defines the canonical monthly rainfall series and the
// reshaper that builds it from wide, one-row-per-year records.
package series

import (
	"fmt"
	"time"
)

// Observation is a single monthly value.
// Date is always the first day of the month at 00:00 UTC.
type Observation struct {
	Date  time.Time
	Value float64
}

// History is an ordered sequence of monthly observations, unique and strictly
// ascending by date with no missing months in between.
//
// History is treated as read-only by consumers; use Clone before mutating.
type History []Observation

// MonthStart normalizes t to the first day of its month at 00:00 UTC.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextMonth returns the first day of the month following t.
// Walking from a month start, AddDate never overflows into the following month.
func NextMonth(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, 0)
}

// Len returns the number of observations.
func (h History) Len() int { return len(h) }

// Last returns the most recent observation. It panics on an empty history.
func (h History) Last() Observation { return h[len(h)-1] }

// Values returns the observation values in date order.
func (h History) Values() []float64 {
	out := make([]float64, len(h))
	for i, o := range h {
		out[i] = o.Value
	}
	return out
}

// Window returns the n most recent values ordered oldest to newest.
// If n exceeds the history length the whole history is returned.
func (h History) Window(n int) []float64 {
	if n > len(h) {
		n = len(h)
	}
	out := make([]float64, n)
	for i, o := range h[len(h)-n:] {
		out[i] = o.Value
	}
	return out
}

// Clone returns a copy that shares no backing array with h.
func (h History) Clone() History {
	out := make(History, len(h))
	copy(out, h)
	return out
}

// Validate checks that dates are month starts, strictly ascending and
// contiguous. It returns a *DataFormatError describing the first violation.
func (h History) Validate() error {
	for i, o := range h {
		if !o.Date.Equal(MonthStart(o.Date)) {
			return &DataFormatError{Reason: fmt.Sprintf("observation %d: date %s is not a month start", i, o.Date.Format(time.RFC3339))}
		}
		if i == 0 {
			continue
		}
		prev := h[i-1].Date
		switch {
		case o.Date.Equal(prev):
			return &DataFormatError{Reason: fmt.Sprintf("duplicate date %s", o.Date.Format("2006-01"))}
		case o.Date.Before(prev):
			return &DataFormatError{Reason: fmt.Sprintf("date %s out of order after %s", o.Date.Format("2006-01"), prev.Format("2006-01"))}
		case !o.Date.Equal(NextMonth(prev)):
			return &DataFormatError{Reason: fmt.Sprintf("gap between %s and %s", prev.Format("2006-01"), o.Date.Format("2006-01"))}
		}
	}
	return nil
}

// DataFormatError reports a malformed wide record or an unusable series.
type DataFormatError struct {
	Reason string
}

func (e *DataFormatError) Error() string {
	return "data format: " + e.Reason
}
