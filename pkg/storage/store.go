// Package storage persists forecast snapshots.
//
// A Snapshot is the complete output of one forecast run for one series. Only
// the latest snapshot per series is ever read back, so every backend keeps
// at least that one.
package storage

import "time"

// Point is one forecast month.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Snapshot is a stored forecast run.
type Snapshot struct {
	Series      string    `json:"series"`
	Model       string    `json:"model"`
	GeneratedAt time.Time `json:"generatedAt"`
	NLags       int       `json:"nLags"`
	// HistoryEnd is the date of the last observed month the run started from.
	HistoryEnd time.Time `json:"historyEnd"`
	Points     []Point   `json:"points"`
}

// Values returns the forecast values in date order.
func (s Snapshot) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

type Store interface {
	Put(Snapshot) error
	GetLatest(series string) (Snapshot, bool, error)
}
