package adapters

import (
	"context"
)

// Row represents a single tabular record as read from a source.
// Example: {"Tahun": "2020", "CH_Jan": "412.5", "CH_Feb": "388"}
type Row map[string]any

// DataFrame is a lightweight structure for tabular data returned by adapters.
// Columns preserves the header order of the source, Rows holds one record per line.
type DataFrame struct {
	Columns []string
	Rows    []Row
}

// Adapter is the interface that all history sources must implement.
//
// Adapters are responsible for fetching raw records from an external system
// (a CSV file, an object store, an HTTP endpoint), shaping them into a DataFrame,
// and returning it for reshaping and forecasting. All I/O happens here so that
// the reshaping and forecasting layers stay pure.
//
// The Collect() call is synchronous and should respect context cancellation
// and deadlines.
type Adapter interface {
	// Collect reads the full record set and returns it as a DataFrame.
	Collect(ctx context.Context) (*DataFrame, error)

	// Name returns a short, unique identifier for the adapter.
	// Example: "csv".
	Name() string
}
