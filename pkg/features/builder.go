// Package features builds lag and calendar feature frames from a monthly
// rainfall series.
//
// Training and forecasting both go through [Encode], so the feature layout a
// model is fitted on is, by construction, the layout it is queried with.
package features

import (
	"time"

	"github.com/HatiCode/rainfall/pkg/models"
	"github.com/HatiCode/rainfall/pkg/series"
)

// Builder constructs feature frames for one Schema.
// It holds no mutable state and is safe for concurrent use.
type Builder struct {
	schema Schema
}

// NewBuilder creates a feature builder for schema.
func NewBuilder(schema Schema) (*Builder, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &Builder{schema: schema}, nil
}

// Schema returns the schema the builder encodes with.
func (b *Builder) Schema() Schema {
	return b.schema
}

// StepFrame encodes a single forecast step.
// window holds the NLags most recent values, oldest first.
func (b *Builder) StepFrame(window []float64, target time.Time) (models.FeatureFrame, error) {
	v, err := Encode(b.schema, window, target)
	if err != nil {
		return models.FeatureFrame{}, err
	}
	return models.FeatureFrame{Rows: []map[string]float64{v.Row()}}, nil
}

// TrainingFrame builds one row per observation that has at least NLags
// predecessors, labeling each row with the observation's own value in the
// "value" column. Observations without enough lag depth are dropped, so a
// history of length L yields max(0, L-NLags) rows.
func (b *Builder) TrainingFrame(history series.History) (models.FeatureFrame, error) {
	n := b.schema.NLags
	if len(history) <= n {
		return models.FeatureFrame{Rows: []map[string]float64{}}, nil
	}

	values := history.Values()
	rows := make([]map[string]float64, 0, len(history)-n)
	for i := n; i < len(history); i++ {
		v, err := Encode(b.schema, values[i-n:i], history[i].Date)
		if err != nil {
			return models.FeatureFrame{}, err
		}
		row := v.Row()
		row[ColumnTarget] = values[i]
		rows = append(rows, row)
	}

	return models.FeatureFrame{Rows: rows}, nil
}
