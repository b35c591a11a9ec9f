// Package models selects the forecaster's estimator from configuration.
package models

import (
	"fmt"
	"log/slog"

	"github.com/HatiCode/rainfall/pkg/features"
	"github.com/HatiCode/rainfall/pkg/models"
)

// New returns an untrained model of the given kind reading schema's columns.
func New(kind string, schema features.Schema, ridgeLambda float64, logger *slog.Logger) (models.Model, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	switch kind {
	case "linear":
		logger.Debug("initializing linear model",
			"columns", len(schema.Columns()),
			"ridge_lambda", ridgeLambda,
		)
		return models.NewLinearModel(schema.Columns(), ridgeLambda), nil

	case "baseline":
		logger.Debug("initializing baseline model", "lags", schema.NLags)
		return models.NewBaselineModel(schema.LagColumns()), nil

	default:
		return nil, fmt.Errorf("invalid model type %q", kind)
	}
}
