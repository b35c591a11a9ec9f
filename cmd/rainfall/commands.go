package main

import (
	"encoding/csv"
	"fmt"

	"github.com/spf13/cobra"

	forecastermodels "github.com/HatiCode/rainfall/cmd/forecaster/models"
	"github.com/HatiCode/rainfall/pkg/features"
	"github.com/HatiCode/rainfall/pkg/forecast"
	"github.com/HatiCode/rainfall/pkg/models"
)

// reshapeCmd melts the wide table into a monthly series.
func reshapeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reshape",
		Short: "Reshape the yearly table into a monthly date,rain_mm series",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := opts.loadHistory(cmd.Context(), cmd, opts.logger(cmd))
			if err != nil {
				return err
			}

			dates := make([]string, len(history))
			for i, o := range history {
				dates[i] = o.Date.Format(dateLayout)
			}
			return writeSeries(cmd.OutOrStdout(), dates, history.Values())
		},
	}
}

// featuresCmd writes the lagged training frame.
func featuresCmd(opts *globalOptions) *cobra.Command {
	var nLags int

	cmd := &cobra.Command{
		Use:   "features",
		Short: "Write the lagged training frame built from the monthly series",
		Long: `Writes one row per month that has at least --lags predecessors: the month's
date, lag_1..lag_n (lag_1 being the previous month), the calendar month
encodings and the observed value.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			builder, err := features.NewBuilder(features.Schema{NLags: nLags})
			if err != nil {
				return err
			}

			history, err := opts.loadHistory(cmd.Context(), cmd, opts.logger(cmd))
			if err != nil {
				return err
			}
			if len(history) <= nLags {
				return &forecast.InsufficientHistoryError{Have: len(history), Need: nLags + 1}
			}

			frame, err := builder.TrainingFrame(history)
			if err != nil {
				return err
			}

			columns := append(builder.Schema().Columns(), features.ColumnTarget)
			w := csv.NewWriter(cmd.OutOrStdout())
			if err := w.Write(append([]string{"date"}, columns...)); err != nil {
				return err
			}
			// row i is labelled with history[nLags+i]
			for i, row := range frame.Rows {
				record := make([]string, 0, len(columns)+1)
				record = append(record, history[nLags+i].Date.Format(dateLayout))
				for _, col := range columns {
					record = append(record, formatFloat(row[col]))
				}
				if err := w.Write(record); err != nil {
					return err
				}
			}
			w.Flush()
			return w.Error()
		},
	}

	cmd.Flags().IntVarP(&nLags, "lags", "l", 12, "Number of lag features")

	return cmd
}

// forecastCmd trains a model on the full history and forecasts past its end.
func forecastCmd(opts *globalOptions) *cobra.Command {
	var (
		nLags       int
		monthsAhead int
		kind        string
		ridgeLambda float64
	)

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Train a model and forecast the months following the series",
		Long: `Trains the selected model on the lagged training frame, then forecasts
--months months autoregressively: every predicted month becomes lag_1 of the
next one. The forecast is written as date,rain_mm.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := opts.logger(cmd)

			if monthsAhead < 0 {
				return &features.ValidationError{Field: "months_ahead", Reason: fmt.Sprintf("must not be negative, got %d", monthsAhead)}
			}

			schema := features.Schema{NLags: nLags}
			model, err := forecastermodels.New(kind, schema, ridgeLambda, log)
			if err != nil {
				return err
			}

			history, err := opts.loadHistory(ctx, cmd, log)
			if err != nil {
				return err
			}
			if len(history) < nLags {
				return &forecast.InsufficientHistoryError{Have: len(history), Need: nLags}
			}

			builder, err := features.NewBuilder(schema)
			if err != nil {
				return err
			}
			frame, err := builder.TrainingFrame(history)
			if err != nil {
				return err
			}
			if err := model.Train(ctx, frame); err != nil {
				return fmt.Errorf("train %s: %w", model.Name(), err)
			}
			log.Info("trained model", "model", model.Name(), "rows", len(frame.Rows))

			engine, err := forecast.NewEngine(schema, model, forecast.WithLogger(log))
			if err != nil {
				return err
			}
			seq, err := engine.Run(ctx, history, monthsAhead)
			if err != nil {
				return err
			}

			dates := make([]string, len(seq.Points))
			for i, p := range seq.Points {
				dates[i] = p.Date.Format(dateLayout)
			}
			return writeSeries(cmd.OutOrStdout(), dates, seq.Values())
		},
	}

	cmd.Flags().IntVarP(&nLags, "lags", "l", 12, "Number of lag features")
	cmd.Flags().IntVarP(&monthsAhead, "months", "m", 120, "Number of months to forecast")
	cmd.Flags().StringVar(&kind, "model", "linear", "Model (linear, baseline)")
	cmd.Flags().Float64Var(&ridgeLambda, "ridge-lambda", models.DefaultRidgeLambda, "Ridge penalty for the linear model")

	return cmd
}
