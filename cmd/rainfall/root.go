package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/HatiCode/rainfall/cmd/forecaster/logger"
	"github.com/HatiCode/rainfall/pkg/adapters"
	"github.com/HatiCode/rainfall/pkg/series"
)

// dateLayout is used for every date column the CLI writes.
const dateLayout = "2006-01-02"

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	dataPath   string
	delimiter  string
	yearColumn string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "rainfall",
		Short: "Monthly rainfall reshaping and autoregressive forecasting",
		Long: `Reads a wide yearly rainfall table (one row per year, one column per month)
and reshapes it into a monthly series, builds lagged feature frames from it,
or trains a model and forecasts the following months.

Use --data - to read the table from stdin.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.dataPath, "data", "d", "data/rainfall.csv", "Wide yearly rainfall CSV (- for stdin)")
	rootCmd.PersistentFlags().StringVar(&opts.delimiter, "delimiter", ";", "Input field delimiter")
	rootCmd.PersistentFlags().StringVar(&opts.yearColumn, "year-column", "Tahun", "Column holding the calendar year")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(reshapeCmd(opts))
	rootCmd.AddCommand(featuresCmd(opts))
	rootCmd.AddCommand(forecastCmd(opts))

	return rootCmd
}

// logger writes to the command's stderr so stdout stays pure CSV.
func (o *globalOptions) logger(cmd *cobra.Command) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: logger.ParseLevel(o.logLevel)}
	if o.logFormat == "json" {
		return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), handlerOpts))
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), handlerOpts))
}

func (o *globalOptions) adapter(cmd *cobra.Command) (adapters.Adapter, error) {
	comma, size := utf8.DecodeRuneInString(o.delimiter)
	if comma == utf8.RuneError || size != len(o.delimiter) {
		return nil, fmt.Errorf("delimiter must be a single character, got %q", o.delimiter)
	}

	if o.dataPath == "-" {
		return adapters.NewReaderAdapter(cmd.InOrStdin(), comma), nil
	}
	return &adapters.CSVAdapter{Path: o.dataPath, Comma: comma}, nil
}

// loadHistory reads the configured table and reshapes it into a History.
func (o *globalOptions) loadHistory(ctx context.Context, cmd *cobra.Command, log *slog.Logger) (series.History, error) {
	adapter, err := o.adapter(cmd)
	if err != nil {
		return nil, err
	}

	cfg := series.DefaultConfig()
	cfg.YearColumn = o.yearColumn
	reshaper, err := series.NewReshaper(cfg)
	if err != nil {
		return nil, err
	}

	df, err := adapter.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", o.dataPath, err)
	}

	history, report, err := reshaper.Reshape(*df)
	if err != nil {
		return nil, err
	}
	if !report.Clean() {
		log.Warn("reshape diagnostics",
			"empty_columns", report.EmptyColumns,
			"unmapped_columns", report.UnmappedColumns,
			"dropped_rows", report.DroppedRows,
			"dropped_values", report.DroppedValues,
		)
	}
	log.Debug("loaded history", "adapter", adapter.Name(), "observations", len(history))

	return history, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// writeSeries writes date,rain_mm rows.
func writeSeries(w io.Writer, dates []string, values []float64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "rain_mm"}); err != nil {
		return err
	}
	for i := range dates {
		if err := cw.Write([]string{dates[i], formatFloat(values[i])}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
