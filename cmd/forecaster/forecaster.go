package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/HatiCode/rainfall/cmd/forecaster/metrics"
	"github.com/HatiCode/rainfall/cmd/forecaster/router"
	"github.com/HatiCode/rainfall/pkg/adapters"
	"github.com/HatiCode/rainfall/pkg/client"
	"github.com/HatiCode/rainfall/pkg/features"
	"github.com/HatiCode/rainfall/pkg/forecast"
	"github.com/HatiCode/rainfall/pkg/models"
	"github.com/HatiCode/rainfall/pkg/series"
	"github.com/HatiCode/rainfall/pkg/sink"
	"github.com/HatiCode/rainfall/pkg/storage"
)

// ModelFactory returns a fresh, untrained model. Every tick trains its own
// instance so on-demand runs never see a model change under them.
type ModelFactory func() (models.Model, error)

// Options wires a Forecaster.
type Options struct {
	Series      string
	Adapter     adapters.Adapter
	Reshaper    *series.Reshaper
	Schema      features.Schema
	NewModel    ModelFactory
	Store       storage.Store
	Publisher   sink.Publisher
	MonthsAhead int
	CacheSize   int
	Clock       clockwork.Clock
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Forecaster orchestrates the forecast loop:
// load → reshape → train → forecast → store → publish.
type Forecaster struct {
	series      string
	adapter     adapters.Adapter
	reshaper    *series.Reshaper
	builder     *features.Builder
	newModel    ModelFactory
	store       storage.Store
	publisher   sink.Publisher
	monthsAhead int
	cacheSize   int
	clock       clockwork.Clock
	metrics     *metrics.Metrics
	logger      *slog.Logger

	// state from the last successful tick, served to on-demand requests
	mu      sync.RWMutex
	history series.History
	runner  *forecast.CachedRunner
}

// New creates a new Forecaster.
func New(opts Options) (*Forecaster, error) {
	builder, err := features.NewBuilder(opts.Schema)
	if err != nil {
		return nil, err
	}
	if opts.Adapter == nil || opts.Reshaper == nil || opts.NewModel == nil || opts.Store == nil {
		return nil, fmt.Errorf("adapter, reshaper, model factory and store are required")
	}
	if opts.Publisher == nil {
		opts.Publisher = sink.Nop{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CacheSize < 1 {
		opts.CacheSize = 1
	}

	return &Forecaster{
		series:      opts.Series,
		adapter:     opts.Adapter,
		reshaper:    opts.Reshaper,
		builder:     builder,
		newModel:    opts.NewModel,
		store:       opts.Store,
		publisher:   opts.Publisher,
		monthsAhead: opts.MonthsAhead,
		cacheSize:   opts.CacheSize,
		clock:       opts.Clock,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}, nil
}

// Run executes the forecast loop at regular intervals.
// Blocks until context is canceled.
func (f *Forecaster) Run(ctx context.Context, interval time.Duration) error {
	f.logger.Info("starting forecast loop", "interval", interval)

	ticker := f.clock.NewTicker(interval)
	defer ticker.Stop()

	if err := f.Tick(ctx); err != nil {
		f.logger.Error("forecast tick failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("forecast loop stopped")
			return ctx.Err()
		case <-ticker.Chan():
			if err := f.Tick(ctx); err != nil {
				f.logger.Error("forecast tick failed", "error", err)
			}
		}
	}
}

// Tick performs one forecast cycle.
// Exported for testing purposes.
func (f *Forecaster) Tick(ctx context.Context) error {
	start := f.clock.Now()
	f.logger.Debug("starting forecast tick")

	history, loadDuration, err := f.load(ctx)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}

	model, trainDuration, err := f.train(ctx, history)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}

	runner, seq, runDuration, err := f.forecast(ctx, history, model)
	if err != nil {
		return fmt.Errorf("forecast: %w", err)
	}

	snapshot := storage.Snapshot{
		Series:      f.series,
		Model:       model.Name(),
		GeneratedAt: f.clock.Now().UTC(),
		NLags:       f.builder.Schema().NLags,
		HistoryEnd:  history.Last().Date,
		Points:      toStoragePoints(seq.Points),
	}

	if err := f.store.Put(snapshot); err != nil {
		f.recordError("store", "put_failed")
		return fmt.Errorf("store: %w", err)
	}

	f.mu.Lock()
	f.history = history
	f.runner = runner
	f.mu.Unlock()

	if f.metrics != nil {
		f.metrics.SetForecastPoints(len(snapshot.Points))
		f.metrics.SetForecastAge(0)
	}

	// the snapshot is already stored; a broker outage must not fail the tick
	if err := f.publisher.Publish(ctx, snapshot); err != nil {
		f.recordError("sink", "publish_failed")
		f.logger.Warn("failed to publish snapshot", "series", f.series, "error", err)
	}

	f.logger.Info("forecast tick complete",
		"series", f.series,
		"model", snapshot.Model,
		"observations", len(history),
		"history_end", snapshot.HistoryEnd.Format("2006-01"),
		"forecast_points", len(snapshot.Points),
		"load_ms", loadDuration.Milliseconds(),
		"train_ms", trainDuration.Milliseconds(),
		"forecast_ms", runDuration.Milliseconds(),
		"total_ms", f.clock.Since(start).Milliseconds(),
	)

	return nil
}

// load reads the source table and reshapes it into a monthly history.
func (f *Forecaster) load(ctx context.Context) (series.History, time.Duration, error) {
	start := f.clock.Now()

	df, err := f.adapter.Collect(ctx)
	if err != nil {
		f.recordError("adapter", "collect_failed")
		return nil, 0, err
	}

	history, report, err := f.reshaper.Reshape(*df)
	if err != nil {
		f.recordError("reshaper", errorReason(err))
		return nil, 0, err
	}
	if !report.Clean() {
		f.logger.Warn("reshape diagnostics",
			"series", f.series,
			"empty_columns", report.EmptyColumns,
			"unmapped_columns", report.UnmappedColumns,
			"dropped_rows", report.DroppedRows,
			"dropped_values", report.DroppedValues,
		)
	}
	if len(history) == 0 {
		f.recordError("reshaper", "empty_history")
		return nil, 0, &series.DataFormatError{Reason: "no observations"}
	}

	duration := f.clock.Since(start)
	if f.metrics != nil {
		f.metrics.RecordLoad(duration.Seconds())
		f.metrics.SetHistoryObservations(len(history))
	}
	f.logger.Debug("loaded history",
		"adapter", f.adapter.Name(),
		"rows", len(df.Rows),
		"observations", len(history),
		"duration_ms", duration.Milliseconds(),
	)

	return history, duration, nil
}

// train fits a fresh model on the batch feature frame.
func (f *Forecaster) train(ctx context.Context, history series.History) (models.Model, time.Duration, error) {
	nLags := f.builder.Schema().NLags
	if len(history) < nLags {
		f.recordError("engine", "insufficient_history")
		return nil, 0, &forecast.InsufficientHistoryError{Have: len(history), Need: nLags}
	}

	start := f.clock.Now()

	frame, err := f.builder.TrainingFrame(history)
	if err != nil {
		f.recordError("features", "build_failed")
		return nil, 0, err
	}

	model, err := f.newModel()
	if err != nil {
		f.recordError("model", "create_failed")
		return nil, 0, err
	}
	if err := model.Train(ctx, frame); err != nil {
		f.recordError("model", "train_failed")
		return nil, 0, err
	}

	duration := f.clock.Since(start)
	if f.metrics != nil {
		f.metrics.RecordTrain(duration.Seconds())
	}
	f.logger.Debug("trained model",
		"model", model.Name(),
		"rows", len(frame.Rows),
		"duration_ms", duration.Milliseconds(),
	)

	return model, duration, nil
}

// forecast runs the engine for the configured horizon through a new cache
// bound to model.
func (f *Forecaster) forecast(ctx context.Context, history series.History, model models.Model) (*forecast.CachedRunner, forecast.Sequence, time.Duration, error) {
	start := f.clock.Now()

	engine, err := forecast.NewEngine(f.builder.Schema(), model, forecast.WithLogger(f.logger))
	if err != nil {
		return nil, forecast.Sequence{}, 0, err
	}
	runner, err := forecast.NewCachedRunner(engine, f.cacheSize)
	if err != nil {
		return nil, forecast.Sequence{}, 0, err
	}

	seq, err := runner.Run(ctx, history, f.monthsAhead)
	if err != nil {
		f.recordError("engine", errorReason(err))
		return nil, forecast.Sequence{}, 0, err
	}

	duration := f.clock.Since(start)
	if f.metrics != nil {
		f.metrics.RecordForecast(duration.Seconds())
	}

	return runner, seq, duration, nil
}

// Forecast runs an on-demand forecast over the history and model of the
// last successful tick.
func (f *Forecaster) Forecast(ctx context.Context, monthsAhead int) (client.ForecastResponse, error) {
	f.mu.RLock()
	history, runner := f.history, f.runner
	f.mu.RUnlock()

	if runner == nil {
		return client.ForecastResponse{}, router.ErrNotReady
	}

	seq, err := runner.Run(ctx, history, monthsAhead)
	if err != nil {
		return client.ForecastResponse{}, err
	}

	engine := runner.Engine()
	return client.ForecastResponse{
		Series:      f.series,
		Model:       engine.Predictor().Name(),
		NLags:       engine.Schema().NLags,
		HistoryEnd:  history.Last().Date,
		MonthsAhead: monthsAhead,
		Points:      toStoragePoints(seq.Points),
	}, nil
}

func (f *Forecaster) recordError(component, reason string) {
	if f.metrics != nil {
		f.metrics.RecordError(component, reason)
	}
}

// errorReason maps the forecasting error taxonomy to a metric label.
func errorReason(err error) string {
	var (
		dfe *series.DataFormatError
		ve  *features.ValidationError
		ihe *forecast.InsufficientHistoryError
		pe  *forecast.PredictionError
	)
	switch {
	case errors.As(err, &dfe):
		return "data_format"
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &ihe):
		return "insufficient_history"
	case errors.As(err, &pe):
		return "prediction"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}

func toStoragePoints(points []forecast.Point) []storage.Point {
	out := make([]storage.Point, len(points))
	for i, p := range points {
		out[i] = storage.Point{Date: p.Date, Value: p.Value}
	}
	return out
}
