// Package metrics provides Prometheus instrumentation for the forecaster.
//
// Metrics exposed (all labelled with the series name):
//   - rainfall_history_load_seconds: time to read and reshape the source CSV
//   - rainfall_model_train_seconds: time to fit the model
//   - rainfall_forecast_run_seconds: time for one full autoregressive run
//   - rainfall_history_observations: observations in the last loaded history
//   - rainfall_forecast_points: points in the last stored forecast
//   - rainfall_forecast_age_seconds: age of the stored forecast
//   - rainfall_errors_total: failures by component and reason
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	HistoryLoadSeconds  prometheus.Histogram
	ModelTrainSeconds   prometheus.Histogram
	ForecastRunSeconds  prometheus.Histogram
	HistoryObservations prometheus.Gauge
	ForecastPoints      prometheus.Gauge
	ForecastAgeSeconds  prometheus.Gauge
	ErrorsTotal         *prometheus.CounterVec
}

// New registers the forecaster metrics for series on the default registerer.
func New(series string) *Metrics {
	return NewWithRegisterer(series, prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the forecaster metrics on reg.
func NewWithRegisterer(series string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"series": series}

	return &Metrics{
		HistoryLoadSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "rainfall",
			Name:        "history_load_seconds",
			Help:        "Time spent loading and reshaping the rainfall history",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		ModelTrainSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "rainfall",
			Name:        "model_train_seconds",
			Help:        "Time spent fitting the model",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		ForecastRunSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "rainfall",
			Name:        "forecast_run_seconds",
			Help:        "Time spent running the autoregressive forecast",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		HistoryObservations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "rainfall",
			Name:        "history_observations",
			Help:        "Monthly observations in the last loaded history",
			ConstLabels: labels,
		}),
		ForecastPoints: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "rainfall",
			Name:        "forecast_points",
			Help:        "Forecast months in the last stored snapshot",
			ConstLabels: labels,
		}),
		ForecastAgeSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "rainfall",
			Name:        "forecast_age_seconds",
			Help:        "Age of the current forecast in seconds",
			ConstLabels: labels,
		}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "rainfall",
			Name:        "errors_total",
			Help:        "Total number of errors by component and reason",
			ConstLabels: labels,
		}, []string{"component", "reason"}),
	}
}

func (m *Metrics) RecordLoad(seconds float64) {
	m.HistoryLoadSeconds.Observe(seconds)
}

func (m *Metrics) RecordTrain(seconds float64) {
	m.ModelTrainSeconds.Observe(seconds)
}

func (m *Metrics) RecordForecast(seconds float64) {
	m.ForecastRunSeconds.Observe(seconds)
}

func (m *Metrics) SetHistoryObservations(n int) {
	m.HistoryObservations.Set(float64(n))
}

func (m *Metrics) SetForecastPoints(n int) {
	m.ForecastPoints.Set(float64(n))
}

func (m *Metrics) SetForecastAge(seconds float64) {
	m.ForecastAgeSeconds.Set(seconds)
}

func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
