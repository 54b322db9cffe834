// Package metrics holds the Prometheus collectors of the predictor service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Prediction path
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recyclerate_predictions_total",
			Help: "Total number of rows scored",
		},
		[]string{"path"}, // "single", "batch"
	)

	PredictionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recyclerate_prediction_errors_total",
			Help: "Total number of failed inference calls",
		},
		[]string{"path"},
	)

	PredictionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recyclerate_prediction_duration_seconds",
			Help:    "Duration of inference calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	UnseenCategories = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recyclerate_unseen_categories_total",
			Help: "Categorical values with no training-time category, aligned as the baseline",
		},
		[]string{"field"},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recyclerate_prediction_cache_hits_total",
			Help: "Total number of prediction cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recyclerate_prediction_cache_misses_total",
			Help: "Total number of prediction cache misses",
		},
	)

	// Model lifecycle
	ModelReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recyclerate_model_reloads_total",
			Help: "Total number of model artifact reload attempts",
		},
		[]string{"result"},
	)

	ModelLoadedTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recyclerate_model_loaded_timestamp_seconds",
			Help: "Unix time the serving model was loaded",
		},
	)

	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recyclerate_training_runs_total",
			Help: "Total number of training runs",
		},
		[]string{"result"},
	)

	TrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recyclerate_training_duration_seconds",
			Help:    "Duration of training runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	TrainingRMSE = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recyclerate_training_rmse",
			Help: "Held-out RMSE of the last training run",
		},
		[]string{"model"}, // "baseline", "tuned"
	)

	// HTTP
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recyclerate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recyclerate_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recyclerate_ws_connections",
			Help: "Open prediction WebSocket connections",
		},
	)
)
