package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Estimate outcomes.
const (
	OutcomeOK             = "ok"
	OutcomeCached         = "cached"
	OutcomeSchemaMismatch = "schema_mismatch"
	OutcomeNotFitted      = "not_fitted"
	OutcomeError          = "error"
)

var (
	EstimatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "housing",
		Subsystem: "estimator",
		Name:      "estimates_total",
		Help:      "Estimates served, by outcome.",
	}, []string{"outcome"})
	EstimateSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "housing",
		Subsystem: "estimator",
		Name:      "estimate_seconds",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
	})
	FitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "housing",
		Subsystem: "estimator",
		Name:      "fits_total",
		Help:      "Pipeline fits, by outcome.",
	}, []string{"outcome"})
	FitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "housing",
		Subsystem: "estimator",
		Name:      "fit_seconds",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	TrainingRows = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "housing",
		Subsystem: "estimator",
		Name:      "training_rows",
	})
	ModelFitted = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "housing",
		Subsystem: "estimator",
		Name:      "model_fitted",
		Help:      "1 once a pipeline is serving estimates.",
	})
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "housing",
		Subsystem: "ws",
		Name:      "clients",
	})
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "housing",
		Subsystem: "http",
		Name:      "requests_total",
	}, []string{"method", "code"})
	HTTPRequestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "housing",
		Subsystem: "http",
		Name:      "request_seconds",
	}, []string{"method"})
)
