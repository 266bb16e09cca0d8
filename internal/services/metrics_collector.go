package services

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Recommendation paths reported by the request counter.
const (
	PathModel    = "model"
	PathFallback = "fallback"
	PathEmpty    = "empty"
)

// MetricsCollector holds the service's Prometheus instruments.
type MetricsCollector struct {
	recommendationRequests *prometheus.CounterVec
	recommendationLatency  *prometheus.HistogramVec
	trainingRuns           *prometheus.CounterVec
	trainingDuration       prometheus.Histogram
	snapshotLoads          *prometheus.CounterVec
	similarCache           *prometheus.CounterVec
	interactionEvents      *prometheus.CounterVec
}

// NewMetricsCollector registers the instruments with reg, or with the
// default registry when reg is nil. Instruments that are already
// registered are reused.
func NewMetricsCollector(reg prometheus.Registerer, logger *logrus.Logger) *MetricsCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	mc := &MetricsCollector{
		recommendationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendation_requests_total",
			Help: "Recommendation requests by endpoint and serving path",
		}, []string{"endpoint", "path"}),

		recommendationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recommendation_latency_seconds",
			Help:    "Recommendation latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		}, []string{"endpoint"}),

		trainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "model_training_runs_total",
			Help: "Training runs by outcome",
		}, []string{"outcome"}),

		trainingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "model_training_duration_seconds",
			Help:    "Duration of successful training runs",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),

		snapshotLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "model_snapshot_loads_total",
			Help: "Snapshot load attempts by result",
		}, []string{"result"}),

		similarCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "similar_products_cache_total",
			Help: "Similar products cache lookups by result",
		}, []string{"result"}),

		interactionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interaction_events_total",
			Help: "Tracked interaction events by type and outcome",
		}, []string{"type", "outcome"}),
	}

	mc.recommendationRequests = register(reg, logger, mc.recommendationRequests)
	mc.recommendationLatency = register(reg, logger, mc.recommendationLatency)
	mc.trainingRuns = register(reg, logger, mc.trainingRuns)
	mc.trainingDuration = register(reg, logger, mc.trainingDuration)
	mc.snapshotLoads = register(reg, logger, mc.snapshotLoads)
	mc.similarCache = register(reg, logger, mc.similarCache)
	mc.interactionEvents = register(reg, logger, mc.interactionEvents)

	return mc
}

func register[C prometheus.Collector](reg prometheus.Registerer, logger *logrus.Logger, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
			return c
		}
		logger.WithError(err).Warn("Failed to register metric")
	}
	return c
}

func (mc *MetricsCollector) RecordRecommendation(endpoint, path string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.recommendationRequests.WithLabelValues(endpoint, path).Inc()
	mc.recommendationLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (mc *MetricsCollector) RecordTraining(outcome string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.trainingRuns.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		mc.trainingDuration.Observe(duration.Seconds())
	}
}

func (mc *MetricsCollector) RecordSnapshotLoad(loaded bool) {
	if mc == nil {
		return
	}
	result := "miss"
	if loaded {
		result = "hit"
	}
	mc.snapshotLoads.WithLabelValues(result).Inc()
}

func (mc *MetricsCollector) RecordSimilarCache(hit bool) {
	if mc == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	mc.similarCache.WithLabelValues(result).Inc()
}

func (mc *MetricsCollector) RecordInteractionEvent(kind, outcome string) {
	if mc == nil {
		return
	}
	mc.interactionEvents.WithLabelValues(kind, outcome).Inc()
}
