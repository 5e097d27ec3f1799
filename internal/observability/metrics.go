// Package observability registers the Prometheus collectors shared by the
// estimation binaries.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mau_estimator",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Number of completed estimation runs grouped by terminal status.",
	}, []string{"status"})

	lastPublishedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mau_estimator",
		Subsystem: "pipeline",
		Name:      "last_published_run_timestamp_seconds",
		Help:      "Unix timestamp of the most recent run that reached a published status.",
	})

	estimatesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mau_estimator",
		Subsystem: "pipeline",
		Name:      "estimates_last_run",
		Help:      "Number of MAU estimate rows produced by the most recent run.",
	})

	violationsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mau_estimator",
		Subsystem: "quality_gate",
		Name:      "violations_total",
		Help:      "Manifest violation entries grouped by kind.",
	}, []string{"kind"})

	stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mau_estimator",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Wall time spent per pipeline stage.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"stage"})
)

func init() {
	prometheus.MustRegister(runsCounter, lastPublishedGauge, estimatesGauge, violationsCounter, stageDuration)
}

// RecordRun updates run-level metrics after a run reaches a terminal status.
func RecordRun(status string, estimateCount int, completedAt time.Time, published bool) {
	runsCounter.WithLabelValues(status).Inc()
	estimatesGauge.Set(float64(estimateCount))
	if published && !completedAt.IsZero() {
		lastPublishedGauge.Set(float64(completedAt.Unix()))
	}
}

// RecordViolation counts one manifest entry.
func RecordViolation(kind string) {
	violationsCounter.WithLabelValues(kind).Inc()
}

// ObserveStage records the wall time of one pipeline stage.
func ObserveStage(stage string, d time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
