package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	launchedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mau_estimator",
		Subsystem: "scheduler",
		Name:      "runs_launched_total",
		Help:      "Number of estimation runs launched from snapshot announcements.",
	}, []string{"topic"})

	launchErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mau_estimator",
		Subsystem: "scheduler",
		Name:      "launch_errors_total",
		Help:      "Number of failed launch attempts per topic.",
	}, []string{"topic"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mau_estimator",
		Subsystem: "scheduler",
		Name:      "decode_errors_total",
		Help:      "Number of snapshot announcements that failed to decode.",
	}, []string{"topic"})

	lastSnapshotGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mau_estimator",
		Subsystem: "scheduler",
		Name:      "last_snapshot_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successfully handled snapshot announcement.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(launchedCounter, launchErrorCounter, decodeErrorCounter, lastSnapshotGauge)
}

func recordLaunched(topic string, ts time.Time) {
	launchedCounter.WithLabelValues(topic).Inc()
	if !ts.IsZero() {
		lastSnapshotGauge.WithLabelValues(topic).Set(float64(ts.Unix()))
	}
}

func recordLaunchError(topic string) {
	launchErrorCounter.WithLabelValues(topic).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}
