// Package metrics exposes Prometheus counters and histograms for the
// gateway's invocation and broadcast activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	invocationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "agentgateway",
		Name:      "invocation_duration_seconds",
		Help:      "Wall-clock duration of agent invocations.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})
	invocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentgateway",
		Name:      "invocations_total",
		Help:      "Completed invocations, labeled by result.",
	}, []string{"result"})
	broadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agentgateway",
		Name:      "watch_broadcasts_total",
		Help:      "Number of projects_updated frames broadcast to clients.",
	})
)

// Recorder implements gateway.Metrics.
type Recorder struct{}

func New() Recorder { return Recorder{} }

// ObserveInvocation records one completed invocation's duration and
// classifies it as aborted, failed, or ok for the result label.
func (Recorder) ObserveInvocation(durationSeconds float64, exitCode int, aborted bool) {
	invocationDuration.Observe(durationSeconds)
	result := "ok"
	switch {
	case aborted:
		result = "aborted"
	case exitCode != 0:
		result = "failed"
	}
	invocationsTotal.WithLabelValues(result).Inc()
}

// IncBroadcast counts one projects_updated frame offered to one client.
func (Recorder) IncBroadcast() {
	broadcastsTotal.Inc()
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
