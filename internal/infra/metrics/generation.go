// File: internal/infra/metrics/generation.go
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(generationLatencyMs, uploadsTotal, limiterWaitSeconds) }

var generationLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "generation_calls_latency_ms",
		Help:    "Generation call latency distribution in milliseconds.",
		Buckets: []float64{250, 500, 1000, 2000, 4000, 8000, 16000, 30000, 60000, 120000},
	},
	[]string{"provider", "success"},
)

var uploadsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "drive_uploads_total",
		Help: "Artifact uploads by outcome.",
	},
	[]string{"status"}, // 'ok', 'error'
)

var limiterWaitSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "rate_limiter_wait_seconds",
		Help:    "Time callers spent blocked in the generation rate limiter.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	},
)

func ObserveGeneration(provider string, latencyMs int, success bool) {
	generationLatencyMs.WithLabelValues(norm(provider), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func IncUpload(ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	uploadsTotal.WithLabelValues(status).Inc()
}

func ObserveLimiterWait(seconds float64) {
	limiterWaitSeconds.Observe(seconds)
}
