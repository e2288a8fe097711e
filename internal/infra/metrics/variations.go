package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(variationsProcessedTotal, variationRetriesTotal) }

var variationsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "variations_processed_total",
		Help: "Variations that reached a terminal state, labeled by status.",
	},
	[]string{"status"}, // 'completed', 'failed'
)

var variationRetriesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "variation_retries_total",
		Help: "Failed generation attempts that were retried or exhausted.",
	},
)

func IncVariation(status string) {
	variationsProcessedTotal.WithLabelValues(norm(status)).Inc()
}

func IncVariationRetry() {
	variationRetriesTotal.Inc()
}
