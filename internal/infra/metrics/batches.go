package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(batchesFinishedTotal, linksFinishedTotal, batchesRetentionDeleted) }

var batchesFinishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "batches_finished_total",
		Help: "Batches that reached a terminal state, labeled by status.",
	},
	[]string{"status"}, // 'completed', 'failed', 'cancelled'
)

var linksFinishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "batch_links_finished_total",
		Help: "Batch links that reached a terminal state, labeled by status.",
	},
	[]string{"status"},
)

var batchesRetentionDeleted = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "batches_retention_deleted_total",
		Help: "Batches removed by the retention worker.",
	},
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func IncBatchFinished(status string) {
	batchesFinishedTotal.WithLabelValues(norm(status)).Inc()
}

func IncLinkFinished(status string) {
	linksFinishedTotal.WithLabelValues(norm(status)).Inc()
}

func AddRetentionDeleted(n int) {
	batchesRetentionDeleted.Add(float64(n))
}
