// Package metrics holds the process-wide Prometheus collectors for the batch
// engine. Each file in the package declares its collectors and queues them
// from init; main flushes the queue into the default registry exactly once
// before the /metrics endpoint goes live.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once
	queued       []prometheus.Collector
)

func register(cs ...prometheus.Collector) {
	queued = append(queued, cs...)
}

// MustRegister installs every queued collector. Calls after the first are
// no-ops, so tests that build multiple servers stay safe.
func MustRegister() {
	registerOnce.Do(func() {
		if len(queued) > 0 {
			prometheus.MustRegister(queued...)
		}
	})
}
