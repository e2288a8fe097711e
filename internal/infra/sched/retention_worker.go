package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"slideshow-batch/internal/domain/ports/repository"
	"slideshow-batch/internal/infra/metrics"
)

// RetentionWorker periodically deletes terminal batches older than the
// retention window. Links and variations go with them via cascade.
type RetentionWorker struct {
	interval  time.Duration
	retention time.Duration
	batches   repository.BatchRepository
	log       *zerolog.Logger
}

func NewRetentionWorker(interval time.Duration, retentionDays int, batches repository.BatchRepository, logger *zerolog.Logger) *RetentionWorker {
	retLog := logger.With().Str("component", "RetentionWorker").Logger()
	if interval <= 0 {
		interval = time.Hour
	}
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &RetentionWorker{
		interval:  interval,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		batches:   batches,
		log:       &retLog,
	}
}

func (w *RetentionWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting retention worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping retention worker")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				w.log.Error().Err(err).Msg("retention sweep error")
			}
		}
	}
}

// Sweep runs one retention pass. The admin API calls this directly for a
// manual trigger; the ticker loop calls it on schedule.
func (w *RetentionWorker) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-w.retention)
	n, err := w.batches.DeleteOlderThan(ctx, nil, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddRetentionDeleted(n)
		w.log.Info().Int("count", n).Time("cutoff", cutoff).Msg("old batches deleted")
	}
	return n, nil
}
