package adapter

import (
	"context"

	"slideshow-batch/internal/domain/model"
)

// Notifier tells an operator that a batch reached a terminal state. Failures
// are logged, never propagated into the batch outcome.
type Notifier interface {
	NotifyBatchFinished(ctx context.Context, b *model.Batch) error
}
