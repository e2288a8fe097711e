package notify

import (
	"context"

	"slideshow-batch/internal/domain/model"
	"slideshow-batch/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*NoopNotifier)(nil)

// NoopNotifier is wired when no operator chat is configured.
type NoopNotifier struct{}

func NewNoopNotifier() *NoopNotifier { return &NoopNotifier{} }

func (NoopNotifier) NotifyBatchFinished(ctx context.Context, b *model.Batch) error { return nil }
