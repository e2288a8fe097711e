package repository

import (
	"context"

	"slideshow-batch/internal/domain/model"
)

type VariationRepository interface {
	Create(ctx context.Context, tx Tx, v *model.Variation) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Variation, error)

	// ListByLink returns the variations of one link belonging to the given
	// retry pass, ordered by variation number.
	ListByLink(ctx context.Context, tx Tx, linkID string, pass int) ([]*model.Variation, error)

	UpdateStatus(ctx context.Context, tx Tx, id string, status model.VariationStatus, errMsg string) error
	SetArtifact(ctx context.Context, tx Tx, id, outputName, driveURL string) error

	// IncrementRetries bumps the attempt counter; called once per failed
	// attempt by the retry policy.
	IncrementRetries(ctx context.Context, tx Tx, id string) error

	// CountByStatus aggregates variation counts across the whole batch.
	CountByStatus(ctx context.Context, tx Tx, batchID string) (map[model.VariationStatus]int, error)

	// CancelPendingForLinks fails the still-pending variations of the given
	// links with the given reason. Used when whole links are skipped on
	// cancellation, so no variation is left in a non-terminal state.
	CancelPendingForLinks(ctx context.Context, tx Tx, linkIDs []string, reason string) (int, error)
}
