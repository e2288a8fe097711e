package repository

import (
	"context"

	"slideshow-batch/internal/domain/model"
)

type LinkRepository interface {
	Create(ctx context.Context, tx Tx, l *model.Link) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Link, error)
	ListByBatch(ctx context.Context, tx Tx, batchID string) ([]*model.Link, error)
	ListByBatchStatus(ctx context.Context, tx Tx, batchID string, status model.LinkStatus) ([]*model.Link, error)

	UpdateStatus(ctx context.Context, tx Tx, id string, status model.LinkStatus, errMsg string) error
	SetDriveFolder(ctx context.Context, tx Tx, id, folderURL string) error

	CountByStatus(ctx context.Context, tx Tx, batchID string) (map[model.LinkStatus]int, error)

	// CancelPending fails every still-pending link of the batch with the given
	// reason and returns the ids it transitioned. Links already processing are
	// left alone; their coordinators observe the cancel flag themselves.
	CancelPending(ctx context.Context, tx Tx, batchID, reason string) ([]string, error)

	// ResetForRetry moves failed links back to pending (clearing error and
	// completion stamps) and returns their ids, so a retry pass can create
	// fresh variations for them.
	ResetForRetry(ctx context.Context, tx Tx, batchID string) ([]string, error)
}
