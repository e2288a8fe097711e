package repository

import (
	"context"
	"time"

	"slideshow-batch/internal/domain/model"
)

// RollupField names a batch-level aggregate counter that can be adjusted
// atomically (read-modify-write serialized by the store, never by callers).
type RollupField string

const (
	RollupCompletedLinks RollupField = "completed_links"
	RollupFailedLinks    RollupField = "failed_links"
)

type BatchRepository interface {
	Create(ctx context.Context, tx Tx, b *model.Batch) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Batch, error)

	// UpdateStatus applies a forward-only status transition, stamping
	// started_at/completed_at as appropriate. errMsg is stored only when
	// non-empty.
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.BatchStatus, errMsg string) error

	SetDriveFolder(ctx context.Context, tx Tx, id, folderURL string) error

	// IncrementRollup atomically adjusts one aggregate counter. Safe to call
	// concurrently from sibling link coordinators.
	IncrementRollup(ctx context.Context, tx Tx, id string, field RollupField, delta int) error

	// BeginPass reopens a terminal batch for a retry-failed pass: bumps the
	// pass counter, records the pass id, moves status back to processing and
	// clears the completion stamp. This is the single sanctioned exception to
	// the forward-only lifecycle.
	BeginPass(ctx context.Context, tx Tx, id, passID string, pass int) error

	ListRecent(ctx context.Context, tx Tx, limit int) ([]*model.Batch, error)

	// DeleteOlderThan removes terminal batches (and, via ownership, their
	// links and variations) whose completion predates cutoff. This is the only
	// deletion path; nothing is removed implicitly.
	DeleteOlderThan(ctx context.Context, tx Tx, cutoff time.Time) (int, error)
}
