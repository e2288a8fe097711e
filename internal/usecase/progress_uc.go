package usecase

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"

	"slideshow-batch/internal/domain/model"
	"slideshow-batch/internal/domain/ports/repository"
)

// Snapshot is a read-only projection of one batch's progress, taken from a
// single consistent view of the store.
type Snapshot struct {
	BatchID string             `json:"batch_id"`
	Status  model.BatchStatus  `json:"status"`
	Pass    int                `json:"pass"`

	TotalLinks     int `json:"total_links"`
	CompletedLinks int `json:"completed_links"`
	FailedLinks    int `json:"failed_links"`

	LinkCounts      map[model.LinkStatus]int      `json:"link_counts"`
	VariationCounts map[model.VariationStatus]int `json:"variation_counts"`

	// Percentage is floor(completed_links / total_links × 100).
	Percentage int `json:"percentage"`

	// ETASeconds is (elapsed / completed) × remaining, omitted until the
	// first link completes.
	ETASeconds *int64 `json:"eta_seconds,omitempty"`

	DriveFolderURL string `json:"drive_folder_url,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// ProgressUC aggregates progress. Calling it never mutates anything.
type ProgressUC struct {
	txm        repository.TransactionManager
	batches    repository.BatchRepository
	links      repository.LinkRepository
	variations repository.VariationRepository

	now func() time.Time
}

func NewProgressUC(
	txm repository.TransactionManager,
	batches repository.BatchRepository,
	links repository.LinkRepository,
	variations repository.VariationRepository,
) *ProgressUC {
	return &ProgressUC{
		txm:        txm,
		batches:    batches,
		links:      links,
		variations: variations,
		now:        time.Now,
	}
}

func (uc *ProgressUC) Snapshot(ctx context.Context, batchID string) (*Snapshot, error) {
	var snap *Snapshot
	err := uc.txm.WithTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(ctx context.Context, tx repository.Tx) error {
		batch, err := uc.batches.FindByID(ctx, tx, batchID)
		if err != nil {
			return err
		}
		linkCounts, err := uc.links.CountByStatus(ctx, tx, batchID)
		if err != nil {
			return err
		}
		varCounts, err := uc.variations.CountByStatus(ctx, tx, batchID)
		if err != nil {
			return err
		}
		snap = uc.project(batch, linkCounts, varCounts)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (uc *ProgressUC) project(batch *model.Batch, linkCounts map[model.LinkStatus]int, varCounts map[model.VariationStatus]int) *Snapshot {
	snap := &Snapshot{
		BatchID:         batch.ID,
		Status:          batch.Status,
		Pass:            batch.Pass,
		TotalLinks:      batch.TotalLinks,
		CompletedLinks:  batch.CompletedLinks,
		FailedLinks:     batch.FailedLinks,
		LinkCounts:      linkCounts,
		VariationCounts: varCounts,
		DriveFolderURL:  batch.DriveFolderURL,
		ErrorMessage:    batch.ErrorMessage,
	}

	if batch.TotalLinks > 0 {
		snap.Percentage = batch.CompletedLinks * 100 / batch.TotalLinks
	}

	if batch.CompletedLinks >= 1 && batch.Status == model.BatchStatusProcessing && batch.StartedAt != nil {
		elapsed := uc.now().Sub(*batch.StartedAt)
		remaining := batch.TotalLinks - batch.CompletedLinks - batch.FailedLinks
		if remaining > 0 {
			eta := int64(elapsed.Seconds() / float64(batch.CompletedLinks) * float64(remaining))
			snap.ETASeconds = &eta
		}
	}
	return snap
}
