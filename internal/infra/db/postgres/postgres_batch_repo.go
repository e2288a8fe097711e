package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"slideshow-batch/internal/domain"
	"slideshow-batch/internal/domain/model"
	"slideshow-batch/internal/domain/ports/repository"
)

var _ repository.BatchRepository = (*batchRepo)(nil)

type batchRepo struct {
	pool *pgxpool.Pool
}

func NewBatchRepo(pool *pgxpool.Pool) *batchRepo {
	return &batchRepo{pool: pool}
}

const batchColumns = `
id, status, total_links, photo_variations, text_variations,
completed_links, failed_links, pass, last_pass_id,
folder_name, drive_folder_url, error_message,
created_at, started_at, completed_at`

func (r *batchRepo) Create(ctx context.Context, tx repository.Tx, b *model.Batch) error {
	const q = `
INSERT INTO batches (id, status, total_links, photo_variations, text_variations,
                     completed_links, failed_links, pass, last_pass_id,
                     folder_name, drive_folder_url, error_message, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);`

	_, err := execSQL(ctx, r.pool, tx, q,
		b.ID, b.Status, b.TotalLinks, b.PhotoVariations, b.TextVariations,
		b.CompletedLinks, b.FailedLinks, b.Pass, b.LastPassID,
		b.FolderName, b.DriveFolderURL, b.ErrorMessage, b.CreatedAt)
	return err
}

func (r *batchRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Batch, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+batchColumns+` FROM batches WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanBatch(row)
}

func scanBatch(row pgx.Row) (*model.Batch, error) {
	var b model.Batch
	var status string
	err := row.Scan(
		&b.ID, &status, &b.TotalLinks, &b.PhotoVariations, &b.TextVariations,
		&b.CompletedLinks, &b.FailedLinks, &b.Pass, &b.LastPassID,
		&b.FolderName, &b.DriveFolderURL, &b.ErrorMessage,
		&b.CreatedAt, &b.StartedAt, &b.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	b.Status = model.BatchStatus(status)
	return &b, nil
}

// UpdateStatus is guarded in SQL so a stale coordinator can never move a batch
// backwards: only rows whose current status legally precedes the target are
// touched.
func (r *batchRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.BatchStatus, errMsg string) error {
	const q = `
UPDATE batches SET
  status = $2,
  error_message = CASE WHEN $3 <> '' THEN $3 ELSE error_message END,
  started_at = CASE WHEN $2 = 'processing' AND started_at IS NULL THEN now() ELSE started_at END,
  completed_at = CASE WHEN $2 IN ('completed', 'failed', 'cancelled') THEN now() ELSE completed_at END
WHERE id = $1 AND status = ANY($4);`

	tag, err := execSQL(ctx, r.pool, tx, q, id, status, errMsg, batchPredecessors(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBatchTerminal
	}
	return nil
}

func batchPredecessors(to model.BatchStatus) []string {
	out := make([]string, 0, 2)
	for _, from := range []model.BatchStatus{model.BatchStatusPending, model.BatchStatusProcessing} {
		if from.CanTransition(to) {
			out = append(out, string(from))
		}
	}
	return out
}

func (r *batchRepo) SetDriveFolder(ctx context.Context, tx repository.Tx, id, folderURL string) error {
	_, err := execSQL(ctx, r.pool, tx,
		`UPDATE batches SET drive_folder_url = $2 WHERE id = $1;`, id, folderURL)
	return err
}

// IncrementRollup relies on Postgres row-level locking to serialize the
// read-modify-write: concurrent sibling finalizations cannot lose updates.
func (r *batchRepo) IncrementRollup(ctx context.Context, tx repository.Tx, id string, field repository.RollupField, delta int) error {
	var q string
	switch field {
	case repository.RollupCompletedLinks:
		q = `UPDATE batches SET completed_links = completed_links + $2 WHERE id = $1;`
	case repository.RollupFailedLinks:
		q = `UPDATE batches SET failed_links = greatest(failed_links + $2, 0) WHERE id = $1;`
	default:
		return domain.ErrInvalidArgument
	}
	_, err := execSQL(ctx, r.pool, tx, q, id, delta)
	return err
}

func (r *batchRepo) BeginPass(ctx context.Context, tx repository.Tx, id, passID string, pass int) error {
	const q = `
UPDATE batches SET
  status = 'processing',
  pass = $2,
  last_pass_id = $3,
  error_message = '',
  completed_at = NULL
WHERE id = $1 AND status IN ('completed', 'failed', 'cancelled');`

	tag, err := execSQL(ctx, r.pool, tx, q, id, pass, passID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBatchNotTerminal
	}
	return nil
}

func (r *batchRepo) ListRecent(ctx context.Context, tx repository.Tx, limit int) ([]*model.Batch, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := pickRows(ctx, r.pool, tx,
		`SELECT `+batchColumns+` FROM batches ORDER BY created_at DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *batchRepo) DeleteOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time) (int, error) {
	// Links and variations go with the batch via ON DELETE CASCADE.
	const q = `
DELETE FROM batches
WHERE status IN ('completed', 'failed', 'cancelled') AND completed_at < $1;`

	tag, err := execSQL(ctx, r.pool, tx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
