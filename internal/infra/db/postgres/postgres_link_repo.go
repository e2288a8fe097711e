package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"slideshow-batch/internal/domain"
	"slideshow-batch/internal/domain/model"
	"slideshow-batch/internal/domain/ports/repository"
)

var _ repository.LinkRepository = (*linkRepo)(nil)

type linkRepo struct {
	pool *pgxpool.Pool
}

func NewLinkRepo(pool *pgxpool.Pool) *linkRepo {
	return &linkRepo{pool: pool}
}

const linkColumns = `
id, batch_id, link_index, link_url, product_photo_path, product_description,
status, error_message, drive_folder_url, created_at, started_at, completed_at`

func (r *linkRepo) Create(ctx context.Context, tx repository.Tx, l *model.Link) error {
	const q = `
INSERT INTO batch_links (id, batch_id, link_index, link_url,
                         product_photo_path, product_description,
                         status, error_message, drive_folder_url, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	_, err := execSQL(ctx, r.pool, tx, q,
		l.ID, l.BatchID, l.LinkIndex, l.LinkURL,
		l.ProductPhotoPath, l.ProductDescription,
		l.Status, l.ErrorMessage, l.DriveFolderURL, l.CreatedAt)
	return err
}

func (r *linkRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Link, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+linkColumns+` FROM batch_links WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanLink(row)
}

func scanLink(row pgx.Row) (*model.Link, error) {
	var l model.Link
	var status string
	err := row.Scan(
		&l.ID, &l.BatchID, &l.LinkIndex, &l.LinkURL,
		&l.ProductPhotoPath, &l.ProductDescription,
		&status, &l.ErrorMessage, &l.DriveFolderURL,
		&l.CreatedAt, &l.StartedAt, &l.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	l.Status = model.LinkStatus(status)
	return &l, nil
}

func (r *linkRepo) ListByBatch(ctx context.Context, tx repository.Tx, batchID string) ([]*model.Link, error) {
	return r.list(ctx, tx,
		`SELECT `+linkColumns+` FROM batch_links WHERE batch_id = $1 ORDER BY link_index;`, batchID)
}

func (r *linkRepo) ListByBatchStatus(ctx context.Context, tx repository.Tx, batchID string, status model.LinkStatus) ([]*model.Link, error) {
	return r.list(ctx, tx,
		`SELECT `+linkColumns+` FROM batch_links WHERE batch_id = $1 AND status = $2 ORDER BY link_index;`,
		batchID, status)
}

func (r *linkRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Link, error) {
	rows, err := pickRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *linkRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.LinkStatus, errMsg string) error {
	const q = `
UPDATE batch_links SET
  status = $2,
  error_message = CASE WHEN $3 <> '' THEN $3 ELSE error_message END,
  started_at = CASE WHEN $2 = 'processing' AND started_at IS NULL THEN now() ELSE started_at END,
  completed_at = CASE WHEN $2 IN ('completed', 'failed') THEN now() ELSE completed_at END
WHERE id = $1;`

	_, err := execSQL(ctx, r.pool, tx, q, id, status, errMsg)
	return err
}

func (r *linkRepo) SetDriveFolder(ctx context.Context, tx repository.Tx, id, folderURL string) error {
	_, err := execSQL(ctx, r.pool, tx,
		`UPDATE batch_links SET drive_folder_url = $2 WHERE id = $1;`, id, folderURL)
	return err
}

func (r *linkRepo) CountByStatus(ctx context.Context, tx repository.Tx, batchID string) (map[model.LinkStatus]int, error) {
	rows, err := pickRows(ctx, r.pool, tx,
		`SELECT status, count(*) FROM batch_links WHERE batch_id = $1 GROUP BY status;`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.LinkStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[model.LinkStatus(status)] = n
	}
	return out, rows.Err()
}

func (r *linkRepo) CancelPending(ctx context.Context, tx repository.Tx, batchID, reason string) ([]string, error) {
	const q = `
UPDATE batch_links SET
  status = 'failed',
  error_message = $2,
  completed_at = now()
WHERE batch_id = $1 AND status = 'pending'
RETURNING id;`

	return r.collectIDs(ctx, tx, q, batchID, reason)
}

func (r *linkRepo) ResetForRetry(ctx context.Context, tx repository.Tx, batchID string) ([]string, error) {
	const q = `
UPDATE batch_links SET
  status = 'pending',
  error_message = '',
  started_at = NULL,
  completed_at = NULL
WHERE batch_id = $1 AND status = 'failed'
RETURNING id;`

	return r.collectIDs(ctx, tx, q, batchID)
}

func (r *linkRepo) collectIDs(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]string, error) {
	rows, err := pickRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
