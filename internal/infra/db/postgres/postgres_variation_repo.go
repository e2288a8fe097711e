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

var _ repository.VariationRepository = (*variationRepo)(nil)

type variationRepo struct {
	pool *pgxpool.Pool
}

func NewVariationRepo(pool *pgxpool.Pool) *variationRepo {
	return &variationRepo{pool: pool}
}

const variationColumns = `
id, link_id, variation_num, pass, status, retries,
output_name, drive_url, error_message, created_at, started_at, completed_at`

func (r *variationRepo) Create(ctx context.Context, tx repository.Tx, v *model.Variation) error {
	const q = `
INSERT INTO batch_variations (id, link_id, variation_num, pass, status, retries,
                              output_name, drive_url, error_message, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	_, err := execSQL(ctx, r.pool, tx, q,
		v.ID, v.LinkID, v.VariationNum, v.Pass, v.Status, v.Retries,
		v.OutputName, v.DriveURL, v.ErrorMessage, v.CreatedAt)
	return err
}

func (r *variationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Variation, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT `+variationColumns+` FROM batch_variations WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanVariation(row)
}

func scanVariation(row pgx.Row) (*model.Variation, error) {
	var v model.Variation
	var status string
	err := row.Scan(
		&v.ID, &v.LinkID, &v.VariationNum, &v.Pass, &status, &v.Retries,
		&v.OutputName, &v.DriveURL, &v.ErrorMessage,
		&v.CreatedAt, &v.StartedAt, &v.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	v.Status = model.VariationStatus(status)
	return &v, nil
}

func (r *variationRepo) ListByLink(ctx context.Context, tx repository.Tx, linkID string, pass int) ([]*model.Variation, error) {
	rows, err := pickRows(ctx, r.pool, tx,
		`SELECT `+variationColumns+` FROM batch_variations WHERE link_id = $1 AND pass = $2 ORDER BY variation_num;`,
		linkID, pass)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Variation
	for rows.Next() {
		v, err := scanVariation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *variationRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.VariationStatus, errMsg string) error {
	const q = `
UPDATE batch_variations SET
  status = $2,
  error_message = CASE WHEN $3 <> '' THEN $3 ELSE error_message END,
  started_at = CASE WHEN $2 = 'processing' AND started_at IS NULL THEN now() ELSE started_at END,
  completed_at = CASE WHEN $2 IN ('completed', 'failed') THEN now() ELSE completed_at END
WHERE id = $1;`

	_, err := execSQL(ctx, r.pool, tx, q, id, status, errMsg)
	return err
}

func (r *variationRepo) SetArtifact(ctx context.Context, tx repository.Tx, id, outputName, driveURL string) error {
	_, err := execSQL(ctx, r.pool, tx,
		`UPDATE batch_variations SET output_name = $2, drive_url = $3 WHERE id = $1;`,
		id, outputName, driveURL)
	return err
}

func (r *variationRepo) IncrementRetries(ctx context.Context, tx repository.Tx, id string) error {
	_, err := execSQL(ctx, r.pool, tx,
		`UPDATE batch_variations SET retries = retries + 1 WHERE id = $1;`, id)
	return err
}

func (r *variationRepo) CountByStatus(ctx context.Context, tx repository.Tx, batchID string) (map[model.VariationStatus]int, error) {
	const q = `
SELECT v.status, count(*)
FROM batch_variations v
JOIN batch_links l ON l.id = v.link_id
WHERE l.batch_id = $1
GROUP BY v.status;`

	rows, err := pickRows(ctx, r.pool, tx, q, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.VariationStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[model.VariationStatus(status)] = n
	}
	return out, rows.Err()
}

func (r *variationRepo) CancelPendingForLinks(ctx context.Context, tx repository.Tx, linkIDs []string, reason string) (int, error) {
	if len(linkIDs) == 0 {
		return 0, nil
	}
	const q = `
UPDATE batch_variations SET
  status = 'failed',
  error_message = $2,
  completed_at = now()
WHERE link_id = ANY($1) AND status = 'pending';`

	tag, err := execSQL(ctx, r.pool, tx, q, linkIDs, reason)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
