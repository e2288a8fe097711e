package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

// EnsureSchema creates the batch tables on startup when they do not exist yet.
// Statements are idempotent, so running several app instances against the same
// database is safe.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS batches (
			id               TEXT PRIMARY KEY,
			status           TEXT NOT NULL DEFAULT 'pending',
			total_links      INT  NOT NULL DEFAULT 0,
			photo_variations INT  NOT NULL DEFAULT 1,
			text_variations  INT  NOT NULL DEFAULT 1,
			completed_links  INT  NOT NULL DEFAULT 0,
			failed_links     INT  NOT NULL DEFAULT 0,
			pass             INT  NOT NULL DEFAULT 1,
			last_pass_id     TEXT NOT NULL DEFAULT '',
			folder_name      TEXT NOT NULL DEFAULT '',
			drive_folder_url TEXT NOT NULL DEFAULT '',
			error_message    TEXT NOT NULL DEFAULT '',
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			started_at       TIMESTAMPTZ,
			completed_at     TIMESTAMPTZ
		);`,
		`CREATE TABLE IF NOT EXISTS batch_links (
			id                  TEXT PRIMARY KEY,
			batch_id            TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
			link_index          INT  NOT NULL,
			link_url            TEXT NOT NULL,
			product_photo_path  TEXT NOT NULL DEFAULT '',
			product_description TEXT NOT NULL DEFAULT '',
			status              TEXT NOT NULL DEFAULT 'pending',
			error_message       TEXT NOT NULL DEFAULT '',
			drive_folder_url    TEXT NOT NULL DEFAULT '',
			created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
			started_at          TIMESTAMPTZ,
			completed_at        TIMESTAMPTZ
		);`,
		`CREATE TABLE IF NOT EXISTS batch_variations (
			id            TEXT PRIMARY KEY,
			link_id       TEXT NOT NULL REFERENCES batch_links(id) ON DELETE CASCADE,
			variation_num INT  NOT NULL,
			pass          INT  NOT NULL DEFAULT 1,
			status        TEXT NOT NULL DEFAULT 'pending',
			retries       INT  NOT NULL DEFAULT 0,
			output_name   TEXT NOT NULL DEFAULT '',
			drive_url     TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			started_at    TIMESTAMPTZ,
			completed_at  TIMESTAMPTZ
		);`,
		`CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status);`,
		`CREATE INDEX IF NOT EXISTS idx_batch_links_batch ON batch_links(batch_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_batch_variations_link ON batch_variations(link_id, pass);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
