package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx carries an optional transaction handle through repository calls. The
// concrete type is infra-defined (pgx.Tx for Postgres); repositories MUST
// gracefully accept nil (non-transactional path).
type Tx interface{}

// TransactionManager executes fn inside one database transaction, handing the
// tx handle down so the progress snapshot and multi-table writes see a single
// consistent view. fn returning an error rolls the transaction back.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
