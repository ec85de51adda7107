package wallet

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type Reconciler interface {
	GetOrCreate(ctx context.Context, userID int64) (*Wallet, error)
	ApplyDelta(ctx context.Context, tx *sqlx.Tx, userID int64, deltaCents int64, mode DeltaMode) (int64, error)
}
