package wallet

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// DeltaMode controls what happens when a debit would take the balance
// below zero.
type DeltaMode int

const (
	// ClampToZero floors the resulting balance at zero. Used for
	// compensating debits, where out-of-order delivery can otherwise
	// produce a negative balance.
	ClampToZero DeltaMode = iota

	// RejectInsufficient fails the mutation with ErrInsufficientBalance.
	// Used for hold debits, which must be answered synchronously.
	RejectInsufficient
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetOrCreate(ctx context.Context, userID int64) (*Wallet, error) {
	w := &Wallet{}
	err := r.db.GetContext(ctx, w, `SELECT * FROM wallets WHERE user_id = $1`, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO wallets (user_id)
		 VALUES ($1)
		 RETURNING id, user_id, balance_cents, currency, created_at, updated_at`,
		userID,
	).StructScan(w)

	if err != nil {
		return nil, err
	}

	return w, nil
}

// ApplyDelta applies a signed balance change inside the caller's database
// transaction. The wallet row is locked for the duration, so two events for
// the same user cannot both read a stale balance. Returns the new balance.
func (r *Repository) ApplyDelta(ctx context.Context, tx *sqlx.Tx, userID int64, deltaCents int64, mode DeltaMode) (int64, error) {
	var w Wallet
	err := tx.QueryRowxContext(ctx,
		`SELECT id, user_id, balance_cents, currency, created_at, updated_at
		 FROM wallets
		 WHERE user_id = $1
		 FOR UPDATE`,
		userID,
	).StructScan(&w)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = tx.QueryRowxContext(ctx,
				`INSERT INTO wallets (user_id)
				 VALUES ($1)
				 RETURNING id, user_id, balance_cents, currency, created_at, updated_at`,
				userID,
			).StructScan(&w)
			if err != nil {
				return 0, err
			}
		} else {
			return 0, err
		}
	}

	newBalance := w.BalanceCents + deltaCents
	if newBalance < 0 {
		if mode == RejectInsufficient {
			return 0, ErrInsufficientBalance
		}
		newBalance = 0
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE wallets
		 SET balance_cents = $1, updated_at = NOW()
		 WHERE id = $2`,
		newBalance, w.ID,
	)
	if err != nil {
		return 0, err
	}

	return newBalance, nil
}
