package checkout

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"payrecon/internal/wallet"
)

var (
	ErrNotFound       = errors.New("checkout transaction not found")
	ErrCheckoutExists = errors.New("checkout already exists")
	ErrDuplicateEvent = errors.New("event already processed")
)

const pqUniqueViolation = "23505"

type Repository struct {
	db      *sqlx.DB
	wallets wallet.Reconciler
}

func NewRepository(db *sqlx.DB, wallets wallet.Reconciler) *Repository {
	return &Repository{db: db, wallets: wallets}
}

func (r *Repository) FindByCheckoutID(ctx context.Context, checkoutID string) (*Transaction, error) {
	t := &Transaction{}
	err := r.db.GetContext(ctx, t,
		`SELECT * FROM checkout_transactions WHERE checkout_id = $1`,
		checkoutID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// Create inserts the pending row the initiation flow owns. Webhook handling
// never creates rows; a missing row means the initiating flow has not run.
// The user's wallet is created here too, so the first hold debit races
// against an existing row instead of an insert.
func (r *Repository) Create(ctx context.Context, checkoutID string, userID int64, typ Type, amountCents int64) (*Transaction, error) {
	if _, err := r.wallets.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}

	t := &Transaction{}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO checkout_transactions (checkout_id, user_id, type, amount_cents, status, provider_data)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, checkout_id, user_id, type, amount_cents, status, balance_after, failure_reason, provider_data, created_at, updated_at`,
		checkoutID, userID, typ, amountCents, StatusPending, ProviderData{ProcessedEvents: []string{}},
	).StructScan(t)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return nil, ErrCheckoutExists
		}
		return nil, err
	}
	return t, nil
}

// ApplyEvent commits one provider event: the balance delta and the ledger
// update (status, balance snapshot, idempotency append) land in a single
// database transaction, so a crash cannot separate them.
//
// The checkout row is locked first, which serializes distinct events for the
// same checkout and makes the in-lock duplicate recheck authoritative even
// when the provider redelivers an event concurrently with itself. Decide runs
// on the locked row for the same reason: two in-flight events must not both
// act on the state one of them is about to change. The decision actually
// applied is returned alongside the updated transaction.
func (r *Repository) ApplyEvent(ctx context.Context, checkoutID, eventID string, event EventType, overrideCents int64, raw json.RawMessage) (*Transaction, Decision, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, Decision{}, err
	}
	defer tx.Rollback()

	t := &Transaction{}
	err = tx.QueryRowxContext(ctx,
		`SELECT id, checkout_id, user_id, type, amount_cents, status, balance_after, failure_reason, provider_data, created_at, updated_at
		 FROM checkout_transactions
		 WHERE checkout_id = $1
		 FOR UPDATE`,
		checkoutID,
	).StructScan(t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, Decision{}, ErrNotFound
		}
		return nil, Decision{}, err
	}

	if t.ProviderData.Contains(eventID) {
		return nil, Decision{}, ErrDuplicateEvent
	}

	d, err := Decide(t, event, overrideCents)
	if err != nil {
		return nil, Decision{}, err
	}

	if d.DeltaCents != 0 {
		mode := wallet.ClampToZero
		if d.EnforceFunds {
			mode = wallet.RejectInsufficient
		}
		newBalance, err := r.wallets.ApplyDelta(ctx, tx, t.UserID, d.DeltaCents, mode)
		if err != nil {
			return nil, Decision{}, err
		}
		t.BalanceAfter = newBalance
	}

	if !d.NoOp {
		t.Status = d.NextStatus
		if d.FailureReason != "" {
			t.FailureReason = d.FailureReason
		}
	}
	t.ProviderData.ProcessedEvents = append(t.ProviderData.ProcessedEvents, eventID)
	t.ProviderData.LastEvent = raw

	err = tx.QueryRowxContext(ctx,
		`UPDATE checkout_transactions
		 SET status = $1, balance_after = $2, failure_reason = $3, provider_data = $4, updated_at = NOW()
		 WHERE id = $5
		 RETURNING updated_at`,
		t.Status, t.BalanceAfter, t.FailureReason, t.ProviderData, t.ID,
	).Scan(&t.UpdatedAt)
	if err != nil {
		return nil, Decision{}, err
	}

	if err := tx.Commit(); err != nil {
		return nil, Decision{}, err
	}

	return t, d, nil
}
