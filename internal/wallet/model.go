package wallet

import "time"

// Wallet holds a user's spendable balance. Amounts are integer minor units;
// the balance is mutated only through ApplyDelta, one atomic step per event.
type Wallet struct {
	ID           int64     `db:"id" json:"id"`
	UserID       int64     `db:"user_id" json:"user_id"`
	BalanceCents int64     `db:"balance_cents" json:"balance_cents"`
	Currency     string    `db:"currency" json:"currency"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
