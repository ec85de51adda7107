package checkout

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a checkout attempt. Transitions are
// decided exclusively by Decide.
type Status string

const (
	StatusPending          Status = "pending"
	StatusHeld             Status = "held"
	StatusSucceeded        Status = "succeeded"
	StatusFailed           Status = "failed"
	StatusExpired          Status = "expired"
	StatusTerminallyFailed Status = "terminally_failed"
	StatusReturned         Status = "returned"
	StatusVoided           Status = "voided"
)

type Type string

const (
	TypeDeposit    Type = "deposit"
	TypeWithdrawal Type = "withdrawal"
)

func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case TypeDeposit, TypeWithdrawal:
		return Type(s), true
	}
	return "", false
}

// ProviderData is the per-checkout idempotency ledger plus the last raw
// provider payload. ProcessedEvents is append-only and is the sole source
// of truth for "has this event already been applied".
type ProviderData struct {
	ProcessedEvents []string        `json:"processed_events"`
	LastEvent       json.RawMessage `json:"last_event,omitempty"`
}

func (pd ProviderData) Contains(eventID string) bool {
	for _, id := range pd.ProcessedEvents {
		if id == eventID {
			return true
		}
	}
	return false
}

// Value implements driver.Valuer so ProviderData is stored as JSONB.
func (pd ProviderData) Value() (driver.Value, error) {
	if pd.ProcessedEvents == nil {
		pd.ProcessedEvents = []string{}
	}
	return json.Marshal(pd)
}

// Scan implements sql.Scanner.
func (pd *ProviderData) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, pd)
	case string:
		return json.Unmarshal([]byte(v), pd)
	case nil:
		*pd = ProviderData{ProcessedEvents: []string{}}
		return nil
	}
	return fmt.Errorf("unsupported provider_data source type %T", src)
}

// Transaction is one checkout attempt with the payment provider. Exactly one
// row exists per checkout_id; rows are never deleted. BalanceAfter is a
// diagnostic snapshot of the balance after the last applied mutation, not
// the authoritative balance.
type Transaction struct {
	ID            int64        `db:"id" json:"id"`
	CheckoutID    string       `db:"checkout_id" json:"checkout_id"`
	UserID        int64        `db:"user_id" json:"user_id"`
	Type          Type         `db:"type" json:"type"`
	AmountCents   int64        `db:"amount_cents" json:"amount_cents"`
	Status        Status       `db:"status" json:"status"`
	BalanceAfter  int64        `db:"balance_after" json:"balance_after"`
	FailureReason string       `db:"failure_reason" json:"failure_reason,omitempty"`
	ProviderData  ProviderData `db:"provider_data" json:"provider_data"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

type InitiateRequest struct {
	CheckoutID  string `json:"checkout_id" binding:"required"`
	UserID      int64  `json:"user_id" binding:"required,gt=0"`
	Type        string `json:"type" binding:"required,oneof=deposit withdrawal"`
	AmountCents int64  `json:"amount_cents" binding:"required,gt=0"`
}

type StatusResponse struct {
	CheckoutID  string    `json:"checkout_id"`
	Status      Status    `json:"status" example:"held"`
	Type        Type      `json:"type" example:"withdrawal"`
	AmountCents int64     `json:"amount_cents" example:"3000"`
	UpdatedAt   time.Time `json:"updated_at"`
}
