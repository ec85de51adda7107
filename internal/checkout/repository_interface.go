package checkout

import (
	"context"
	"encoding/json"
)

// Ledger is the durable record of checkout attempts.
type Ledger interface {
	FindByCheckoutID(ctx context.Context, checkoutID string) (*Transaction, error)
	Create(ctx context.Context, checkoutID string, userID int64, typ Type, amountCents int64) (*Transaction, error)
	ApplyEvent(ctx context.Context, checkoutID, eventID string, event EventType, overrideCents int64, raw json.RawMessage) (*Transaction, Decision, error)
}

// Notifier pushes checkout status changes to the front end. Best-effort:
// callers must never fail event processing on a notify error.
type Notifier interface {
	Publish(ctx context.Context, checkoutID, status, eventType string) error
}
