package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"payrecon/internal/logger"
	"payrecon/internal/metrics"
	"payrecon/internal/wallet"
)

// EventInput is one verified, decoded provider event.
type EventInput struct {
	EventID    string
	CheckoutID string
	Type       EventType

	// AmountCents overrides the stored amount when positive.
	AmountCents int64

	// Raw is the exact webhook body, kept on the transaction for forensics.
	Raw json.RawMessage
}

// Result reports what processing an event did. Exactly one of the flags is
// set for non-applied outcomes; an applied event carries the updated
// transaction.
type Result struct {
	Transaction  *Transaction
	Deduplicated bool
	Ignored      bool
}

type Service interface {
	ProcessEvent(ctx context.Context, in EventInput) (*Result, error)
	Initiate(ctx context.Context, checkoutID string, userID int64, typ Type, amountCents int64) (*Transaction, error)
	Status(ctx context.Context, checkoutID string) (*Transaction, error)
}

type service struct {
	ledger   Ledger
	notifier Notifier
}

func NewService(ledger Ledger, notifier Notifier) Service {
	return &service{
		ledger:   ledger,
		notifier: notifier,
	}
}

// ProcessEvent runs the guard -> apply pipeline for one event.
//
// A missing transaction row is acknowledged, not errored: the provider would
// retry forever against a row the initiation flow never created. Every other
// failure propagates so the HTTP layer returns a retryable 500, which is safe
// because the event id dedup makes replays harmless.
func (s *service) ProcessEvent(ctx context.Context, in EventInput) (*Result, error) {
	t, err := s.ledger.FindByCheckoutID(ctx, in.CheckoutID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.Warn("webhook event for unknown checkout",
				"checkout_id", in.CheckoutID,
				"event_id", in.EventID,
				"event_type", string(in.Type),
			)
			metrics.RecordWebhookEvent(string(in.Type), "ignored")
			return &Result{Ignored: true}, nil
		}
		return nil, err
	}

	// Fast-path dedup; the authoritative recheck happens under the row lock
	// in ApplyEvent.
	if t.ProviderData.Contains(in.EventID) {
		metrics.RecordWebhookEvent(string(in.Type), "deduplicated")
		return &Result{Transaction: t, Deduplicated: true}, nil
	}

	// The state machine runs inside ApplyEvent against the row read under the
	// lock, never against the snapshot above: a stale status here must not
	// decide whether money moves.
	updated, d, err := s.ledger.ApplyEvent(ctx, in.CheckoutID, in.EventID, in.Type, in.AmountCents, in.Raw)
	if err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			metrics.RecordWebhookEvent(string(in.Type), "deduplicated")
			return &Result{Transaction: t, Deduplicated: true}, nil
		}
		if errors.Is(err, wallet.ErrInsufficientBalance) {
			metrics.RecordInsufficientHold()
			metrics.RecordWebhookEvent(string(in.Type), "rejected")
			return nil, err
		}
		metrics.RecordWebhookEvent(string(in.Type), "error")
		return nil, err
	}

	metrics.RecordWebhookEvent(string(in.Type), "applied")
	if d.DeltaCents != 0 {
		metrics.RecordBalanceMutation(d.DeltaCents)
		metrics.SetUserBalance(strconv.FormatInt(updated.UserID, 10), updated.BalanceAfter)
	}

	logger.Info("webhook event applied",
		"checkout_id", updated.CheckoutID,
		"event_id", in.EventID,
		"event_type", string(in.Type),
		"status", string(updated.Status),
		"delta_cents", d.DeltaCents,
	)

	if !d.NoOp {
		if err := s.notifier.Publish(ctx, updated.CheckoutID, string(updated.Status), string(in.Type)); err != nil {
			logger.Warn("failed to publish status update",
				"checkout_id", updated.CheckoutID,
				"error", err,
			)
			metrics.RecordNotifyFailure()
		}
	}

	return &Result{Transaction: updated}, nil
}

func (s *service) Initiate(ctx context.Context, checkoutID string, userID int64, typ Type, amountCents int64) (*Transaction, error) {
	t, err := s.ledger.Create(ctx, checkoutID, userID, typ, amountCents)
	if err != nil {
		return nil, err
	}
	metrics.RecordCheckoutInitiated(string(typ))
	logger.Info("checkout initiated",
		"checkout_id", t.CheckoutID,
		"user_id", t.UserID,
		"type", string(t.Type),
		"amount_cents", t.AmountCents,
	)
	return t, nil
}

func (s *service) Status(ctx context.Context, checkoutID string) (*Transaction, error) {
	return s.ledger.FindByCheckoutID(ctx, checkoutID)
}
