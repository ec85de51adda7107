package checkout

import (
	"errors"
	"fmt"
)

// EventType is the closed set of provider webhook event kinds. Decide
// switches over every member; an unlisted type fails ParseEventType before
// it reaches the state machine.
type EventType string

const (
	EventPending          EventType = "checkout.pending"
	EventHold             EventType = "checkout.hold"
	EventReleaseHold      EventType = "checkout.release_hold"
	EventSucceeded        EventType = "checkout.succeeded"
	EventReturned         EventType = "checkout.returned"
	EventVoided           EventType = "checkout.voided"
	EventFailed           EventType = "checkout.failed"
	EventExpired          EventType = "checkout.expired"
	EventTerminallyFailed EventType = "checkout.terminally_failed"
)

func ParseEventType(s string) (EventType, bool) {
	switch EventType(s) {
	case EventPending, EventHold, EventReleaseHold, EventSucceeded,
		EventReturned, EventVoided, EventFailed, EventExpired,
		EventTerminallyFailed:
		return EventType(s), true
	}
	return "", false
}

var ErrUnknownEventType = errors.New("unknown event type")

// Decision is the outcome of running one provider event against the current
// transaction state. DeltaCents is the signed balance change; zero means the
// status may still move but no money does.
type Decision struct {
	NextStatus Status
	DeltaCents int64

	// EnforceFunds marks a debit that must be rejected rather than clamped
	// when the balance cannot cover it. Only hold debits set this.
	EnforceFunds bool

	FailureReason string

	// NoOp acknowledges the event without changing status or balance. The
	// event id is still recorded for idempotency.
	NoOp bool
}

// Decide is the checkout state machine: given the stored transaction and an
// incoming event, it returns the next status and the balance delta. It is a
// pure function; nothing here touches storage.
//
// Withdrawals are debited at hold time so the user cannot spend the same
// funds elsewhere while the provider completes the transfer out-of-band;
// release_hold is the compensating refund if the withdrawal falls through.
// overrideCents, when positive, replaces the stored amount for this event
// (the provider may adjust the charge).
func Decide(t *Transaction, event EventType, overrideCents int64) (Decision, error) {
	amount := t.AmountCents
	if overrideCents > 0 {
		amount = overrideCents
	}

	// Once a checkout has been reversed, every late or re-ordered event is
	// acknowledged without effect. Without this, a redelivered `succeeded`
	// arriving after `returned` would re-apply a credit.
	if t.Status == StatusReturned || t.Status == StatusVoided {
		return Decision{NoOp: true}, nil
	}

	switch event {
	case EventHold:
		if t.Type != TypeWithdrawal || t.Status == StatusHeld {
			return Decision{NoOp: true}, nil
		}
		return Decision{
			NextStatus:   StatusHeld,
			DeltaCents:   -amount,
			EnforceFunds: true,
		}, nil

	case EventReleaseHold:
		d := Decision{
			NextStatus:    StatusFailed,
			FailureReason: "hold released",
		}
		// Refund only if the hold actually debited.
		if t.Status == StatusHeld {
			d.DeltaCents = amount
		}
		return d, nil

	case EventSucceeded:
		if t.Status == StatusSucceeded {
			return Decision{NoOp: true}, nil
		}
		d := Decision{NextStatus: StatusSucceeded}
		switch t.Type {
		case TypeDeposit:
			d.DeltaCents = amount
		case TypeWithdrawal:
			// A held withdrawal was already debited at hold time.
			if t.Status != StatusHeld {
				d.DeltaCents = -amount
			}
		}
		return d, nil

	case EventReturned:
		if t.Status != StatusSucceeded {
			return Decision{NoOp: true}, nil
		}
		d := Decision{NextStatus: StatusReturned}
		if t.Type == TypeDeposit {
			d.DeltaCents = -amount
		} else {
			d.DeltaCents = amount
		}
		return d, nil

	case EventVoided:
		if t.Status != StatusSucceeded || t.Type != TypeDeposit {
			return Decision{NoOp: true}, nil
		}
		return Decision{
			NextStatus: StatusVoided,
			DeltaCents: -amount,
		}, nil

	case EventFailed:
		return Decision{NextStatus: StatusFailed, FailureReason: "checkout failed"}, nil

	case EventExpired:
		return Decision{NextStatus: StatusExpired, FailureReason: "checkout expired"}, nil

	case EventTerminallyFailed:
		return Decision{NextStatus: StatusTerminallyFailed, FailureReason: "checkout terminally failed"}, nil

	case EventPending:
		if t.Status == StatusPending {
			return Decision{NoOp: true}, nil
		}
		return Decision{NextStatus: StatusPending}, nil
	}

	return Decision{}, fmt.Errorf("%w: %q", ErrUnknownEventType, event)
}
