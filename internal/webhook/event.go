package webhook

// Event mirrors the provider's webhook payload. Only event_id, type and
// data.id are required; the rest is informational or an override.
type Event struct {
	EventID string    `json:"event_id"`
	Type    string    `json:"type"`
	Data    EventData `json:"data"`
}

type EventData struct {
	ID       string    `json:"id"`   // provider checkout id
	Type     string    `json:"type"` // deposit|withdrawal, informational
	Charge   *Charge   `json:"charge,omitempty"`
	Customer *Customer `json:"customer,omitempty"`
}

type Charge struct {
	AmountCents     int64  `json:"amount_cents"`
	TransactionType string `json:"transaction_type"` // credit|debit, informational
}

type Customer struct {
	ID string `json:"id"`
}

// Ack is the webhook acknowledgement body. The provider only inspects the
// status code; the flags exist for operators reading delivery logs.
type Ack struct {
	Received     bool   `json:"received"`
	Status       string `json:"status,omitempty"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
	Ignored      bool   `json:"ignored,omitempty"`
}
