package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payrecon_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payrecon_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payrecon_webhook_events_total",
			Help: "Total number of provider webhook events by outcome",
		},
		[]string{"event_type", "outcome"},
	)

	BalanceMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payrecon_balance_mutations_total",
			Help: "Total number of applied balance mutations",
		},
		[]string{"direction"},
	)

	InsufficientHoldsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payrecon_insufficient_holds_total",
			Help: "Total number of hold events rejected for insufficient balance",
		},
	)

	NotifyFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payrecon_notify_failures_total",
			Help: "Total number of failed realtime status notifications",
		},
	)

	CheckoutsInitiatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payrecon_checkouts_initiated_total",
			Help: "Total number of checkouts created by the initiation flow",
		},
		[]string{"type"},
	)

	UserBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "payrecon_user_balance_cents",
			Help: "Last observed user balance in cents",
		},
		[]string{"user_id"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordWebhookEvent counts a processed provider event. Outcome is one of
// applied, deduplicated, ignored, rejected, error.
func RecordWebhookEvent(eventType, outcome string) {
	WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func RecordBalanceMutation(deltaCents int64) {
	direction := "credit"
	if deltaCents < 0 {
		direction = "debit"
	}
	BalanceMutationsTotal.WithLabelValues(direction).Inc()
}

func RecordInsufficientHold() {
	InsufficientHoldsTotal.Inc()
}

func RecordNotifyFailure() {
	NotifyFailuresTotal.Inc()
}

func RecordCheckoutInitiated(checkoutType string) {
	CheckoutsInitiatedTotal.WithLabelValues(checkoutType).Inc()
}

func SetUserBalance(userID string, balanceCents int64) {
	UserBalance.WithLabelValues(userID).Set(float64(balanceCents))
}
