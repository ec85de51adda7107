package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"payrecon/internal/logger"
)

// StatusUpdate is pushed to the front end after every applied transition.
type StatusUpdate struct {
	CheckoutID string `json:"checkout_id"`
	Status     string `json:"status"`
	EventType  string `json:"event_type"`
}

// Service publishes checkout status changes on a per-checkout Redis channel.
// The live-update socket layer subscribes on the other side. Delivery is
// best-effort; callers must not fail the webhook response on an error here.
type Service struct {
	redis *redis.Client
}

func New(redisAddr string) *Service {
	return &Service{
		redis: redis.NewClient(&redis.Options{
			Addr: redisAddr,
		}),
	}
}

// NewWithClient is used by tests to inject a mock client.
func NewWithClient(client *redis.Client) *Service {
	return &Service{redis: client}
}

func (s *Service) Close() error {
	return s.redis.Close()
}

func (s *Service) Publish(ctx context.Context, checkoutID, status, eventType string) error {
	data, err := json.Marshal(StatusUpdate{
		CheckoutID: checkoutID,
		Status:     status,
		EventType:  eventType,
	})
	if err != nil {
		return err
	}

	if err := s.redis.Publish(ctx, channel(checkoutID), data).Err(); err != nil {
		logger.Errorf("Failed to publish status update for %s: %v", checkoutID, err)
		return err
	}

	logger.Debug("status update published", "checkout_id", checkoutID, "status", status)
	return nil
}

func channel(checkoutID string) string {
	return "checkout:" + checkoutID
}
