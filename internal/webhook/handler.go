package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"payrecon/internal/api"
	"payrecon/internal/checkout"
	"payrecon/internal/logger"
	"payrecon/internal/metrics"
	"payrecon/internal/wallet"
)

const MaxRequestBodySize = 1 << 20 // 1 MB

type Handler struct {
	service checkout.Service
	secret  string
}

func NewHandler(service checkout.Service, secret string) *Handler {
	if secret == "" {
		logger.Warn("webhook signature verification disabled: no secret configured")
	}
	return &Handler{service: service, secret: secret}
}

// @Summary      Payment provider webhook
// @Description  Receives checkout lifecycle events and applies exactly-once balance mutations
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        soap-webhook-signature header string false "t=<ts>,v1=<hex hmac-sha256>"
// @Success      200 {object} Ack
// @Failure      401 {object} api.ErrorResponse
// @Failure      402 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /webhooks/soap [post]
func (h *Handler) HandleWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestBodySize)
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "failed to read request body"})
		return
	}

	if err := VerifySignature(h.secret, c.GetHeader(SignatureHeader), raw); err != nil {
		logger.Warn("webhook signature rejected", "error", err, "remote_addr", c.ClientIP())
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "invalid webhook signature"})
		return
	}

	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid webhook payload"})
		return
	}
	if evt.EventID == "" || evt.Data.ID == "" {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "event_id and data.id are required"})
		return
	}

	eventType, ok := checkout.ParseEventType(evt.Type)
	if !ok {
		// A provider rollout of a new event kind must not put known
		// checkouts into an infinite retry loop.
		logger.Warn("unhandled webhook event type",
			"event_type", evt.Type,
			"event_id", evt.EventID,
			"checkout_id", evt.Data.ID,
		)
		metrics.RecordWebhookEvent(evt.Type, "ignored")
		c.JSON(http.StatusOK, Ack{Received: true, Ignored: true})
		return
	}

	var overrideCents int64
	if evt.Data.Charge != nil {
		overrideCents = evt.Data.Charge.AmountCents
	}

	res, err := h.service.ProcessEvent(c.Request.Context(), checkout.EventInput{
		EventID:     evt.EventID,
		CheckoutID:  evt.Data.ID,
		Type:        eventType,
		AmountCents: overrideCents,
		Raw:         raw,
	})
	if err != nil {
		if errors.Is(err, wallet.ErrInsufficientBalance) {
			c.JSON(http.StatusPaymentRequired, api.ErrorResponse{Error: "Insufficient balance"})
			return
		}
		logger.Error("webhook processing failed",
			"event_id", evt.EventID,
			"checkout_id", evt.Data.ID,
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to process event"})
		return
	}

	switch {
	case res.Ignored:
		c.JSON(http.StatusOK, Ack{Received: true, Ignored: true})
	case res.Deduplicated:
		c.JSON(http.StatusOK, Ack{Received: true, Deduplicated: true})
	default:
		c.JSON(http.StatusOK, Ack{Received: true, Status: string(res.Transaction.Status)})
	}
}
