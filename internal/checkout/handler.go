package checkout

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"payrecon/internal/api"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// @Summary      Create a pending checkout
// @Description  Registers a provider-issued checkout id before any webhook can arrive
// @Tags         checkouts
// @Accept       json
// @Produce      json
// @Param        request body InitiateRequest true "Checkout to register"
// @Success      201 {object} Transaction
// @Failure      400 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /checkouts [post]
func (h *Handler) InitiateCheckout(c *gin.Context) {
	var req InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}

	typ, ok := ParseType(req.Type)
	if !ok {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "type must be deposit or withdrawal"})
		return
	}

	t, err := h.service.Initiate(c.Request.Context(), req.CheckoutID, req.UserID, typ, req.AmountCents)
	if err != nil {
		if errors.Is(err, ErrCheckoutExists) {
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: "checkout already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to create checkout"})
		return
	}

	c.JSON(http.StatusCreated, t)
}

// @Summary      Checkout status
// @Description  Read path for the front end to poll a checkout's current state
// @Tags         checkouts
// @Produce      json
// @Param        checkoutID path string true "Provider checkout id"
// @Success      200 {object} StatusResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /checkouts/{checkoutID}/status [get]
func (h *Handler) GetStatus(c *gin.Context) {
	checkoutID := c.Param("checkoutID")

	t, err := h.service.Status(c.Request.Context(), checkoutID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "checkout not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load checkout"})
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		CheckoutID:  t.CheckoutID,
		Status:      t.Status,
		Type:        t.Type,
		AmountCents: t.AmountCents,
		UpdatedAt:   t.UpdatedAt,
	})
}
