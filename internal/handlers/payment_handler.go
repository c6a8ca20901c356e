package handlers

import (
	"errors"
	"io"
	"net/http"

	"spkr/internal/payment"
	"spkr/internal/submission"
	"spkr/pkg/logger"

	"github.com/gin-gonic/gin"
)

const maxWebhookBodyBytes = 1 << 20

type PaymentHandler struct {
	service payment.Service
	logger  *logger.Logger
}

func NewPaymentHandler(service payment.Service, logger *logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		logger:  logger,
	}
}

// CreateCheckout godoc
// @Summary      Create a checkout session
// @Description  Open a hosted checkout session for a promoted submission. Returns the payment page URL. Image posts cost 200 cents, video posts 500 cents by default.
// @Tags         payments
// @Produce      json
// @Param        id path string true "Submission ID"
// @Success      201  {object}  payment.CheckoutInfo
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /submissions/{id}/checkout [post]
func (h *PaymentHandler) CreateCheckout(c *gin.Context) {
	info, err := h.service.CreateCheckout(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, submission.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found"})
		case errors.Is(err, payment.ErrNotPromoted):
			c.JSON(http.StatusConflict, gin.H{"error": "Only promoted submissions require payment"})
		case errors.Is(err, payment.ErrAlreadyPaid):
			c.JSON(http.StatusConflict, gin.H{"error": "Submission is already paid for"})
		default:
			h.logger.Error("Failed to create checkout: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create checkout session"})
		}
		return
	}
	c.JSON(http.StatusCreated, info)
}

// GetPayment godoc
// @Summary      Get payment for a submission
// @Description  Get the payment record attached to a submission
// @Tags         payments
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Submission ID"
// @Success      200  {object}  models.Payment
// @Failure      404  {object}  map[string]string
// @Router       /admin/submissions/{id}/payment [get]
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	p, err := h.service.GetBySubmissionID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// StripeWebhook godoc
// @Summary      Stripe webhook endpoint
// @Description  Receives provider events. Signature is verified against the webhook secret; replayed event ids are acknowledged without reprocessing.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /webhooks/stripe [post]
func (h *PaymentHandler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	err = h.service.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
			return
		}
		h.logger.Error("Failed to process stripe webhook: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process event"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
