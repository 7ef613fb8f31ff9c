package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	appbilling "github.com/inmobiliaria/backend/internal/application/billing"
	"github.com/inmobiliaria/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// defaultWebhookPayloadSize is used when no limit is configured (gateway events are small)
const defaultWebhookPayloadSize = 65536

// WebhookProcessor ingests one signed gateway notification
type WebhookProcessor interface {
	ProcessWebhookWithRetry(ctx context.Context, payload []byte, signature string) (*appbilling.WebhookResult, error)
}

// StripeWebhookHandler handles the gateway webhook endpoint.
// The endpoint is called by Stripe and authenticates through the signature header only.
type StripeWebhookHandler struct {
	BaseHandler
	processor  WebhookProcessor
	maxPayload int64
}

// NewStripeWebhookHandler creates a new StripeWebhookHandler
func NewStripeWebhookHandler(processor WebhookProcessor, maxPayload int64) *StripeWebhookHandler {
	if maxPayload <= 0 {
		maxPayload = defaultWebhookPayloadSize
	}
	return &StripeWebhookHandler{
		processor:  processor,
		maxPayload: maxPayload,
	}
}

// StripeWebhookResponse acknowledges a webhook delivery
//
//	@Description	Stripe webhook acknowledgement
type StripeWebhookResponse struct {
	Received  bool   `json:"received" example:"true"`
	EventID   string `json:"event_id,omitempty" example:"evt_1234567890"`
	EventType string `json:"event_type,omitempty" example:"payment_intent.succeeded"`
	Duplicate bool   `json:"duplicate"`
}

// StripeWebhookError is the body Stripe records for a rejected delivery
//
//	@Description	Stripe webhook error
type StripeWebhookError struct {
	Error string `json:"error" example:"Webhook Error: invalid webhook signature"`
}

func webhookError(c *gin.Context, status int, message string) {
	c.JSON(status, StripeWebhookError{Error: "Webhook Error: " + message})
}

// HandleStripeWebhook godoc
//
//	@ID				handleStripeWebhook
//	@Summary		Handle Stripe webhook
//	@Description	Verify and apply a payment gateway event. Redeliveries of a processed event are acknowledged as duplicates.
//	@Tags			webhooks
//	@Accept			json
//	@Produce		json
//	@Param			Stripe-Signature	header		string					true	"Stripe webhook signature"
//	@Success		200					{object}	StripeWebhookResponse	"Event processed or already processed"
//	@Failure		400					{object}	StripeWebhookError		"Invalid signature or malformed event"
//	@Failure		413					{object}	StripeWebhookError		"Payload too large"
//	@Failure		500					{object}	StripeWebhookError		"Processing failed, Stripe will redeliver"
//	@Router			/webhooks/stripe [post]
func (h *StripeWebhookHandler) HandleStripeWebhook(c *gin.Context) {
	// The signature covers the raw bytes, so the body is read before any decoding
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxPayload+1))
	if err != nil {
		webhookError(c, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(payload)) > h.maxPayload {
		webhookError(c, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	result, err := h.processor.ProcessWebhookWithRetry(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if appbilling.IsRejectedWebhook(err) {
			webhookError(c, http.StatusBadRequest, err.Error())
			return
		}
		// A 5xx makes Stripe redeliver the event later
		logger.FromContext(c.Request.Context()).Error("Webhook processing failed", zap.Error(err))
		webhookError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, StripeWebhookResponse{
		Received:  true,
		EventID:   result.EventID,
		EventType: result.EventType,
		Duplicate: result.Duplicate,
	})
}
