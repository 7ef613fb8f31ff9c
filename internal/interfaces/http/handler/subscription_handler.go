package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appbilling "github.com/inmobiliaria/backend/internal/application/billing"
	billingdomain "github.com/inmobiliaria/backend/internal/domain/billing"
)

// SubscriptionCommands issues subscription commands to the gateway
type SubscriptionCommands interface {
	StartSubscription(ctx context.Context, input appbilling.StartSubscriptionInput) (*billingdomain.Subscription, error)
	ChangePlan(ctx context.Context, subscriptionID uuid.UUID, priceID string) (*billingdomain.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID uuid.UUID) (*billingdomain.Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID uuid.UUID) (*billingdomain.Subscription, error)
}

// SubscriptionHandler handles recurring charge endpoints
type SubscriptionHandler struct {
	BaseHandler
	subscriptions SubscriptionCommands
}

// NewSubscriptionHandler creates a new SubscriptionHandler
func NewSubscriptionHandler(subscriptions SubscriptionCommands) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions}
}

// StartSubscription godoc
//
//	@ID				startSubscription
//	@Summary		Start a subscription
//	@Description	Create a gateway subscription for the customer's monthly installments and mirror it locally
//	@Tags			subscriptions
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		StartSubscriptionRequest	true	"Subscription"
//	@Success		201		{object}	APIResponse[SubscriptionResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/subscriptions [post]
func (h *SubscriptionHandler) StartSubscription(c *gin.Context) {
	var req StartSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	sub, err := h.subscriptions.StartSubscription(c.Request.Context(), appbilling.StartSubscriptionInput{
		CustomerID: req.ClienteID,
		SaleID:     req.VentaID,
		PriceID:    req.PriceID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toSubscriptionResponse(sub))
}

// GetSubscription godoc
//
//	@ID				getSubscription
//	@Summary		Get a subscription
//	@Tags			subscriptions
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Subscription ID"	format(uuid)
//	@Success		200	{object}	APIResponse[SubscriptionResponse]
//	@Failure		404	{object}	ErrorResponse
//	@Router			/subscriptions/{id} [get]
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	sub, err := h.subscriptions.GetSubscription(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toSubscriptionResponse(sub))
}

// ChangePlan godoc
//
//	@ID				changeSubscriptionPlan
//	@Summary		Change a subscription's plan
//	@Tags			subscriptions
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string				true	"Subscription ID"	format(uuid)
//	@Param			request	body		ChangePlanRequest	true	"New price"
//	@Success		200		{object}	APIResponse[SubscriptionResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Router			/subscriptions/{id} [patch]
func (h *SubscriptionHandler) ChangePlan(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	var req ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	sub, err := h.subscriptions.ChangePlan(c.Request.Context(), id, req.PriceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toSubscriptionResponse(sub))
}

// CancelSubscription godoc
//
//	@ID				cancelSubscription
//	@Summary		Cancel a subscription
//	@Description	Cancel immediately. Canceling an already canceled subscription returns it unchanged.
//	@Tags			subscriptions
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Subscription ID"	format(uuid)
//	@Success		200	{object}	APIResponse[SubscriptionResponse]
//	@Failure		404	{object}	ErrorResponse
//	@Router			/subscriptions/{id} [delete]
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	sub, err := h.subscriptions.CancelSubscription(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toSubscriptionResponse(sub))
}
