package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	appbilling "github.com/inmobiliaria/backend/internal/application/billing"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"
)

// StripeAdapter is the Stripe implementation of the payment gateway and the webhook verifier
type StripeAdapter struct {
	config *StripeConfig
	api    *client.API
	logger *zap.Logger
}

var (
	_ appbilling.Gateway       = (*StripeAdapter)(nil)
	_ appbilling.EventVerifier = (*StripeAdapter)(nil)
)

// NewStripeAdapter creates a new Stripe adapter talking to the live API
func NewStripeAdapter(config *StripeConfig, logger *zap.Logger) (*StripeAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newStripeAdapter(config, config.newBackend(), logger), nil
}

// NewStripeAdapterWithBackend creates an adapter on an explicit API backend
func NewStripeAdapterWithBackend(config *StripeConfig, backend stripe.Backend, logger *zap.Logger) (*StripeAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newStripeAdapter(config, backend, logger), nil
}

func newStripeAdapter(config *StripeConfig, backend stripe.Backend, logger *zap.Logger) *StripeAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	api := client.New(config.SecretKey, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})
	return &StripeAdapter{
		config: config,
		api:    api,
		logger: logger.With(zap.String("gateway", "stripe")),
	}
}

// CanVerify reports whether a webhook signing secret is configured
func (a *StripeAdapter) CanVerify() bool {
	return a.config.WebhookSecret != ""
}

// VerifyAndParse checks the Stripe-Signature header and decodes the event.
// API version mismatches are tolerated; only the fields the handlers read are decoded.
func (a *StripeAdapter) VerifyAndParse(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, signature, a.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
}

// ParseUnverified decodes the event without checking any signature
func (a *StripeAdapter) ParseUnverified(payload []byte) (stripe.Event, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return stripe.Event{}, fmt.Errorf("stripe: failed to decode event: %w", err)
	}
	if event.ID == "" || event.Type == "" {
		return stripe.Event{}, fmt.Errorf("stripe: event is missing id or type")
	}
	return event, nil
}

// CreateRefund refunds part or all of a captured payment intent or charge
func (a *StripeAdapter) CreateRefund(ctx context.Context, cmd appbilling.RefundCommand) (*appbilling.RefundOutcome, error) {
	if cmd.PaymentReference == "" {
		return nil, fmt.Errorf("stripe: refund requires a payment reference")
	}
	if !cmd.Amount.IsPositive() {
		return nil, fmt.Errorf("stripe: refund amount must be positive")
	}

	params := &stripe.RefundParams{
		Amount: stripe.Int64(toMinorUnits(cmd.Amount)),
		Reason: stripe.String(string(refundReason(cmd.Reason))),
	}
	params.Context = ctx
	if isChargeID(cmd.PaymentReference) {
		params.Charge = stripe.String(cmd.PaymentReference)
	} else {
		params.PaymentIntent = stripe.String(cmd.PaymentReference)
	}
	if cmd.IdempotencyKey != "" {
		params.SetIdempotencyKey(cmd.IdempotencyKey)
	}
	for k, v := range cmd.Metadata {
		params.AddMetadata(k, v)
	}
	if cmd.Reason != "" {
		params.AddMetadata(metadataRefundReason, cmd.Reason)
	}

	a.logger.Debug("Creating Stripe refund",
		zap.String("payment_reference", cmd.PaymentReference),
		zap.String("amount", cmd.Amount.StringFixed(2)),
		zap.String("idempotency_key", cmd.IdempotencyKey))

	r, err := a.api.Refunds.New(params)
	if err != nil {
		a.logger.Error("Failed to create Stripe refund",
			zap.String("payment_reference", cmd.PaymentReference),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to create refund: %w", err)
	}

	a.logger.Info("Created Stripe refund",
		zap.String("refund_id", r.ID),
		zap.String("status", string(r.Status)))

	return &appbilling.RefundOutcome{
		ExternalRefundID: r.ID,
		Status:           string(r.Status),
	}, nil
}

// CreateCustomer creates a Stripe customer and returns its id
func (a *StripeAdapter) CreateCustomer(ctx context.Context, cmd appbilling.CustomerCommand) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(cmd.Email),
		Name:  stripe.String(cmd.Name),
	}
	params.Context = ctx
	for k, v := range cmd.Metadata {
		params.AddMetadata(k, v)
	}

	c, err := a.api.Customers.New(params)
	if err != nil {
		a.logger.Error("Failed to create Stripe customer",
			zap.String("email", cmd.Email),
			zap.Error(err))
		return "", fmt.Errorf("stripe: failed to create customer: %w", err)
	}

	a.logger.Info("Created Stripe customer", zap.String("customer_id", c.ID))
	return c.ID, nil
}

// RetrieveCustomer fetches the contact details of a Stripe customer
func (a *StripeAdapter) RetrieveCustomer(ctx context.Context, externalCustomerID string) (*appbilling.CustomerCommand, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	c, err := a.api.Customers.Get(externalCustomerID, params)
	if err != nil {
		a.logger.Error("Failed to get Stripe customer",
			zap.String("customer_id", externalCustomerID),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to get customer: %w", err)
	}
	if c.Deleted {
		return nil, fmt.Errorf("stripe: customer %s was deleted", externalCustomerID)
	}

	return &appbilling.CustomerCommand{
		Name:     c.Name,
		Email:    c.Email,
		Metadata: maps.Clone(c.Metadata),
	}, nil
}

// CreateSubscription starts a subscription on a single price
func (a *StripeAdapter) CreateSubscription(ctx context.Context, cmd appbilling.SubscriptionCommand) (*appbilling.GatewaySubscription, error) {
	if cmd.ExternalCustomerID == "" || cmd.PriceID == "" {
		return nil, fmt.Errorf("stripe: subscription requires customer and price")
	}

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(cmd.ExternalCustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(cmd.PriceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
	}
	params.Context = ctx
	for k, v := range cmd.Metadata {
		params.AddMetadata(k, v)
	}

	sub, err := a.api.Subscriptions.New(params)
	if err != nil {
		a.logger.Error("Failed to create Stripe subscription",
			zap.String("customer_id", cmd.ExternalCustomerID),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to create subscription: %w", err)
	}

	a.logger.Info("Created Stripe subscription",
		zap.String("subscription_id", sub.ID),
		zap.String("status", string(sub.Status)))
	return toGatewaySubscription(sub), nil
}

// UpdateSubscription moves the single subscription item to another price with prorations
func (a *StripeAdapter) UpdateSubscription(ctx context.Context, externalID string, cmd appbilling.SubscriptionCommand) (*appbilling.GatewaySubscription, error) {
	getParams := &stripe.SubscriptionParams{}
	getParams.Context = ctx
	current, err := a.api.Subscriptions.Get(externalID, getParams)
	if err != nil {
		a.logger.Error("Failed to get Stripe subscription",
			zap.String("subscription_id", externalID),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to get subscription: %w", err)
	}
	if current.Items == nil || len(current.Items.Data) == 0 {
		return nil, fmt.Errorf("stripe: subscription has no items")
	}
	item := current.Items.Data[0]

	params := &stripe.SubscriptionParams{
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Context = ctx
	if cmd.PriceID != "" {
		params.Items = []*stripe.SubscriptionItemsParams{
			{ID: stripe.String(item.ID), Price: stripe.String(cmd.PriceID)},
		}
	}
	for k, v := range cmd.Metadata {
		params.AddMetadata(k, v)
	}

	updated, err := a.api.Subscriptions.Update(externalID, params)
	if err != nil {
		a.logger.Error("Failed to update Stripe subscription",
			zap.String("subscription_id", externalID),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to update subscription: %w", err)
	}

	previousPrice := ""
	if item.Price != nil {
		previousPrice = item.Price.ID
	}
	a.logger.Info("Updated Stripe subscription",
		zap.String("subscription_id", updated.ID),
		zap.String("previous_price", previousPrice),
		zap.String("new_price", cmd.PriceID))
	return toGatewaySubscription(updated), nil
}

// CancelSubscription cancels a subscription immediately
func (a *StripeAdapter) CancelSubscription(ctx context.Context, externalID string) (*appbilling.GatewaySubscription, error) {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx

	sub, err := a.api.Subscriptions.Cancel(externalID, params)
	if err != nil {
		a.logger.Error("Failed to cancel Stripe subscription",
			zap.String("subscription_id", externalID),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to cancel subscription: %w", err)
	}

	a.logger.Info("Canceled Stripe subscription",
		zap.String("subscription_id", sub.ID),
		zap.String("status", string(sub.Status)))
	return toGatewaySubscription(sub), nil
}
