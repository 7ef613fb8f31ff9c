package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
)

// EventVerifier authenticates and decodes gateway notifications
type EventVerifier interface {
	// VerifyAndParse checks the signature header against the webhook secret and decodes the event
	VerifyAndParse(payload []byte, signature string) (stripe.Event, error)
	// ParseUnverified decodes the event without any signature check
	ParseUnverified(payload []byte) (stripe.Event, error)
	// CanVerify reports whether a webhook secret is configured
	CanVerify() bool
}

// RefundCommand asks the gateway to return money for a captured payment
type RefundCommand struct {
	// PaymentReference is the payment intent (pi_...) or charge (ch_...) id
	PaymentReference string
	Amount           decimal.Decimal
	Reason           string
	// IdempotencyKey makes repeated commands for the same local refund safe
	IdempotencyKey string
	Metadata       map[string]string
}

// RefundOutcome is what the gateway reported for a refund command
type RefundOutcome struct {
	ExternalRefundID string
	// Status is the raw gateway status (succeeded, pending, requires_action, failed, canceled)
	Status string
}

// Confirmed reports whether the money already left the account
func (o RefundOutcome) Confirmed() bool {
	return o.Status == "" || o.Status == string(stripe.RefundStatusSucceeded)
}

// CustomerCommand creates a gateway customer for a local buyer
type CustomerCommand struct {
	Name     string
	Email    string
	Metadata map[string]string
}

// SubscriptionCommand creates or changes a recurring charge
type SubscriptionCommand struct {
	ExternalCustomerID string
	PriceID            string
	Metadata           map[string]string
}

// GatewaySubscription is the gateway's answer to a subscription command
type GatewaySubscription struct {
	ExternalID       string
	Status           string
	PriceID          string
	CurrentPeriodEnd *time.Time
}

// Gateway is the outbound command surface of the payment processor
type Gateway interface {
	CreateRefund(ctx context.Context, cmd RefundCommand) (*RefundOutcome, error)
	CreateCustomer(ctx context.Context, cmd CustomerCommand) (string, error)
	RetrieveCustomer(ctx context.Context, externalCustomerID string) (*CustomerCommand, error)
	CreateSubscription(ctx context.Context, cmd SubscriptionCommand) (*GatewaySubscription, error)
	UpdateSubscription(ctx context.Context, externalID string, cmd SubscriptionCommand) (*GatewaySubscription, error)
	CancelSubscription(ctx context.Context, externalID string) (*GatewaySubscription, error)
}
