package billing

import (
	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event type names
const (
	EventTypeRefundRequested         = "RefundRequested"
	EventTypeRefundApproved          = "RefundApproved"
	EventTypeRefundRejected          = "RefundRejected"
	EventTypeRefundProcessed         = "RefundProcessed"
	EventTypeRefundFailed            = "RefundFailed"
	EventTypeSubscriptionPlanChanged = "SubscriptionPlanChanged"
	EventTypeInvoicePaymentFailed    = "InvoicePaymentFailed"
)

// RefundEvent is raised on every refund state change that the requester is told about
type RefundEvent struct {
	shared.BaseDomainEvent
	InstallmentID    uuid.UUID       `json:"pago_id"`
	Amount           decimal.Decimal `json:"monto_reembolsado"`
	Status           RefundStatus    `json:"estatus"`
	RequesterEmail   string          `json:"requester_email"`
	Reason           string          `json:"motivo"`
	RejectionReason  string          `json:"rejection_reason,omitempty"`
	ExternalRefundID string          `json:"external_refund_id,omitempty"`
}

// NewRefundEvent creates a refund event of the given type
func NewRefundEvent(eventType string, r *Refund) *RefundEvent {
	return &RefundEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(eventType, "Refund", r.ID),
		InstallmentID:    r.InstallmentID,
		Amount:           r.Amount,
		Status:           r.Status,
		RequesterEmail:   r.RequesterEmail,
		Reason:           r.Reason,
		RejectionReason:  r.RejectionReason,
		ExternalRefundID: r.ExternalRefundID,
	}
}

// SubscriptionPlanChangedEvent is raised when a subscription moves to another price
type SubscriptionPlanChangedEvent struct {
	shared.BaseDomainEvent
	ExternalID      string `json:"external_id"`
	PreviousPriceID string `json:"previous_price_id"`
	NewPriceID      string `json:"new_price_id"`
}

// NewSubscriptionPlanChangedEvent creates a new SubscriptionPlanChangedEvent
func NewSubscriptionPlanChangedEvent(s *Subscription, newPriceID string) *SubscriptionPlanChangedEvent {
	return &SubscriptionPlanChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSubscriptionPlanChanged, "Subscription", s.ID),
		ExternalID:      s.ExternalID,
		PreviousPriceID: s.PriceID,
		NewPriceID:      newPriceID,
	}
}

// InvoicePaymentFailedEvent asks for the account owner to be told a renewal charge failed
type InvoicePaymentFailedEvent struct {
	shared.BaseDomainEvent
	ExternalInvoiceID      string          `json:"external_invoice_id"`
	ExternalSubscriptionID string          `json:"external_subscription_id"`
	CustomerEmail          string          `json:"customer_email"`
	CustomerName           string          `json:"customer_name"`
	AmountDue              decimal.Decimal `json:"amount_due"`
	AttemptCount           int64           `json:"attempt_count"`
}

// NewInvoicePaymentFailedEvent creates a new InvoicePaymentFailedEvent
func NewInvoicePaymentFailedEvent(subscriptionID uuid.UUID, invoiceID, externalSubID, email, name string,
	amountDue decimal.Decimal, attempts int64) *InvoicePaymentFailedEvent {
	return &InvoicePaymentFailedEvent{
		BaseDomainEvent:        shared.NewBaseDomainEvent(EventTypeInvoicePaymentFailed, "Subscription", subscriptionID),
		ExternalInvoiceID:      invoiceID,
		ExternalSubscriptionID: externalSubID,
		CustomerEmail:          email,
		CustomerName:           name,
		AmountDue:              amountDue,
		AttemptCount:           attempts,
	}
}
