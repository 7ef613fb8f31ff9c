package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// WebhookEventRepository persists the webhook event log
type WebhookEventRepository interface {
	Create(ctx context.Context, event *WebhookEvent) error
	Update(ctx context.Context, event *WebhookEvent) error
	// FindByExternalID returns shared.ErrNotFound when the event was never seen
	FindByExternalID(ctx context.Context, externalID string) (*WebhookEvent, error)
}

// SubscriptionRepository persists subscription mirrors
type SubscriptionRepository interface {
	shared.Collection[Subscription]
	FindByExternalID(ctx context.Context, externalID string) (*Subscription, error)
}

// RefundRepository persists refunds
type RefundRepository interface {
	shared.Collection[Refund]
	// FindByIDForUpdate loads a refund holding a row lock until the transaction ends
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Refund, error)
	FindByExternalRefundIDForUpdate(ctx context.Context, externalRefundID string) (*Refund, error)
	// SumReservedByInstallment totals refunds that still count against the installment's paid amount
	SumReservedByInstallment(ctx context.Context, installmentID uuid.UUID, excludeID *uuid.UUID) (decimal.Decimal, error)
}

// CustomerRepository reads and links customers
type CustomerRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Customer, error)
	FindByExternalID(ctx context.Context, externalCustomerID string) (*Customer, error)
	Update(ctx context.Context, customer *Customer) error
}
