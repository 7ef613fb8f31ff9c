package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/application/ledger"
	billingdomain "github.com/inmobiliaria/backend/internal/domain/billing"
	"github.com/inmobiliaria/backend/internal/domain/sales"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"
)

// SubscriptionHandler mirrors gateway subscriptions and their invoices
type SubscriptionHandler struct {
	subscriptions  billingdomain.SubscriptionRepository
	customers      billingdomain.CustomerRepository
	records        sales.PaymentRecordRepository
	ledger         PaymentLedger
	gateway        Gateway
	eventPublisher shared.EventPublisher
	now            func() time.Time
	logger         *zap.Logger
}

// SubscriptionHandlerConfig holds the collaborators of SubscriptionHandler
type SubscriptionHandlerConfig struct {
	Subscriptions  billingdomain.SubscriptionRepository
	Customers      billingdomain.CustomerRepository
	Records        sales.PaymentRecordRepository
	Ledger         PaymentLedger
	Gateway        Gateway
	EventPublisher shared.EventPublisher
	Clock          func() time.Time
	Logger         *zap.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler
func NewSubscriptionHandler(cfg SubscriptionHandlerConfig) *SubscriptionHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SubscriptionHandler{
		subscriptions:  cfg.Subscriptions,
		customers:      cfg.Customers,
		records:        cfg.Records,
		ledger:         cfg.Ledger,
		gateway:        cfg.Gateway,
		eventPublisher: cfg.EventPublisher,
		now:            clock,
		logger:         logger,
	}
}

// HandleSubscriptionCreated creates the local mirror. A mirror that already exists is left alone.
func (h *SubscriptionHandler) HandleSubscriptionCreated(ctx context.Context, event stripe.Event) (*uuid.UUID, error) {
	sub, err := decodeSubscription(event)
	if err != nil {
		return nil, err
	}

	existing, err := h.subscriptions.FindByExternalID(ctx, sub.ID)
	if err == nil {
		h.logger.Info("Subscription already mirrored", zap.String("subscription", sub.ID))
		return &existing.ID, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return h.createMirror(ctx, sub)
}

// HandleSubscriptionUpdated syncs status, plan and period. An update for an unknown
// subscription creates the mirror, since deliveries can arrive out of order. Updates
// arriving after the deletion never revive a canceled mirror.
func (h *SubscriptionHandler) HandleSubscriptionUpdated(ctx context.Context, event stripe.Event) (*uuid.UUID, error) {
	sub, err := decodeSubscription(event)
	if err != nil {
		return nil, err
	}

	local, err := h.subscriptions.FindByExternalID(ctx, sub.ID)
	if errors.Is(err, shared.ErrNotFound) {
		return h.createMirror(ctx, sub)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}

	if local.IsCanceled() {
		h.logger.Info("Ignoring update for canceled subscription",
			zap.String("subscription", sub.ID),
			zap.String("reported_status", string(sub.Status)))
		return &local.ID, nil
	}

	snap := snapshotFrom(sub)
	planChanged := local.ApplySnapshot(snap, h.now())
	h.linkParties(ctx, local, sub)
	if err := h.subscriptions.Update(ctx, local); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}
	if planChanged {
		h.logger.Info("Subscription plan changed",
			zap.String("subscription", sub.ID),
			zap.String("previous_price", local.PreviousPriceID),
			zap.String("price", local.PriceID))
	}
	h.publish(ctx, local.GetDomainEvents())
	local.ClearDomainEvents()

	h.logger.Info("Subscription updated",
		zap.String("subscription", sub.ID),
		zap.String("status", string(local.Status)))
	return &local.ID, nil
}

// HandleSubscriptionDeleted marks the mirror canceled and revokes the customer's entitlement
func (h *SubscriptionHandler) HandleSubscriptionDeleted(ctx context.Context, event stripe.Event) (*uuid.UUID, error) {
	sub, err := decodeSubscription(event)
	if err != nil {
		return nil, err
	}

	local, err := h.subscriptions.FindByExternalID(ctx, sub.ID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.logger.Warn("Deleted subscription was never mirrored", zap.String("subscription", sub.ID))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}

	canceledAt := h.now()
	if sub.CanceledAt > 0 {
		canceledAt = time.Unix(sub.CanceledAt, 0).UTC()
	}
	local.Cancel(canceledAt)
	if err := h.subscriptions.Update(ctx, local); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}
	h.setEntitlement(ctx, local.CustomerID, false)

	h.logger.Info("Subscription canceled", zap.String("subscription", sub.ID))
	return &local.ID, nil
}

// HandleInvoicePaymentSucceeded records a renewal charge. When the subscription collects for
// a sale, the money is applied to the sale's next installment.
func (h *SubscriptionHandler) HandleInvoicePaymentSucceeded(ctx context.Context, event stripe.Event) (*uuid.UUID, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return nil, fmt.Errorf("%w: invoice: %v", ErrMalformedEvent, err)
	}
	if invoice.Subscription == nil || invoice.Subscription.ID == "" {
		h.logger.Debug("Invoice is not for a subscription, skipping", zap.String("invoice", invoice.ID))
		return nil, nil
	}

	local, err := h.subscriptions.FindByExternalID(ctx, invoice.Subscription.ID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.logger.Warn("Invoice for unknown subscription",
				zap.String("invoice", invoice.ID),
				zap.String("subscription", invoice.Subscription.ID))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}

	amount := fromMinorUnits(invoice.AmountPaid)
	if !amount.IsPositive() {
		h.logger.Debug("Zero-amount invoice, nothing to record", zap.String("invoice", invoice.ID))
		return &local.ID, nil
	}
	reference := invoice.ID
	if invoice.PaymentIntent != nil && invoice.PaymentIntent.ID != "" {
		reference = invoice.PaymentIntent.ID
	}
	paidAt := h.now()
	if event.Created > 0 {
		paidAt = time.Unix(event.Created, 0).UTC()
	}

	if local.SaleID != nil {
		result, err := h.ledger.ApplyPayment(ctx, ledger.ApplyPaymentInput{
			SaleID:         local.SaleID,
			Amount:         amount,
			PaymentDate:    paidAt,
			Method:         cardPaymentMethod,
			Reference:      reference,
			Source:         sales.PaymentSourceSubscription,
			SubscriptionID: &local.ID,
		})
		switch {
		case err == nil:
			h.logger.Info("Renewal applied to installment",
				zap.String("invoice", invoice.ID),
				zap.String("installment_id", result.Installment.ID.String()))
			return &result.Installment.ID, nil
		case errors.Is(err, sales.ErrDuplicatePaymentRef):
			h.logger.Info("Renewal already recorded", zap.String("invoice", invoice.ID))
			return &local.ID, nil
		case shared.IsDomainError(err):
			h.logger.Warn("Renewal could not be applied to the schedule, recording it standalone",
				zap.String("invoice", invoice.ID),
				zap.Error(err))
		default:
			return nil, err
		}
	}

	exists, err := h.records.ExistsByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to check payment reference: %w", err)
	}
	if exists {
		h.logger.Info("Renewal already recorded", zap.String("invoice", invoice.ID))
		return &local.ID, nil
	}

	record := sales.NewPaymentRecord(sales.PaymentSourceSubscription, amount, paidAt, cardPaymentMethod, reference, "")
	record.SubscriptionID = &local.ID
	record.SaleID = local.SaleID
	if err := h.records.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to write payment record: %w", err)
	}
	h.logger.Info("Renewal recorded",
		zap.String("invoice", invoice.ID),
		zap.String("amount", amount.StringFixed(2)))
	return &record.ID, nil
}

// HandleInvoicePaymentFailed asks the notifier to tell the account owner about a failed renewal
func (h *SubscriptionHandler) HandleInvoicePaymentFailed(ctx context.Context, event stripe.Event) (*uuid.UUID, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return nil, fmt.Errorf("%w: invoice: %v", ErrMalformedEvent, err)
	}
	if invoice.Subscription == nil || invoice.Subscription.ID == "" {
		h.logger.Debug("Invoice is not for a subscription, skipping", zap.String("invoice", invoice.ID))
		return nil, nil
	}

	local, err := h.subscriptions.FindByExternalID(ctx, invoice.Subscription.ID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.logger.Warn("Failed invoice for unknown subscription",
				zap.String("invoice", invoice.ID),
				zap.String("subscription", invoice.Subscription.ID))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}

	email, name := invoice.CustomerEmail, invoice.CustomerName
	if email == "" && local.CustomerID != nil {
		if customer, err := h.customers.FindByID(ctx, *local.CustomerID); err == nil {
			email, name = customer.Email, customer.Name
		}
	}
	if email == "" && h.gateway != nil && invoice.Customer != nil && invoice.Customer.ID != "" {
		remote, err := h.gateway.RetrieveCustomer(ctx, invoice.Customer.ID)
		if err != nil {
			h.logger.Warn("Failed to retrieve gateway customer", zap.Error(err))
		} else {
			email, name = remote.Email, remote.Name
		}
	}
	if email == "" {
		h.logger.Warn("No address to notify about failed renewal", zap.String("invoice", invoice.ID))
	}

	h.publish(ctx, []shared.DomainEvent{billingdomain.NewInvoicePaymentFailedEvent(
		local.ID, invoice.ID, invoice.Subscription.ID, email, name,
		fromMinorUnits(invoice.AmountDue), invoice.AttemptCount)})

	h.logger.Warn("Subscription renewal failed",
		zap.String("invoice", invoice.ID),
		zap.String("subscription", invoice.Subscription.ID),
		zap.Int64("attempt", invoice.AttemptCount))
	return &local.ID, nil
}

func (h *SubscriptionHandler) createMirror(ctx context.Context, sub *stripe.Subscription) (*uuid.UUID, error) {
	local, err := billingdomain.NewSubscription(snapshotFrom(sub))
	if err != nil {
		return nil, err
	}
	h.linkParties(ctx, local, sub)
	if err := h.subscriptions.Create(ctx, local); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	h.logger.Info("Subscription mirrored",
		zap.String("subscription", sub.ID),
		zap.String("status", string(local.Status)))
	return &local.ID, nil
}

// linkParties attaches the sale and customer named in metadata (or found by gateway customer id)
// and syncs the customer's entitlement with the subscription status.
func (h *SubscriptionHandler) linkParties(ctx context.Context, local *billingdomain.Subscription, sub *stripe.Subscription) {
	if raw := sub.Metadata[MetadataSaleID]; raw != "" && local.SaleID == nil {
		if id, err := uuid.Parse(raw); err == nil {
			local.LinkSale(id)
		} else {
			h.logger.Warn("Ignoring invalid sale id in subscription metadata", zap.String("value", raw))
		}
	}

	customer := h.findCustomer(ctx, local, sub)
	if customer == nil {
		return
	}
	local.LinkCustomer(customer.ID)
	linked := customer.LinkExternalCustomer(local.ExternalCustomerID)
	entitled := customer.SetEntitlement(local.Status.IsEntitled())
	if linked || entitled {
		if err := h.customers.Update(ctx, customer); err != nil {
			h.logger.Warn("Failed to update customer entitlement", zap.Error(err))
		}
	}
}

func (h *SubscriptionHandler) findCustomer(ctx context.Context, local *billingdomain.Subscription, sub *stripe.Subscription) *billingdomain.Customer {
	if h.customers == nil {
		return nil
	}
	if local.CustomerID != nil {
		if c, err := h.customers.FindByID(ctx, *local.CustomerID); err == nil {
			return c
		}
	}
	if raw := sub.Metadata[MetadataCustomerID]; raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			if c, err := h.customers.FindByID(ctx, id); err == nil {
				return c
			}
		}
	}
	if local.ExternalCustomerID != "" {
		c, err := h.customers.FindByExternalID(ctx, local.ExternalCustomerID)
		if err == nil {
			return c
		}
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Warn("Customer lookup failed", zap.Error(err))
		}
	}
	h.logger.Warn("No local customer for subscription", zap.String("subscription", sub.ID))
	return nil
}

func (h *SubscriptionHandler) setEntitlement(ctx context.Context, customerID *uuid.UUID, active bool) {
	if customerID == nil || h.customers == nil {
		return
	}
	customer, err := h.customers.FindByID(ctx, *customerID)
	if err != nil {
		h.logger.Warn("Customer not found for entitlement change", zap.Error(err))
		return
	}
	if customer.SetEntitlement(active) {
		if err := h.customers.Update(ctx, customer); err != nil {
			h.logger.Warn("Failed to update customer entitlement", zap.Error(err))
		}
	}
}

func (h *SubscriptionHandler) publish(ctx context.Context, events []shared.DomainEvent) {
	if h.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := h.eventPublisher.Publish(ctx, events...); err != nil {
		h.logger.Error("Failed to publish subscription events", zap.Error(err))
	}
}

func decodeSubscription(event stripe.Event) (*stripe.Subscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("%w: subscription: %v", ErrMalformedEvent, err)
	}
	if sub.ID == "" {
		return nil, fmt.Errorf("%w: subscription without id", ErrMalformedEvent)
	}
	return &sub, nil
}

// snapshotFrom converts the gateway object into the domain snapshot
func snapshotFrom(sub *stripe.Subscription) billingdomain.SubscriptionSnapshot {
	snap := billingdomain.SubscriptionSnapshot{
		ExternalID:  sub.ID,
		Status:      billingdomain.ParseSubscriptionStatus(string(sub.Status)),
		PeriodStart: unixTime(sub.CurrentPeriodStart),
		PeriodEnd:   unixTime(sub.CurrentPeriodEnd),
		CanceledAt:  unixTime(sub.CanceledAt),
		Metadata:    sub.Metadata,
	}
	if sub.Customer != nil {
		snap.ExternalCustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		snap.PriceID = sub.Items.Data[0].Price.ID
	}
	return snap
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
