package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	billingdomain "github.com/inmobiliaria/backend/internal/domain/billing"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// StartSubscriptionInput asks for a recurring charge for a customer
type StartSubscriptionInput struct {
	CustomerID uuid.UUID
	SaleID     *uuid.UUID
	PriceID    string
}

// SubscriptionService issues subscription commands to the gateway and keeps the mirror in step.
// Webhooks for the same subscription arrive later and converge on the same row.
type SubscriptionService struct {
	subscriptions  billingdomain.SubscriptionRepository
	customers      billingdomain.CustomerRepository
	gateway        Gateway
	eventPublisher shared.EventPublisher
	now            func() time.Time
	logger         *zap.Logger
}

// SubscriptionServiceConfig holds the collaborators of SubscriptionService
type SubscriptionServiceConfig struct {
	Subscriptions  billingdomain.SubscriptionRepository
	Customers      billingdomain.CustomerRepository
	Gateway        Gateway
	EventPublisher shared.EventPublisher
	Clock          func() time.Time
	Logger         *zap.Logger
}

// NewSubscriptionService creates a new SubscriptionService
func NewSubscriptionService(cfg SubscriptionServiceConfig) *SubscriptionService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SubscriptionService{
		subscriptions:  cfg.Subscriptions,
		customers:      cfg.Customers,
		gateway:        cfg.Gateway,
		eventPublisher: cfg.EventPublisher,
		now:            clock,
		logger:         logger,
	}
}

// StartSubscription creates the gateway customer when the buyer has none, then the subscription
func (s *SubscriptionService) StartSubscription(ctx context.Context, input StartSubscriptionInput) (*billingdomain.Subscription, error) {
	if input.PriceID == "" {
		return nil, ErrMissingPriceID
	}
	customer, err := s.customers.FindByID(ctx, input.CustomerID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}

	metadata := map[string]string{MetadataCustomerID: customer.ID.String()}
	if input.SaleID != nil {
		metadata[MetadataSaleID] = input.SaleID.String()
	}

	if customer.ExternalCustomerID == "" {
		externalID, err := s.gateway.CreateCustomer(ctx, CustomerCommand{
			Name:     customer.Name,
			Email:    customer.Email,
			Metadata: map[string]string{MetadataCustomerID: customer.ID.String()},
		})
		if err != nil {
			return nil, fmt.Errorf("subscription: create gateway customer: %w", err)
		}
		customer.LinkExternalCustomer(externalID)
		if err := s.customers.Update(ctx, customer); err != nil {
			return nil, fmt.Errorf("subscription: link gateway customer: %w", err)
		}
		s.logger.Info("Gateway customer created",
			zap.String("customer_id", customer.ID.String()),
			zap.String("external_customer", externalID))
	}

	created, err := s.gateway.CreateSubscription(ctx, SubscriptionCommand{
		ExternalCustomerID: customer.ExternalCustomerID,
		PriceID:            input.PriceID,
		Metadata:           metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("subscription: create gateway subscription: %w", err)
	}

	// the created webhook may have landed first
	local, err := s.subscriptions.FindByExternalID(ctx, created.ExternalID)
	switch {
	case err == nil:
		local.ApplySnapshot(s.snapshot(created, customer.ExternalCustomerID, metadata), s.now())
		local.LinkCustomer(customer.ID)
		if input.SaleID != nil {
			local.LinkSale(*input.SaleID)
		}
		if err := s.subscriptions.Update(ctx, local); err != nil {
			return nil, fmt.Errorf("subscription: update mirror: %w", err)
		}
	case errors.Is(err, shared.ErrNotFound):
		local, err = billingdomain.NewSubscription(s.snapshot(created, customer.ExternalCustomerID, metadata))
		if err != nil {
			return nil, err
		}
		local.LinkCustomer(customer.ID)
		if input.SaleID != nil {
			local.LinkSale(*input.SaleID)
		}
		if err := s.subscriptions.Create(ctx, local); err != nil {
			return nil, fmt.Errorf("subscription: create mirror: %w", err)
		}
	default:
		return nil, err
	}

	if customer.SetEntitlement(local.Status.IsEntitled()) {
		if err := s.customers.Update(ctx, customer); err != nil {
			s.logger.Warn("Failed to update customer entitlement", zap.Error(err))
		}
	}

	s.logger.Info("Subscription started",
		zap.String("subscription", local.ExternalID),
		zap.String("customer_id", customer.ID.String()),
		zap.String("status", string(local.Status)))
	return local, nil
}

// ChangePlan moves a subscription to another price
func (s *SubscriptionService) ChangePlan(ctx context.Context, subscriptionID uuid.UUID, priceID string) (*billingdomain.Subscription, error) {
	if priceID == "" {
		return nil, ErrMissingPriceID
	}
	local, err := s.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if local.Status == billingdomain.SubscriptionCanceled {
		return nil, ErrSubscriptionCanceled
	}

	updated, err := s.gateway.UpdateSubscription(ctx, local.ExternalID, SubscriptionCommand{PriceID: priceID})
	if err != nil {
		return nil, fmt.Errorf("subscription: update gateway subscription: %w", err)
	}
	local.ApplySnapshot(s.snapshot(updated, "", nil), s.now())
	if err := s.subscriptions.Update(ctx, local); err != nil {
		return nil, fmt.Errorf("subscription: update mirror: %w", err)
	}

	s.logger.Info("Subscription plan changed",
		zap.String("subscription", local.ExternalID),
		zap.String("price", local.PriceID))
	s.publish(ctx, local)
	return local, nil
}

// CancelSubscription cancels the subscription immediately and revokes the customer's entitlement
func (s *SubscriptionService) CancelSubscription(ctx context.Context, subscriptionID uuid.UUID) (*billingdomain.Subscription, error) {
	local, err := s.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if local.Status == billingdomain.SubscriptionCanceled {
		return local, nil
	}

	if _, err := s.gateway.CancelSubscription(ctx, local.ExternalID); err != nil {
		return nil, fmt.Errorf("subscription: cancel gateway subscription: %w", err)
	}
	local.Cancel(s.now())
	if err := s.subscriptions.Update(ctx, local); err != nil {
		return nil, fmt.Errorf("subscription: update mirror: %w", err)
	}

	if local.CustomerID != nil {
		if customer, err := s.customers.FindByID(ctx, *local.CustomerID); err == nil {
			if customer.SetEntitlement(false) {
				if err := s.customers.Update(ctx, customer); err != nil {
					s.logger.Warn("Failed to revoke customer entitlement", zap.Error(err))
				}
			}
		}
	}

	s.logger.Info("Subscription canceled", zap.String("subscription", local.ExternalID))
	return local, nil
}

// GetSubscription returns one subscription mirror
func (s *SubscriptionService) GetSubscription(ctx context.Context, subscriptionID uuid.UUID) (*billingdomain.Subscription, error) {
	local, err := s.subscriptions.FindByID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return local, nil
}

func (s *SubscriptionService) snapshot(gs *GatewaySubscription, externalCustomerID string, metadata map[string]string) billingdomain.SubscriptionSnapshot {
	return billingdomain.SubscriptionSnapshot{
		ExternalID:         gs.ExternalID,
		ExternalCustomerID: externalCustomerID,
		Status:             billingdomain.ParseSubscriptionStatus(gs.Status),
		PriceID:            gs.PriceID,
		PeriodEnd:          gs.CurrentPeriodEnd,
		Metadata:           metadata,
	}
}

func (s *SubscriptionService) publish(ctx context.Context, local *billingdomain.Subscription) {
	events := local.GetDomainEvents()
	local.ClearDomainEvents()
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Error("Failed to publish subscription events", zap.Error(err))
	}
}
