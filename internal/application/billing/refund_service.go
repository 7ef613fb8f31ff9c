package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/application/ledger"
	billingdomain "github.com/inmobiliaria/backend/internal/domain/billing"
	"github.com/inmobiliaria/backend/internal/domain/sales"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RequestRefundInput describes a refund request against a paid installment
type RequestRefundInput struct {
	InstallmentID  uuid.UUID
	Amount         decimal.Decimal
	Reason         string
	RequestedBy    uuid.UUID
	RequesterEmail string
}

// GatewayRefundUpdate is a refund state reported by a gateway notification
type GatewayRefundUpdate struct {
	ExternalRefundID string
	// LocalRefundID comes from the gateway object's metadata when the refund was created here
	LocalRefundID *uuid.UUID
	Status        billingdomain.RefundStatus
	At            time.Time
}

// RefundService runs the refund approval workflow
type RefundService struct {
	scope          ledger.TransactionScope
	refunds        billingdomain.RefundRepository
	gateway        Gateway
	eventPublisher shared.EventPublisher
	now            func() time.Time
	logger         *zap.Logger
}

// RefundServiceConfig holds the collaborators of RefundService
type RefundServiceConfig struct {
	Scope          ledger.TransactionScope
	Refunds        billingdomain.RefundRepository
	Gateway        Gateway
	EventPublisher shared.EventPublisher
	Clock          func() time.Time
	Logger         *zap.Logger
}

// NewRefundService creates a new RefundService
func NewRefundService(cfg RefundServiceConfig) *RefundService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &RefundService{
		scope:          cfg.Scope,
		refunds:        cfg.Refunds,
		gateway:        cfg.Gateway,
		eventPublisher: cfg.EventPublisher,
		now:            clock,
		logger:         logger,
	}
}

// RequestRefund creates a pendiente refund. The installment row is locked while the
// refundable balance is checked so concurrent requests cannot over-reserve it.
func (s *RefundService) RequestRefund(ctx context.Context, input RequestRefundInput) (*billingdomain.Refund, error) {
	refund, err := billingdomain.NewRefund(input.InstallmentID, input.Amount, input.Reason, input.RequestedBy, input.RequesterEmail)
	if err != nil {
		return nil, err
	}

	err = s.scope.Execute(ctx, func(repos ledger.TransactionalRepositories) error {
		inst, err := repos.Installments().FindByIDForUpdate(ctx, input.InstallmentID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return sales.ErrInstallmentNotFound
			}
			return fmt.Errorf("refund: lock installment: %w", err)
		}

		reserved, err := repos.Refunds().SumReservedByInstallment(ctx, inst.ID, nil)
		if err != nil {
			return fmt.Errorf("refund: sum reserved refunds: %w", err)
		}
		available := inst.AmountPaid.Sub(reserved)
		if input.Amount.GreaterThan(available) {
			return shared.NewDomainError(ErrRefundExceedsPaid.Code,
				fmt.Sprintf("Refund amount exceeds paid: %s requested, %s available",
					input.Amount.StringFixed(2), available.StringFixed(2)))
		}

		if err := repos.Refunds().Create(ctx, refund); err != nil {
			return fmt.Errorf("refund: create: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Refund requested",
		zap.String("refund_id", refund.ID.String()),
		zap.String("installment_id", input.InstallmentID.String()),
		zap.String("amount", input.Amount.StringFixed(2)))
	s.publish(ctx, refund)
	return refund, nil
}

// ApproveRefund approves a pendiente refund and sends it to the gateway
func (s *RefundService) ApproveRefund(ctx context.Context, refundID, approverID uuid.UUID) (*billingdomain.Refund, error) {
	return s.submit(ctx, refundID, func(r *billingdomain.Refund) error {
		return r.Approve(approverID)
	})
}

// RetryRefund resubmits a fallido (or stuck aprobado) refund to the gateway
func (s *RefundService) RetryRefund(ctx context.Context, refundID, actorID uuid.UUID) (*billingdomain.Refund, error) {
	return s.submit(ctx, refundID, func(r *billingdomain.Refund) error {
		return r.Reopen(actorID)
	})
}

// submit persists the aprobado transition before the gateway is called, then records the
// gateway outcome. The refund id is the idempotency key so a resubmission never pays twice.
func (s *RefundService) submit(ctx context.Context, refundID uuid.UUID, transition func(*billingdomain.Refund) error) (*billingdomain.Refund, error) {
	var (
		refund    *billingdomain.Refund
		reference string
	)
	err := s.scope.Execute(ctx, func(repos ledger.TransactionalRepositories) error {
		r, err := repos.Refunds().FindByIDForUpdate(ctx, refundID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return ErrRefundNotFound
			}
			return fmt.Errorf("refund: lock refund: %w", err)
		}
		inst, err := repos.Installments().FindByID(ctx, r.InstallmentID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return sales.ErrInstallmentNotFound
			}
			return fmt.Errorf("refund: load installment: %w", err)
		}
		if inst.PaymentReference == "" {
			return ErrMissingPaymentReference
		}
		if err := transition(r); err != nil {
			return err
		}
		if err := repos.Refunds().Update(ctx, r); err != nil {
			return fmt.Errorf("refund: save approval: %w", err)
		}
		refund, reference = r, inst.PaymentReference
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger := s.logger.With(zap.String("refund_id", refund.ID.String()))
	outcome, gwErr := s.gateway.CreateRefund(ctx, RefundCommand{
		PaymentReference: reference,
		Amount:           refund.Amount,
		Reason:           refund.Reason,
		IdempotencyKey:   "refund-" + refund.ID.String(),
		Metadata: map[string]string{
			MetadataRefundID:      refund.ID.String(),
			MetadataInstallmentID: refund.InstallmentID.String(),
		},
	})
	if gwErr != nil {
		logger.Error("Gateway refund failed", zap.Error(gwErr))
		failed, err := s.recordOutcome(ctx, refund.ID, "", func(r *billingdomain.Refund) error {
			return r.RecordGatewayFailure(gwErr.Error())
		})
		if err != nil {
			logger.Error("Failed to record gateway refund failure", zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrGatewayRefundFailed, gwErr)
		}
		return failed, fmt.Errorf("%w: %v", ErrGatewayRefundFailed, gwErr)
	}

	refund, err = s.recordOutcome(ctx, refund.ID, outcome.ExternalRefundID, func(r *billingdomain.Refund) error {
		return r.RecordGatewaySuccess(outcome.ExternalRefundID, outcome.Confirmed(), s.now())
	})
	if err != nil {
		return nil, fmt.Errorf("refund: save gateway result: %w", err)
	}

	logger.Info("Gateway refund submitted",
		zap.String("external_refund_id", outcome.ExternalRefundID),
		zap.String("gateway_status", outcome.Status),
		zap.String("status", string(refund.Status)))
	return refund, nil
}

// recordOutcome re-locks the refund and applies the gateway response to the stored row.
// A notification that settled the refund while the gateway call was in flight wins;
// only its missing external id is filled in.
func (s *RefundService) recordOutcome(ctx context.Context, refundID uuid.UUID, externalRefundID string, apply func(*billingdomain.Refund) error) (*billingdomain.Refund, error) {
	var refund *billingdomain.Refund
	err := s.scope.Execute(ctx, func(repos ledger.TransactionalRepositories) error {
		r, err := repos.Refunds().FindByIDForUpdate(ctx, refundID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return ErrRefundNotFound
			}
			return fmt.Errorf("refund: lock refund: %w", err)
		}
		refund = r
		if r.Status != billingdomain.RefundApproved {
			if externalRefundID == "" || r.ExternalRefundID != "" {
				return nil
			}
			r.ExternalRefundID = externalRefundID
			return repos.Refunds().Update(ctx, r)
		}
		if err := apply(r); err != nil {
			return err
		}
		return repos.Refunds().Update(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, refund)
	return refund, nil
}

// RejectRefund rejects a pendiente refund. The row is locked so an approval racing
// with the rejection cannot be overwritten.
func (s *RefundService) RejectRefund(ctx context.Context, refundID, rejecterID uuid.UUID, reason string) (*billingdomain.Refund, error) {
	var refund *billingdomain.Refund
	err := s.scope.Execute(ctx, func(repos ledger.TransactionalRepositories) error {
		r, err := repos.Refunds().FindByIDForUpdate(ctx, refundID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return ErrRefundNotFound
			}
			return fmt.Errorf("refund: lock refund: %w", err)
		}
		if err := r.Reject(rejecterID, reason); err != nil {
			return err
		}
		if err := repos.Refunds().Update(ctx, r); err != nil {
			return fmt.Errorf("refund: save rejection: %w", err)
		}
		refund = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Refund rejected", zap.String("refund_id", refund.ID.String()))
	s.publish(ctx, refund)
	return refund, nil
}

// ApplyGatewayRefundStatus applies a gateway notification. The gateway state overrides
// whatever the local workflow recorded.
func (s *RefundService) ApplyGatewayRefundStatus(ctx context.Context, update GatewayRefundUpdate) (*billingdomain.Refund, error) {
	at := update.At
	if at.IsZero() {
		at = s.now()
	}

	var (
		refund   *billingdomain.Refund
		previous billingdomain.RefundStatus
		changed  bool
	)
	err := s.scope.Execute(ctx, func(repos ledger.TransactionalRepositories) error {
		r, err := lockForGatewayUpdate(ctx, repos.Refunds(), update)
		if err != nil {
			return err
		}
		previousExternalID := r.ExternalRefundID
		previous, refund = r.Status, r
		changed = r.ApplyGatewayStatus(update.Status, update.ExternalRefundID, at)
		if !changed && r.ExternalRefundID == previousExternalID {
			return nil
		}
		if err := repos.Refunds().Update(ctx, r); err != nil {
			return fmt.Errorf("refund: save gateway status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return refund, nil
	}

	s.logger.Info("Refund status set by gateway",
		zap.String("refund_id", refund.ID.String()),
		zap.String("from", string(previous)),
		zap.String("to", string(refund.Status)))
	s.publish(ctx, refund)
	return refund, nil
}

func lockForGatewayUpdate(ctx context.Context, refunds billingdomain.RefundRepository, update GatewayRefundUpdate) (*billingdomain.Refund, error) {
	if update.ExternalRefundID != "" {
		refund, err := refunds.FindByExternalRefundIDForUpdate(ctx, update.ExternalRefundID)
		if err == nil {
			return refund, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("refund: lock refund: %w", err)
		}
	}
	if update.LocalRefundID == nil {
		return nil, ErrRefundNotFound
	}
	refund, err := refunds.FindByIDForUpdate(ctx, *update.LocalRefundID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, ErrRefundNotFound
		}
		return nil, fmt.Errorf("refund: lock refund: %w", err)
	}
	return refund, nil
}

// GetRefund returns one refund
func (s *RefundService) GetRefund(ctx context.Context, refundID uuid.UUID) (*billingdomain.Refund, error) {
	refund, err := s.refunds.FindByID(ctx, refundID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, ErrRefundNotFound
		}
		return nil, err
	}
	return refund, nil
}

// ListRefunds returns refunds matching the filter
func (s *RefundService) ListRefunds(ctx context.Context, filter shared.Filter) (shared.Paginated[billingdomain.Refund], error) {
	items, err := s.refunds.FindAll(ctx, filter)
	if err != nil {
		return shared.Paginated[billingdomain.Refund]{}, err
	}
	total, err := s.refunds.Count(ctx, filter)
	if err != nil {
		return shared.Paginated[billingdomain.Refund]{}, err
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

func (s *RefundService) publish(ctx context.Context, refund *billingdomain.Refund) {
	events := refund.GetDomainEvents()
	refund.ClearDomainEvents()
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Error("Failed to publish refund events", zap.Error(err))
	}
}
