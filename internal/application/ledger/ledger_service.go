package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/domain/sales"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"github.com/inmobiliaria/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Settings are the tunable business parameters of the ledger
type Settings struct {
	LateFeeRate decimal.Decimal
	Weights     sales.TrancheWeights
}

// DefaultSettings returns a 5% late fee and 30/30/40 commission tranches
func DefaultSettings() Settings {
	return Settings{
		LateFeeRate: decimal.NewFromFloat(0.05),
		Weights:     sales.DefaultTrancheWeights(),
	}
}

// ApplyPaymentInput describes money to apply to a sale's schedule.
// At least one of SaleID or InstallmentID must be set.
type ApplyPaymentInput struct {
	SaleID         *uuid.UUID
	InstallmentID  *uuid.UUID
	Amount         decimal.Decimal
	PaymentDate    time.Time
	Method         string
	Reference      string
	Notes          string
	CardLast4      string
	Source         sales.PaymentSource
	SubscriptionID *uuid.UUID
}

// PaymentResult is the state after a successful application
type PaymentResult struct {
	Installment     *sales.Installment
	Sale            *sales.Sale
	Record          *sales.PaymentRecord
	LateFeeAssessed bool
	SaleLiquidated  bool
}

// LedgerService applies payments to installments and keeps sale status consistent
type LedgerService struct {
	scope          TransactionScope
	installments   sales.InstallmentRepository
	eventPublisher shared.EventPublisher
	settings       Settings
	now            func() time.Time
	logger         *zap.Logger
}

// LedgerServiceConfig holds the collaborators of LedgerService
type LedgerServiceConfig struct {
	Scope          TransactionScope
	Installments   sales.InstallmentRepository
	EventPublisher shared.EventPublisher
	Settings       Settings
	Clock          func() time.Time
	Logger         *zap.Logger
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(config LedgerServiceConfig) *LedgerService {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}
	settings := config.Settings
	if settings.LateFeeRate.IsNegative() {
		settings.LateFeeRate = decimal.Zero
	}
	if settings.Weights == (sales.TrancheWeights{}) {
		settings.Weights = sales.DefaultTrancheWeights()
	}
	return &LedgerService{
		scope:          config.Scope,
		installments:   config.Installments,
		eventPublisher: config.EventPublisher,
		settings:       settings,
		now:            clock,
		logger:         logger,
	}
}

// ApplyPayment applies one payment atomically: target resolution, late fee, installment
// update, receipt, and sale liquidation all commit or roll back together.
func (s *LedgerService) ApplyPayment(ctx context.Context, input ApplyPaymentInput) (*PaymentResult, error) {
	attrs := []attribute.KeyValue{
		telemetry.Amount(telemetry.AttrAmount, input.Amount),
		attribute.String(telemetry.AttrReference, input.Reference),
	}
	if input.SaleID != nil {
		attrs = append(attrs, attribute.String(telemetry.AttrSaleID, input.SaleID.String()))
	}
	if input.InstallmentID != nil {
		attrs = append(attrs, attribute.String(telemetry.AttrInstallmentID, input.InstallmentID.String()))
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "apply_payment", attrs...)
	result, err := s.applyPayment(ctx, input)
	telemetry.End(span, err)
	return result, err
}

func (s *LedgerService) applyPayment(ctx context.Context, input ApplyPaymentInput) (*PaymentResult, error) {
	if input.SaleID == nil && input.InstallmentID == nil {
		return nil, sales.ErrMissingPaymentTarget
	}
	if !input.Amount.IsPositive() {
		return nil, sales.ErrInvalidPaymentAmount
	}
	if input.PaymentDate.IsZero() {
		input.PaymentDate = s.now()
	}
	if input.Source == "" {
		input.Source = sales.PaymentSourceManual
	}

	var (
		result *PaymentResult
		events []shared.DomainEvent
	)
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if input.Reference != "" {
			exists, err := repos.PaymentRecords().ExistsByReference(ctx, input.Reference)
			if err != nil {
				return fmt.Errorf("ledger: check payment reference: %w", err)
			}
			if exists {
				return sales.ErrDuplicatePaymentRef
			}
		}

		inst, err := s.resolveTarget(ctx, repos, input)
		if err != nil {
			return err
		}
		if inst.IsPaid() {
			return sales.ErrInstallmentAlreadyPaid
		}

		// Installment rows are locked first, the sale row second.
		sale, err := repos.Sales().FindByIDForUpdate(ctx, inst.SaleID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return sales.ErrSaleNotFound
			}
			return fmt.Errorf("ledger: lock sale: %w", err)
		}
		if sale.Status == sales.SaleStatusCancelled {
			return sales.ErrSaleCancelled
		}

		feeAssessed := inst.AssessLateFee(input.PaymentDate, s.settings.LateFeeRate)
		if err := inst.ApplyPayment(sales.PaymentApplication{
			Amount:    input.Amount,
			PaidAt:    input.PaymentDate,
			Method:    input.Method,
			Reference: input.Reference,
			CardLast4: input.CardLast4,
			Notes:     input.Notes,
		}); err != nil {
			return err
		}
		if err := repos.Installments().Update(ctx, inst); err != nil {
			return fmt.Errorf("ledger: save installment: %w", err)
		}

		record := sales.NewPaymentRecord(input.Source, input.Amount, input.PaymentDate,
			input.Method, input.Reference, input.CardLast4).ForInstallment(inst)
		record.SubscriptionID = input.SubscriptionID
		if err := repos.PaymentRecords().Create(ctx, record); err != nil {
			return fmt.Errorf("ledger: write payment record: %w", err)
		}

		events = append(events, inst.GetDomainEvents()...)
		inst.ClearDomainEvents()

		liquidated := false
		if inst.IsPaid() {
			unpaid, err := repos.Installments().CountUnpaidBySale(ctx, sale.ID)
			if err != nil {
				return fmt.Errorf("ledger: count unpaid installments: %w", err)
			}
			if unpaid == 0 && sale.Status != sales.SaleStatusLiquidated {
				if err := sale.Liquidate(input.PaymentDate); err != nil {
					return err
				}
				if err := repos.Sales().Update(ctx, sale); err != nil {
					return fmt.Errorf("ledger: liquidate sale: %w", err)
				}
				events = append(events, sale.GetDomainEvents()...)
				sale.ClearDomainEvents()
				liquidated = true
			}
		}

		result = &PaymentResult{
			Installment:     inst,
			Sale:            sale,
			Record:          record,
			LateFeeAssessed: feeAssessed,
			SaleLiquidated:  liquidated,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment applied",
		zap.String("installment_id", result.Installment.ID.String()),
		zap.String("sale_id", result.Sale.ID.String()),
		zap.String("amount", input.Amount.StringFixed(2)),
		zap.String("status", string(result.Installment.Status)),
		zap.String("source", string(input.Source)),
		zap.Bool("late_fee", result.LateFeeAssessed),
		zap.Bool("sale_liquidated", result.SaleLiquidated))

	s.publish(ctx, events)
	return result, nil
}

// resolveTarget locks and returns the installment a payment applies to
func (s *LedgerService) resolveTarget(ctx context.Context, repos TransactionalRepositories, input ApplyPaymentInput) (*sales.Installment, error) {
	if input.InstallmentID != nil {
		inst, err := repos.Installments().FindByIDForUpdate(ctx, *input.InstallmentID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, sales.ErrInstallmentNotFound
			}
			return nil, fmt.Errorf("ledger: lock installment: %w", err)
		}
		if input.SaleID != nil && *input.SaleID != inst.SaleID {
			return nil, sales.ErrInstallmentSaleMismatch
		}
		return inst, nil
	}

	open, err := repos.Installments().FindOpenBySaleForUpdate(ctx, *input.SaleID)
	if err != nil {
		return nil, fmt.Errorf("ledger: lock open installments: %w", err)
	}
	if len(open) == 0 {
		if _, err := repos.Sales().FindByID(ctx, *input.SaleID); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, sales.ErrSaleNotFound
			}
			return nil, fmt.Errorf("ledger: load sale: %w", err)
		}
		return nil, sales.ErrNoEligibleInstallment
	}
	next := sales.SelectNextInstallment(open, input.PaymentDate)
	if next == nil {
		return nil, sales.ErrNoEligibleInstallment
	}
	return next, nil
}

// MarkOverdue moves every pendiente installment whose due date has passed to atrasado.
// Returns the number of rows changed.
func (s *LedgerService) MarkOverdue(ctx context.Context, asOf time.Time) (int, error) {
	y, m, d := asOf.Date()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	changed, err := s.installments.MarkOverdueBefore(ctx, startOfDay)
	if err != nil {
		return 0, fmt.Errorf("ledger: mark installments overdue: %w", err)
	}
	if changed > 0 {
		s.logger.Info("Installments marked overdue", zap.Int64("count", changed))
	}
	return int(changed), nil
}

// AppendInstallmentNote adds a note to the installment carrying the payment reference
func (s *LedgerService) AppendInstallmentNote(ctx context.Context, reference, note string) (*sales.Installment, error) {
	if reference == "" {
		return nil, sales.ErrInstallmentNotFound
	}
	return s.modifyInstallment(ctx, func(repo sales.InstallmentRepository) (*sales.Installment, error) {
		return repo.FindByReferenceForUpdate(ctx, reference)
	}, func(inst *sales.Installment) bool {
		inst.AppendNote(note)
		return true
	})
}

// AppendNoteToInstallment adds a note to an installment by id
func (s *LedgerService) AppendNoteToInstallment(ctx context.Context, installmentID uuid.UUID, note string) (*sales.Installment, error) {
	return s.modifyInstallment(ctx, func(repo sales.InstallmentRepository) (*sales.Installment, error) {
		return repo.FindByIDForUpdate(ctx, installmentID)
	}, func(inst *sales.Installment) bool {
		inst.AppendNote(note)
		return true
	})
}

// RecordCardLast4 stores card digits on the installment paid with reference, if not already known
func (s *LedgerService) RecordCardLast4(ctx context.Context, reference, last4 string) error {
	if last4 == "" {
		return nil
	}
	if reference == "" {
		return sales.ErrInstallmentNotFound
	}
	_, err := s.modifyInstallment(ctx, func(repo sales.InstallmentRepository) (*sales.Installment, error) {
		return repo.FindByReferenceForUpdate(ctx, reference)
	}, func(inst *sales.Installment) bool {
		if inst.CardLast4 == last4 {
			return false
		}
		inst.CardLast4 = last4
		inst.Touch()
		return true
	})
	return err
}

// modifyInstallment loads an installment under a row lock, applies change and saves it in
// the same transaction, so concurrent payments are never overwritten with stale amounts.
func (s *LedgerService) modifyInstallment(
	ctx context.Context,
	load func(repo sales.InstallmentRepository) (*sales.Installment, error),
	change func(inst *sales.Installment) bool,
) (*sales.Installment, error) {
	var result *sales.Installment
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		inst, err := load(repos.Installments())
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return sales.ErrInstallmentNotFound
			}
			return fmt.Errorf("ledger: lock installment: %w", err)
		}
		if change(inst) {
			if err := repos.Installments().Update(ctx, inst); err != nil {
				return fmt.Errorf("ledger: save installment: %w", err)
			}
		}
		result = inst
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FindInstallmentByReference returns the installment paid with an external reference
func (s *LedgerService) FindInstallmentByReference(ctx context.Context, reference string) (*sales.Installment, error) {
	if reference == "" {
		return nil, sales.ErrInstallmentNotFound
	}
	inst, err := s.installments.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, sales.ErrInstallmentNotFound
		}
		return nil, err
	}
	return inst, nil
}

// GetInstallment returns one installment
func (s *LedgerService) GetInstallment(ctx context.Context, id uuid.UUID) (*sales.Installment, error) {
	inst, err := s.installments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, sales.ErrInstallmentNotFound
		}
		return nil, err
	}
	return inst, nil
}

// publish sends events after commit. Failures are logged; the payment already stands.
func (s *LedgerService) publish(ctx context.Context, events []shared.DomainEvent) {
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Error("Failed to publish ledger events", zap.Error(err), zap.Int("count", len(events)))
	}
}
