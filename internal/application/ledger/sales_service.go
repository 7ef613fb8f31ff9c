package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/domain/sales"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RegisterSaleInput describes a new installment sale
type RegisterSaleInput struct {
	CustomerID  uuid.UUID
	VendorID    uuid.UUID
	PropertyRef string
	TotalAmount decimal.Decimal
	DownPayment decimal.Decimal
	TermMonths  int
	AnnualRate  decimal.Decimal
	Method      sales.FinancingMethod
	StartDate   time.Time
}

// SaleSchedule is a sale with its amortization rows and commission tranches
type SaleSchedule struct {
	Sale         *sales.Sale
	Installments []sales.Installment
	Commissions  []sales.Commission
}

// SimulateAmortizationInput is a what-if schedule request
type SimulateAmortizationInput struct {
	Amount     decimal.Decimal
	TermMonths int
	AnnualRate decimal.Decimal
	Method     sales.FinancingMethod
	StartDate  time.Time
}

// AmortizationSimulation is a schedule that was not persisted
type AmortizationSimulation struct {
	Rows          []sales.ScheduleRow
	TotalPaid     decimal.Decimal
	TotalInterest decimal.Decimal
}

// SimulateCommissionInput is a what-if commission request.
// Overrides replace the matching part of the vendor's stored scheme.
type SimulateCommissionInput struct {
	Amount             decimal.Decimal
	VendorID           uuid.UUID
	SchemeOverride     *sales.SchemeKind
	PercentageOverride *decimal.Decimal
	FixedOverride      *decimal.Decimal
}

// SalesService registers sales and runs the amortization and commission simulators
type SalesService struct {
	scope        TransactionScope
	sales        sales.SaleRepository
	installments sales.InstallmentRepository
	schemes      sales.CommissionSchemeRepository
	commissions  sales.CommissionRepository
	weights      sales.TrancheWeights
	now          func() time.Time
	logger       *zap.Logger
}

// SalesServiceConfig holds the collaborators of SalesService
type SalesServiceConfig struct {
	Scope        TransactionScope
	Sales        sales.SaleRepository
	Installments sales.InstallmentRepository
	Schemes      sales.CommissionSchemeRepository
	Commissions  sales.CommissionRepository
	Weights      sales.TrancheWeights
	Clock        func() time.Time
	Logger       *zap.Logger
}

// NewSalesService creates a new SalesService
func NewSalesService(config SalesServiceConfig) *SalesService {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}
	weights := config.Weights
	if weights == (sales.TrancheWeights{}) {
		weights = sales.DefaultTrancheWeights()
	}
	return &SalesService{
		scope:        config.Scope,
		sales:        config.Sales,
		installments: config.Installments,
		schemes:      config.Schemes,
		commissions:  config.Commissions,
		weights:      weights,
		now:          clock,
		logger:       logger,
	}
}

// RegisterSale persists a sale together with its schedule and, when the vendor has a
// commission scheme, its three commission tranches.
func (s *SalesService) RegisterSale(ctx context.Context, input RegisterSaleInput) (*SaleSchedule, error) {
	startDate := input.StartDate
	if startDate.IsZero() {
		startDate = s.now()
	}
	sale, err := sales.NewSale(input.CustomerID, input.VendorID, input.PropertyRef, input.TotalAmount,
		input.DownPayment, input.TermMonths, input.AnnualRate, input.Method, startDate)
	if err != nil {
		return nil, err
	}

	rows, err := sales.GenerateSchedule(sale.ScheduleInput())
	if err != nil {
		return nil, err
	}
	installments := make([]sales.Installment, 0, len(rows))
	for _, row := range rows {
		installments = append(installments, *sales.NewInstallment(sale.ID, row))
	}

	var commissions []sales.Commission
	scheme, err := s.schemes.FindByVendor(ctx, input.VendorID)
	switch {
	case err == nil:
		result, err := sales.CalculateCommission(sale.TotalAmount, *scheme, s.weights)
		if err != nil {
			return nil, err
		}
		commissions = sales.NewCommissions(sale.ID, sale.VendorID, result)
	case errors.Is(err, shared.ErrNotFound):
		s.logger.Warn("Vendor has no commission scheme, sale registered without commissions",
			zap.String("vendor_id", input.VendorID.String()))
	default:
		return nil, fmt.Errorf("ledger: load commission scheme: %w", err)
	}

	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := repos.Sales().Create(ctx, sale); err != nil {
			return fmt.Errorf("ledger: create sale: %w", err)
		}
		if err := repos.Installments().CreateBatch(ctx, installments); err != nil {
			return fmt.Errorf("ledger: create schedule: %w", err)
		}
		if err := repos.Commissions().CreateBatch(ctx, commissions); err != nil {
			return fmt.Errorf("ledger: create commissions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Sale registered",
		zap.String("sale_id", sale.ID.String()),
		zap.String("method", string(sale.Method)),
		zap.Int("installments", len(installments)),
		zap.Int("commission_tranches", len(commissions)))

	return &SaleSchedule{Sale: sale, Installments: installments, Commissions: commissions}, nil
}

// GetSchedule returns a sale with its current installments and commissions
func (s *SalesService) GetSchedule(ctx context.Context, saleID uuid.UUID) (*SaleSchedule, error) {
	sale, err := s.sales.FindByID(ctx, saleID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, sales.ErrSaleNotFound
		}
		return nil, err
	}
	installments, err := s.installments.FindBySale(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("ledger: load schedule: %w", err)
	}
	commissions, err := s.commissions.FindBySale(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("ledger: load commissions: %w", err)
	}
	return &SaleSchedule{Sale: sale, Installments: installments, Commissions: commissions}, nil
}

// SimulateAmortization generates a schedule without persisting anything
func (s *SalesService) SimulateAmortization(input SimulateAmortizationInput) (*AmortizationSimulation, error) {
	startDate := input.StartDate
	if startDate.IsZero() {
		startDate = s.now()
	}
	rows, err := sales.GenerateSchedule(sales.ScheduleInput{
		Principal:  input.Amount,
		AnnualRate: input.AnnualRate,
		TermMonths: input.TermMonths,
		StartDate:  startDate,
		Method:     input.Method,
	})
	if err != nil {
		return nil, err
	}

	sim := &AmortizationSimulation{Rows: rows, TotalPaid: decimal.Zero, TotalInterest: decimal.Zero}
	for _, row := range rows {
		sim.TotalPaid = sim.TotalPaid.Add(row.Amount)
		sim.TotalInterest = sim.TotalInterest.Add(row.Interest)
	}
	return sim, nil
}

// SimulateCommission computes a commission from the vendor's scheme with optional overrides.
// A vendor without a stored scheme can still be simulated when a scheme override is given.
func (s *SalesService) SimulateCommission(ctx context.Context, input SimulateCommissionInput) (*sales.CommissionResult, error) {
	scheme := sales.CommissionScheme{VendorID: input.VendorID}
	stored, err := s.schemes.FindByVendor(ctx, input.VendorID)
	switch {
	case err == nil:
		scheme = *stored
	case errors.Is(err, shared.ErrNotFound):
		if input.SchemeOverride == nil {
			return nil, sales.ErrSchemeNotFound
		}
	default:
		return nil, fmt.Errorf("ledger: load commission scheme: %w", err)
	}

	if input.SchemeOverride != nil {
		scheme.Kind = *input.SchemeOverride
	}
	if input.PercentageOverride != nil {
		scheme.Percentage = *input.PercentageOverride
	}
	if input.FixedOverride != nil {
		scheme.FixedAmount = *input.FixedOverride
	}

	return sales.CalculateCommission(input.Amount, scheme, s.weights)
}
