package sales

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// SaleStatus represents the lifecycle state of an installment sale
type SaleStatus string

const (
	// SaleStatusContract is an active sale with a signed contract and open installments
	SaleStatusContract SaleStatus = "contrato"
	// SaleStatusLiquidated is a fully paid sale
	SaleStatusLiquidated SaleStatus = "liquidado"
	// SaleStatusCancelled is a sale cancelled by the office
	SaleStatusCancelled SaleStatus = "cancelado"
)

// IsValid checks if the status is a valid SaleStatus
func (s SaleStatus) IsValid() bool {
	switch s {
	case SaleStatusContract, SaleStatusLiquidated, SaleStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of SaleStatus
func (s SaleStatus) String() string {
	return string(s)
}

// FinancingMethod selects how interest is allocated across installments
type FinancingMethod string

const (
	// MethodFrench is level-payment amortization
	MethodFrench FinancingMethod = "frances"
	// MethodGerman is constant-principal amortization
	MethodGerman FinancingMethod = "aleman"
)

// IsValid checks if the method is known
func (m FinancingMethod) IsValid() bool {
	return m == MethodFrench || m == MethodGerman
}

// String returns the string representation of FinancingMethod
func (m FinancingMethod) String() string {
	return string(m)
}

// Sale is the aggregate root for an installment sale of a property
type Sale struct {
	shared.BaseAggregateRoot
	CustomerID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	VendorID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	PropertyRef  string          `gorm:"type:varchar(100)"`
	TotalAmount  decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	DownPayment  decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	TermMonths   int             `gorm:"not null"`
	AnnualRate   decimal.Decimal `gorm:"type:decimal(9,4);not null;default:0"`
	Method       FinancingMethod `gorm:"type:varchar(20);not null"`
	StartDate    time.Time       `gorm:"not null"`
	Status       SaleStatus      `gorm:"type:varchar(20);not null;default:'contrato';index"`
	LiquidatedAt *time.Time
}

// TableName returns the table name for GORM
func (Sale) TableName() string {
	return "ventas"
}

// NewSale creates a new sale in contract status
func NewSale(customerID, vendorID uuid.UUID, propertyRef string, total, downPayment decimal.Decimal,
	termMonths int, annualRate decimal.Decimal, method FinancingMethod, startDate time.Time) (*Sale, error) {
	if customerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CUSTOMER", "Customer ID cannot be empty")
	}
	if vendorID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_VENDOR", "Vendor ID cannot be empty")
	}
	if total.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Sale total must be positive")
	}
	if downPayment.IsNegative() || downPayment.GreaterThanOrEqual(total) {
		return nil, shared.NewDomainError("INVALID_DOWN_PAYMENT", "Down payment must be between zero and the sale total")
	}
	if termMonths <= 0 {
		return nil, shared.NewDomainError("INVALID_TERM", "Term must be at least one month")
	}
	if annualRate.IsNegative() {
		return nil, shared.NewDomainError("INVALID_RATE", "Interest rate cannot be negative")
	}
	if !method.IsValid() {
		return nil, shared.NewDomainError("INVALID_METHOD", fmt.Sprintf("Unknown financing method %q", method))
	}

	return &Sale{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		CustomerID:        customerID,
		VendorID:          vendorID,
		PropertyRef:       propertyRef,
		TotalAmount:       total,
		DownPayment:       downPayment,
		TermMonths:        termMonths,
		AnnualRate:        annualRate,
		Method:            method,
		StartDate:         startDate,
		Status:            SaleStatusContract,
	}, nil
}

// FinancedPrincipal returns the amount financed through installments
func (s *Sale) FinancedPrincipal() decimal.Decimal {
	return s.TotalAmount.Sub(s.DownPayment)
}

// ScheduleInput builds the amortization input for this sale
func (s *Sale) ScheduleInput() ScheduleInput {
	return ScheduleInput{
		Principal:  s.FinancedPrincipal(),
		AnnualRate: s.AnnualRate,
		TermMonths: s.TermMonths,
		StartDate:  s.StartDate,
		Method:     s.Method,
	}
}

// AcceptsPayments reports whether installments of this sale may receive money
func (s *Sale) AcceptsPayments() bool {
	return s.Status == SaleStatusContract
}

// Liquidate transitions the sale to liquidado. Calling it on an already liquidated sale is a no-op.
func (s *Sale) Liquidate(at time.Time) error {
	switch s.Status {
	case SaleStatusLiquidated:
		return nil
	case SaleStatusCancelled:
		return shared.NewDomainError("SALE_CANCELLED", "Cannot liquidate a cancelled sale")
	}
	s.Status = SaleStatusLiquidated
	s.LiquidatedAt = &at
	s.IncrementVersion()
	s.AddDomainEvent(NewSaleLiquidatedEvent(s))
	return nil
}

// Cancel marks the sale as cancelled
func (s *Sale) Cancel() error {
	if s.Status != SaleStatusContract {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel sale in %s status", s.Status))
	}
	s.Status = SaleStatusCancelled
	s.IncrementVersion()
	return nil
}
