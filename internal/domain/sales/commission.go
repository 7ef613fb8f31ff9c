package sales

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// SchemeKind is how a vendor's commission is computed
type SchemeKind string

const (
	// SchemePercentage pays a percentage of the sale amount
	SchemePercentage SchemeKind = "porcentaje"
	// SchemeFixed pays a fixed amount per sale
	SchemeFixed SchemeKind = "fijo"
	// SchemeMixed pays a percentage plus a fixed amount
	SchemeMixed SchemeKind = "mixto"
)

// IsValid checks if the scheme kind is known
func (k SchemeKind) IsValid() bool {
	switch k {
	case SchemePercentage, SchemeFixed, SchemeMixed:
		return true
	}
	return false
}

// String returns the string representation of SchemeKind
func (k SchemeKind) String() string {
	return string(k)
}

// TrancheType is the sale milestone a commission portion is tied to
type TrancheType string

const (
	TrancheDownPayment TrancheType = "enganche"
	TrancheContract    TrancheType = "contrato"
	TrancheSettlement  TrancheType = "liquidacion"
)

// TrancheWeights are the percentage weights of the three tranches, in disbursement order
type TrancheWeights struct {
	DownPayment decimal.Decimal
	Contract    decimal.Decimal
	Settlement  decimal.Decimal
}

// DefaultTrancheWeights returns the standard 30/30/40 split
func DefaultTrancheWeights() TrancheWeights {
	return TrancheWeights{
		DownPayment: decimal.NewFromInt(30),
		Contract:    decimal.NewFromInt(30),
		Settlement:  decimal.NewFromInt(40),
	}
}

// Validate checks the weights are non-negative and sum to 100
func (w TrancheWeights) Validate() error {
	for _, v := range []decimal.Decimal{w.DownPayment, w.Contract, w.Settlement} {
		if v.IsNegative() {
			return fmt.Errorf("commission tranche weight cannot be negative: %s", v)
		}
	}
	if sum := w.DownPayment.Add(w.Contract).Add(w.Settlement); !sum.Equal(hundred) {
		return fmt.Errorf("commission tranche weights must sum to 100, got %s", sum)
	}
	return nil
}

// CommissionScheme is a vendor's commission configuration
type CommissionScheme struct {
	shared.BaseEntity
	VendorID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	Kind        SchemeKind      `gorm:"column:esquema;type:varchar(20);not null"`
	Percentage  decimal.Decimal `gorm:"column:porcentaje;type:decimal(9,4);not null;default:0"`
	FixedAmount decimal.Decimal `gorm:"column:monto_fijo;type:decimal(18,2);not null;default:0"`
}

// TableName returns the table name for GORM
func (CommissionScheme) TableName() string {
	return "esquemas_comision"
}

// Validate checks the scheme parameters
func (s CommissionScheme) Validate() error {
	if !s.Kind.IsValid() {
		return shared.NewDomainError("INVALID_COMMISSION_SCHEME", fmt.Sprintf("Unknown commission scheme %q", s.Kind))
	}
	if s.Percentage.IsNegative() || s.FixedAmount.IsNegative() {
		return shared.NewDomainError("INVALID_COMMISSION_SCHEME", "Commission percentage and fixed amount cannot be negative")
	}
	return nil
}

// TrancheAmount is one portion of a commission
type TrancheAmount struct {
	Type   TrancheType     `json:"tipo_comision"`
	Weight decimal.Decimal `json:"porcentaje"`
	Amount decimal.Decimal `json:"monto"`
}

// CommissionResult is the output of the commission engine
type CommissionResult struct {
	Total         decimal.Decimal `json:"monto_comision"`
	AppliedScheme SchemeKind      `json:"esquema_aplicado"`
	Percentage    decimal.Decimal `json:"porcentaje"`
	FixedAmount   decimal.Decimal `json:"monto_fijo"`
	Tranches      []TrancheAmount `json:"tramos"`
}

// CalculateCommission computes the total commission for a sale amount and splits it into tranches.
// Each tranche is rounded to cents and the settlement tranche takes the remainder.
func CalculateCommission(saleAmount decimal.Decimal, scheme CommissionScheme, weights TrancheWeights) (*CommissionResult, error) {
	if saleAmount.IsNegative() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Sale amount cannot be negative")
	}
	if err := scheme.Validate(); err != nil {
		return nil, err
	}
	if err := weights.Validate(); err != nil {
		return nil, shared.NewDomainError("INVALID_COMMISSION_WEIGHTS", err.Error())
	}

	var total decimal.Decimal
	switch scheme.Kind {
	case SchemePercentage:
		total = saleAmount.Mul(scheme.Percentage).Div(hundred)
	case SchemeFixed:
		total = scheme.FixedAmount
	case SchemeMixed:
		total = saleAmount.Mul(scheme.Percentage).Div(hundred).Add(scheme.FixedAmount)
	}
	total = total.Round(2)

	down := total.Mul(weights.DownPayment).Div(hundred).Round(2)
	contract := total.Mul(weights.Contract).Div(hundred).Round(2)
	settlement := total.Sub(down).Sub(contract)

	return &CommissionResult{
		Total:         total,
		AppliedScheme: scheme.Kind,
		Percentage:    scheme.Percentage,
		FixedAmount:   scheme.FixedAmount,
		Tranches: []TrancheAmount{
			{Type: TrancheDownPayment, Weight: weights.DownPayment, Amount: down},
			{Type: TrancheContract, Weight: weights.Contract, Amount: contract},
			{Type: TrancheSettlement, Weight: weights.Settlement, Amount: settlement},
		},
	}, nil
}

// CommissionStatus is the disbursement state of a commission tranche
type CommissionStatus string

const (
	CommissionPending CommissionStatus = "pendiente"
	CommissionPaid    CommissionStatus = "pagada"
)

// Commission is a persisted commission tranche owed to a vendor for a sale
type Commission struct {
	shared.BaseEntity
	SaleID   uuid.UUID        `gorm:"type:uuid;not null;index"`
	VendorID uuid.UUID        `gorm:"type:uuid;not null;index"`
	Type     TrancheType      `gorm:"column:tipo_comision;type:varchar(20);not null"`
	Amount   decimal.Decimal  `gorm:"column:monto;type:decimal(18,2);not null"`
	Status   CommissionStatus `gorm:"column:estatus;type:varchar(20);not null;default:'pendiente'"`
}

// TableName returns the table name for GORM
func (Commission) TableName() string {
	return "comisiones"
}

// NewCommissions builds the tranche rows for a sale
func NewCommissions(saleID, vendorID uuid.UUID, result *CommissionResult) []Commission {
	rows := make([]Commission, 0, len(result.Tranches))
	for _, t := range result.Tranches {
		rows = append(rows, Commission{
			BaseEntity: shared.NewBaseEntity(),
			SaleID:     saleID,
			VendorID:   vendorID,
			Type:       t.Type,
			Amount:     t.Amount,
			Status:     CommissionPending,
		})
	}
	return rows
}
