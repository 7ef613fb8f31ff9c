package sales

import (
	"time"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PaymentRecord is an immutable receipt for money received
type PaymentRecord struct {
	shared.BaseEntity
	SaleID         *uuid.UUID      `gorm:"type:uuid;index"`
	InstallmentID  *uuid.UUID      `gorm:"type:uuid;index"`
	SubscriptionID *uuid.UUID      `gorm:"type:uuid;index"`
	Amount         decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Method         string          `gorm:"type:varchar(30)"`
	Reference      *string         `gorm:"type:varchar(255);uniqueIndex"`
	CardLast4      string          `gorm:"type:varchar(4)"`
	Source         PaymentSource   `gorm:"type:varchar(20);not null"`
	PaidAt         time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PaymentRecord) TableName() string {
	return "payment_records"
}

// NewPaymentRecord creates a receipt. An empty reference is stored as NULL so it never collides.
func NewPaymentRecord(source PaymentSource, amount decimal.Decimal, paidAt time.Time, method, reference, cardLast4 string) *PaymentRecord {
	rec := &PaymentRecord{
		BaseEntity: shared.NewBaseEntity(),
		Amount:     amount,
		Method:     method,
		CardLast4:  cardLast4,
		Source:     source,
		PaidAt:     paidAt,
	}
	if reference != "" {
		rec.Reference = &reference
	}
	return rec
}

// ForInstallment links the receipt to an installment of a sale
func (r *PaymentRecord) ForInstallment(inst *Installment) *PaymentRecord {
	r.InstallmentID = &inst.ID
	r.SaleID = &inst.SaleID
	return r
}
