package sales

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InstallmentStatus represents the payment state of one amortization row
type InstallmentStatus string

const (
	// InstallmentPending is unpaid and not yet due
	InstallmentPending InstallmentStatus = "pendiente"
	// InstallmentOverdue is unpaid and past its due date
	InstallmentOverdue InstallmentStatus = "atrasado"
	// InstallmentPartial has received money but is not fully covered
	InstallmentPartial InstallmentStatus = "parcial"
	// InstallmentPaid is fully covered. Terminal.
	InstallmentPaid InstallmentStatus = "pagado"
)

// IsValid checks if the status is a valid InstallmentStatus
func (s InstallmentStatus) IsValid() bool {
	switch s {
	case InstallmentPending, InstallmentOverdue, InstallmentPartial, InstallmentPaid:
		return true
	}
	return false
}

// String returns the string representation of InstallmentStatus
func (s InstallmentStatus) String() string {
	return string(s)
}

// IsTerminal returns true for pagado
func (s InstallmentStatus) IsTerminal() bool {
	return s == InstallmentPaid
}

// PaymentSource tells where money applied to an installment came from
type PaymentSource string

const (
	PaymentSourceManual       PaymentSource = "manual"
	PaymentSourceWebhook      PaymentSource = "webhook"
	PaymentSourceSubscription PaymentSource = "subscription"
)

// Installment is one scheduled payment of a financed sale (an amortization row)
type Installment struct {
	shared.BaseAggregateRoot
	SaleID           uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_pagos_venta_numero,priority:1"`
	Number           int               `gorm:"column:numero_pago;not null;uniqueIndex:idx_pagos_venta_numero,priority:2"`
	DueDate          time.Time         `gorm:"column:fecha_vencimiento;not null;index"`
	Amount           decimal.Decimal   `gorm:"column:monto;type:decimal(18,2);not null"`
	Principal        decimal.Decimal   `gorm:"column:capital;type:decimal(18,2);not null"`
	Interest         decimal.Decimal   `gorm:"column:interes;type:decimal(18,2);not null"`
	RemainingBalance decimal.Decimal   `gorm:"column:saldo_restante;type:decimal(18,2);not null"`
	AmountPaid       decimal.Decimal   `gorm:"column:monto_pagado;type:decimal(18,2);not null;default:0"`
	LateFee          decimal.Decimal   `gorm:"column:mora;type:decimal(18,2);not null;default:0"`
	Status           InstallmentStatus `gorm:"column:estatus;type:varchar(20);not null;default:'pendiente';index"`
	PaymentMethod    string            `gorm:"column:metodo_pago;type:varchar(30)"`
	PaidAt           *time.Time        `gorm:"column:fecha_pago"`
	PaymentReference string            `gorm:"column:referencia_pago;type:varchar(255);index"`
	CardLast4        string            `gorm:"column:ultimos_digitos;type:varchar(4)"`
	Notes            string            `gorm:"column:notas;type:text"`
}

// TableName returns the table name for GORM
func (Installment) TableName() string {
	return "pagos"
}

// NewInstallment creates a pending installment from a schedule row
func NewInstallment(saleID uuid.UUID, row ScheduleRow) *Installment {
	return &Installment{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SaleID:            saleID,
		Number:            row.Number,
		DueDate:           row.DueDate,
		Amount:            row.Amount,
		Principal:         row.Principal,
		Interest:          row.Interest,
		RemainingBalance:  row.RemainingBalance,
		AmountPaid:        decimal.Zero,
		LateFee:           decimal.Zero,
		Status:            InstallmentPending,
	}
}

// Owed returns the amount due plus any late fee
func (i *Installment) Owed() decimal.Decimal {
	return i.Amount.Add(i.LateFee)
}

// Outstanding returns what is still to be paid
func (i *Installment) Outstanding() decimal.Decimal {
	return i.Owed().Sub(i.AmountPaid)
}

// IsPaid returns true if the installment is fully paid
func (i *Installment) IsPaid() bool {
	return i.Status == InstallmentPaid
}

// IsPastDue reports whether asOf falls on a calendar day after the due date
func (i *Installment) IsPastDue(asOf time.Time) bool {
	return dateOnly(asOf).After(dateOnly(i.DueDate))
}

// AssessLateFee charges the late fee once when paymentDate is past due.
// Returns true when a fee was added by this call.
func (i *Installment) AssessLateFee(paymentDate time.Time, rate decimal.Decimal) bool {
	if i.IsPaid() || !i.LateFee.IsZero() || !i.IsPastDue(paymentDate) {
		return false
	}
	i.LateFee = i.Amount.Mul(rate).Round(2)
	return i.LateFee.IsPositive()
}

// PaymentApplication is money being applied to one installment
type PaymentApplication struct {
	Amount    decimal.Decimal
	PaidAt    time.Time
	Method    string
	Reference string
	CardLast4 string
	Notes     string
}

// ApplyPayment adds money to the installment and moves it to parcial or pagado.
// The late fee must already be assessed for the payment date.
func (i *Installment) ApplyPayment(p PaymentApplication) error {
	if i.IsPaid() {
		return ErrInstallmentAlreadyPaid
	}
	if !p.Amount.IsPositive() {
		return ErrInvalidPaymentAmount
	}
	outstanding := i.Outstanding()
	if p.Amount.GreaterThan(outstanding) {
		return shared.NewDomainError("AMOUNT_EXCEEDS_BALANCE",
			fmt.Sprintf("Payment amount %s exceeds outstanding balance %s", p.Amount.StringFixed(2), outstanding.StringFixed(2)))
	}

	i.AmountPaid = i.AmountPaid.Add(p.Amount)
	paidAt := p.PaidAt
	i.PaidAt = &paidAt
	if p.Method != "" {
		i.PaymentMethod = p.Method
	}
	if p.Reference != "" {
		i.PaymentReference = p.Reference
	}
	if p.CardLast4 != "" {
		i.CardLast4 = p.CardLast4
	}
	switch {
	case p.Notes != "":
		i.AppendNote(p.Notes)
	case p.Reference != "":
		i.AppendNote("Ref: " + p.Reference)
	}

	if i.AmountPaid.Equal(i.Owed()) {
		i.Status = InstallmentPaid
		i.AddDomainEvent(NewInstallmentPaidEvent(i))
	} else {
		i.Status = InstallmentPartial
	}
	i.IncrementVersion()
	return nil
}

// AppendNote concatenates note to the existing free-text notes
func (i *Installment) AppendNote(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	if i.Notes == "" {
		i.Notes = note
	} else {
		i.Notes = i.Notes + "; " + note
	}
	i.Touch()
}

// lookupBucket places an installment in the pending or overdue group for target resolution.
// A parcial row falls in whichever group its due date implies on asOf.
func (i *Installment) lookupBucket(asOf time.Time) InstallmentStatus {
	switch i.Status {
	case InstallmentPending, InstallmentOverdue:
		return i.Status
	case InstallmentPartial:
		if i.IsPastDue(asOf) {
			return InstallmentOverdue
		}
		return InstallmentPending
	}
	return InstallmentPaid
}

// SelectNextInstallment picks the installment an unaddressed payment applies to:
// the lowest-numbered pending one, else the lowest-numbered overdue one.
// Returns nil if every candidate is paid.
func SelectNextInstallment(candidates []Installment, asOf time.Time) *Installment {
	var firstPending, firstOverdue *Installment
	for idx := range candidates {
		inst := &candidates[idx]
		switch inst.lookupBucket(asOf) {
		case InstallmentPending:
			if firstPending == nil || inst.Number < firstPending.Number {
				firstPending = inst
			}
		case InstallmentOverdue:
			if firstOverdue == nil || inst.Number < firstOverdue.Number {
				firstOverdue = inst
			}
		}
	}
	if firstPending != nil {
		return firstPending
	}
	return firstOverdue
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
