package sales

import (
	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event type names
const (
	EventTypeInstallmentPaid = "InstallmentPaid"
	EventTypeSaleLiquidated  = "SaleLiquidated"
)

// InstallmentPaidEvent is raised when an installment becomes fully paid
type InstallmentPaidEvent struct {
	shared.BaseDomainEvent
	SaleID     uuid.UUID       `json:"sale_id"`
	Number     int             `json:"numero_pago"`
	AmountPaid decimal.Decimal `json:"monto_pagado"`
	LateFee    decimal.Decimal `json:"mora"`
	Reference  string          `json:"referencia"`
}

// NewInstallmentPaidEvent creates a new InstallmentPaidEvent
func NewInstallmentPaidEvent(i *Installment) *InstallmentPaidEvent {
	return &InstallmentPaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInstallmentPaid, "Installment", i.ID),
		SaleID:          i.SaleID,
		Number:          i.Number,
		AmountPaid:      i.AmountPaid,
		LateFee:         i.LateFee,
		Reference:       i.PaymentReference,
	}
}

// SaleLiquidatedEvent is raised when the last installment of a sale is paid
type SaleLiquidatedEvent struct {
	shared.BaseDomainEvent
	CustomerID  uuid.UUID       `json:"customer_id"`
	VendorID    uuid.UUID       `json:"vendor_id"`
	TotalAmount decimal.Decimal `json:"monto_total"`
}

// NewSaleLiquidatedEvent creates a new SaleLiquidatedEvent
func NewSaleLiquidatedEvent(s *Sale) *SaleLiquidatedEvent {
	return &SaleLiquidatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSaleLiquidated, "Sale", s.ID),
		CustomerID:      s.CustomerID,
		VendorID:        s.VendorID,
		TotalAmount:     s.TotalAmount,
	}
}
