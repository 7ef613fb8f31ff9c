package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// RefundStatus represents the status of a refund
type RefundStatus string

const (
	// RefundPending awaits approval or rejection
	RefundPending RefundStatus = "pendiente"
	// RefundApproved was approved; the gateway outcome is not known yet
	RefundApproved RefundStatus = "aprobado"
	// RefundRejected was rejected by an approver
	RefundRejected RefundStatus = "rechazado"
	// RefundProcessed was confirmed by the gateway
	RefundProcessed RefundStatus = "procesado"
	// RefundFailed was refused by the gateway; it may be retried
	RefundFailed RefundStatus = "fallido"
)

// IsValid checks if the status is a valid RefundStatus
func (s RefundStatus) IsValid() bool {
	switch s {
	case RefundPending, RefundApproved, RefundRejected, RefundProcessed, RefundFailed:
		return true
	}
	return false
}

// String returns the string representation of RefundStatus
func (s RefundStatus) String() string {
	return string(s)
}

// CountsAgainstPaid reports whether the refund amount reserves part of the paid balance
func (s RefundStatus) CountsAgainstPaid() bool {
	return s == RefundPending || s == RefundApproved || s == RefundProcessed
}

// Refund returns money paid on an installment to the customer
type Refund struct {
	shared.BaseAggregateRoot
	InstallmentID    uuid.UUID       `gorm:"column:pago_id;type:uuid;not null;index"`
	Amount           decimal.Decimal `gorm:"column:monto_reembolsado;type:decimal(18,2);not null"`
	Reason           string          `gorm:"column:motivo;type:text"`
	Status           RefundStatus    `gorm:"column:estatus;type:varchar(20);not null;default:'pendiente';index"`
	RequestedBy      uuid.UUID       `gorm:"type:uuid;not null"`
	RequesterEmail   string          `gorm:"type:varchar(255)"`
	ApprovedBy       *uuid.UUID      `gorm:"type:uuid"`
	RejectedBy       *uuid.UUID      `gorm:"type:uuid"`
	RejectionReason  string          `gorm:"type:text"`
	ExternalRefundID string          `gorm:"type:varchar(255);index"`
	Notes            string          `gorm:"column:notas;type:text"`
	ProcessedAt      *time.Time
}

// TableName returns the table name for GORM
func (Refund) TableName() string {
	return "reembolsos"
}

// NewRefund creates a pending refund request
func NewRefund(installmentID uuid.UUID, amount decimal.Decimal, reason string, requestedBy uuid.UUID, requesterEmail string) (*Refund, error) {
	if installmentID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PAYMENT", "Payment ID cannot be empty")
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Refund amount must be positive")
	}
	if requestedBy == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_REQUESTER", "Requester cannot be empty")
	}

	r := &Refund{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		InstallmentID:     installmentID,
		Amount:            amount,
		Reason:            strings.TrimSpace(reason),
		Status:            RefundPending,
		RequestedBy:       requestedBy,
		RequesterEmail:    requesterEmail,
	}
	r.AddDomainEvent(NewRefundEvent(EventTypeRefundRequested, r))
	return r, nil
}

// Approve moves a pending refund to aprobado
func (r *Refund) Approve(approverID uuid.UUID) error {
	if r.Status != RefundPending {
		return invalidRefundTransition("approve", r.Status)
	}
	if approverID == uuid.Nil {
		return shared.NewDomainError("INVALID_APPROVER", "Approver cannot be empty")
	}
	r.Status = RefundApproved
	r.ApprovedBy = &approverID
	r.IncrementVersion()
	return nil
}

// Reopen moves a failed refund back to aprobado so the gateway command can be retried.
// A refund the gateway already issued an id for is never resubmitted.
func (r *Refund) Reopen(actorID uuid.UUID) error {
	if r.Status != RefundFailed && r.Status != RefundApproved {
		return invalidRefundTransition("retry", r.Status)
	}
	if r.ExternalRefundID != "" {
		return shared.NewDomainError("INVALID_REFUND_STATE",
			fmt.Sprintf("Cannot retry refund already submitted to the gateway as %s", r.ExternalRefundID))
	}
	if r.ApprovedBy == nil && actorID != uuid.Nil {
		r.ApprovedBy = &actorID
	}
	r.Status = RefundApproved
	r.IncrementVersion()
	return nil
}

// Reject moves a pending refund to rechazado
func (r *Refund) Reject(rejecterID uuid.UUID, reason string) error {
	if r.Status != RefundPending {
		return invalidRefundTransition("reject", r.Status)
	}
	if rejecterID == uuid.Nil {
		return shared.NewDomainError("INVALID_REJECTER", "Rejecter cannot be empty")
	}
	r.Status = RefundRejected
	r.RejectedBy = &rejecterID
	r.RejectionReason = strings.TrimSpace(reason)
	r.IncrementVersion()
	r.AddDomainEvent(NewRefundEvent(EventTypeRefundRejected, r))
	return nil
}

// RecordGatewaySuccess stores the gateway refund id. A confirmed refund becomes procesado;
// a refund the gateway still reports as pending stays aprobado until its webhook arrives.
func (r *Refund) RecordGatewaySuccess(externalRefundID string, confirmed bool, at time.Time) error {
	if r.Status != RefundApproved {
		return invalidRefundTransition("process", r.Status)
	}
	r.ExternalRefundID = externalRefundID
	if confirmed {
		r.Status = RefundProcessed
		r.ProcessedAt = &at
		r.AddDomainEvent(NewRefundEvent(EventTypeRefundProcessed, r))
	} else {
		r.AddDomainEvent(NewRefundEvent(EventTypeRefundApproved, r))
	}
	r.IncrementVersion()
	return nil
}

// RecordGatewayFailure marks the refund fallido and keeps the gateway error in the notes
func (r *Refund) RecordGatewayFailure(message string) error {
	if r.Status != RefundApproved {
		return invalidRefundTransition("fail", r.Status)
	}
	r.Status = RefundFailed
	r.AppendNote("Gateway error: " + message)
	r.IncrementVersion()
	r.AddDomainEvent(NewRefundEvent(EventTypeRefundFailed, r))
	return nil
}

// ApplyGatewayStatus sets the state reported by a gateway notification. The gateway is
// authoritative, so any local state is overwritten. Returns false if nothing changed.
func (r *Refund) ApplyGatewayStatus(status RefundStatus, externalRefundID string, at time.Time) bool {
	if externalRefundID != "" {
		r.ExternalRefundID = externalRefundID
	}
	if r.Status == status {
		return false
	}
	if r.Status != RefundPending && r.Status != RefundApproved {
		r.AppendNote(fmt.Sprintf("Gateway reported %s over local %s", status, r.Status))
	}
	r.Status = status
	switch status {
	case RefundProcessed:
		r.ProcessedAt = &at
		r.AddDomainEvent(NewRefundEvent(EventTypeRefundProcessed, r))
	case RefundFailed:
		r.AddDomainEvent(NewRefundEvent(EventTypeRefundFailed, r))
	}
	r.IncrementVersion()
	return true
}

// AppendNote concatenates note to the refund notes
func (r *Refund) AppendNote(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	if r.Notes == "" {
		r.Notes = note
	} else {
		r.Notes = r.Notes + "; " + note
	}
}

func invalidRefundTransition(action string, status RefundStatus) error {
	return shared.NewDomainError("INVALID_REFUND_STATE", fmt.Sprintf("Cannot %s refund in %s status", action, status))
}
