package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"gorm.io/datatypes"
)

// WebhookEventStatus is the processing state of an ingested gateway notification
type WebhookEventStatus string

const (
	WebhookEventPending   WebhookEventStatus = "pendiente"
	WebhookEventProcessed WebhookEventStatus = "procesado"
	WebhookEventFailed    WebhookEventStatus = "fallido"
)

// IsValid checks if the status is a valid WebhookEventStatus
func (s WebhookEventStatus) IsValid() bool {
	switch s {
	case WebhookEventPending, WebhookEventProcessed, WebhookEventFailed:
		return true
	}
	return false
}

// String returns the string representation of WebhookEventStatus
func (s WebhookEventStatus) String() string {
	return string(s)
}

// WebhookEvent is the audit and idempotency record of one gateway notification
type WebhookEvent struct {
	shared.BaseEntity
	ExternalEventID   string             `gorm:"type:varchar(255);not null;uniqueIndex"`
	EventType         string             `gorm:"type:varchar(100);not null;index"`
	Status            WebhookEventStatus `gorm:"type:varchar(20);not null;default:'pendiente';index"`
	ErrorMessage      string             `gorm:"type:text"`
	Attempts          int                `gorm:"not null;default:0"`
	SignatureVerified bool               `gorm:"not null;default:false"`
	Payload           datatypes.JSON     `gorm:"type:jsonb"`
	ReceivedAt        time.Time          `gorm:"not null"`
	ProcessedAt       *time.Time
	LinkedRecordID    *uuid.UUID `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (WebhookEvent) TableName() string {
	return "webhook_events"
}

// NewWebhookEvent creates a pending log row for a first-seen event
func NewWebhookEvent(externalID, eventType string, payload []byte, verified bool) *WebhookEvent {
	return &WebhookEvent{
		BaseEntity:        shared.NewBaseEntity(),
		ExternalEventID:   externalID,
		EventType:         eventType,
		Status:            WebhookEventPending,
		Attempts:          1,
		SignatureVerified: verified,
		Payload:           datatypes.JSON(payload),
		ReceivedAt:        time.Now(),
	}
}

// IsProcessed returns true if the event was already handled successfully
func (e *WebhookEvent) IsProcessed() bool {
	return e.Status == WebhookEventProcessed
}

// BeginAttempt records another delivery of an event that is not yet processed
func (e *WebhookEvent) BeginAttempt() {
	e.Attempts++
	e.Status = WebhookEventPending
	e.Touch()
}

// MarkProcessed closes the row successfully
func (e *WebhookEvent) MarkProcessed(linkedID *uuid.UUID) {
	now := time.Now()
	e.Status = WebhookEventProcessed
	e.ErrorMessage = ""
	e.ProcessedAt = &now
	if linkedID != nil {
		e.LinkedRecordID = linkedID
	}
	e.UpdatedAt = now
}

// MarkFailed closes the row with the handler error
func (e *WebhookEvent) MarkFailed(message string) {
	now := time.Now()
	e.Status = WebhookEventFailed
	e.ErrorMessage = message
	e.ProcessedAt = &now
	e.UpdatedAt = now
}
