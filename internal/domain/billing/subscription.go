package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"gorm.io/datatypes"
)

// SubscriptionStatus mirrors the gateway subscription lifecycle
type SubscriptionStatus string

const (
	SubscriptionIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionTrialing          SubscriptionStatus = "trialing"
	SubscriptionActive            SubscriptionStatus = "active"
	SubscriptionPastDue           SubscriptionStatus = "past_due"
	SubscriptionUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionPaused            SubscriptionStatus = "paused"
	SubscriptionCanceled          SubscriptionStatus = "canceled"
)

// ParseSubscriptionStatus maps a gateway status string, defaulting unknown values to incomplete
func ParseSubscriptionStatus(s string) SubscriptionStatus {
	switch st := SubscriptionStatus(s); st {
	case SubscriptionIncomplete, SubscriptionIncompleteExpired, SubscriptionTrialing, SubscriptionActive,
		SubscriptionPastDue, SubscriptionUnpaid, SubscriptionPaused, SubscriptionCanceled:
		return st
	}
	return SubscriptionIncomplete
}

// String returns the string representation of SubscriptionStatus
func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsEntitled reports whether the status grants the customer access
func (s SubscriptionStatus) IsEntitled() bool {
	return s == SubscriptionActive || s == SubscriptionTrialing
}

// SubscriptionSnapshot is the gateway's view of a subscription at notification time
type SubscriptionSnapshot struct {
	ExternalID         string
	ExternalCustomerID string
	Status             SubscriptionStatus
	PriceID            string
	PeriodStart        *time.Time
	PeriodEnd          *time.Time
	CanceledAt         *time.Time
	Metadata           map[string]string
}

// Subscription is the local mirror of a gateway subscription
type Subscription struct {
	shared.BaseAggregateRoot
	SaleID             *uuid.UUID         `gorm:"type:uuid;index"`
	CustomerID         *uuid.UUID         `gorm:"type:uuid;index"`
	ExternalID         string             `gorm:"type:varchar(255);not null;uniqueIndex"`
	ExternalCustomerID string             `gorm:"type:varchar(255);index"`
	Status             SubscriptionStatus `gorm:"type:varchar(30);not null;index"`
	PriceID            string             `gorm:"type:varchar(255)"`
	PreviousPriceID    string             `gorm:"type:varchar(255)"`
	PlanChangedAt      *time.Time
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CanceledAt         *time.Time
	Metadata           datatypes.JSONMap `gorm:"type:jsonb"`
}

// TableName returns the table name for GORM
func (Subscription) TableName() string {
	return "subscriptions"
}

// NewSubscription creates the mirror from a subscription-created notification
func NewSubscription(snap SubscriptionSnapshot) (*Subscription, error) {
	if snap.ExternalID == "" {
		return nil, shared.NewDomainError("INVALID_SUBSCRIPTION", "External subscription ID cannot be empty")
	}
	return &Subscription{
		BaseAggregateRoot:  shared.NewBaseAggregateRoot(),
		ExternalID:         snap.ExternalID,
		ExternalCustomerID: snap.ExternalCustomerID,
		Status:             snap.Status,
		PriceID:            snap.PriceID,
		CurrentPeriodStart: snap.PeriodStart,
		CurrentPeriodEnd:   snap.PeriodEnd,
		CanceledAt:         snap.CanceledAt,
		Metadata:           metadataMap(snap.Metadata),
	}, nil
}

// LinkCustomer associates the subscription with a local customer
func (s *Subscription) LinkCustomer(customerID uuid.UUID) {
	s.CustomerID = &customerID
}

// LinkSale associates the subscription with the sale it collects for
func (s *Subscription) LinkSale(saleID uuid.UUID) {
	s.SaleID = &saleID
}

// IsCanceled reports whether the subscription has ended. Gateway subscriptions never
// leave canceled.
func (s *Subscription) IsCanceled() bool {
	return s.Status == SubscriptionCanceled
}

// ApplySnapshot updates status, plan and period. Returns true when the plan changed.
// Snapshots delivered after cancellation are stale and ignored.
func (s *Subscription) ApplySnapshot(snap SubscriptionSnapshot, at time.Time) bool {
	if s.IsCanceled() {
		return false
	}
	planChanged := snap.PriceID != "" && s.PriceID != "" && snap.PriceID != s.PriceID
	if planChanged {
		s.PreviousPriceID = s.PriceID
		s.PlanChangedAt = &at
		s.AddDomainEvent(NewSubscriptionPlanChangedEvent(s, snap.PriceID))
	}
	if snap.PriceID != "" {
		s.PriceID = snap.PriceID
	}
	s.Status = snap.Status
	if snap.PeriodStart != nil {
		s.CurrentPeriodStart = snap.PeriodStart
	}
	if snap.PeriodEnd != nil {
		s.CurrentPeriodEnd = snap.PeriodEnd
	}
	if snap.CanceledAt != nil {
		s.CanceledAt = snap.CanceledAt
	}
	if snap.ExternalCustomerID != "" {
		s.ExternalCustomerID = snap.ExternalCustomerID
	}
	if len(snap.Metadata) > 0 {
		s.Metadata = metadataMap(snap.Metadata)
	}
	s.IncrementVersion()
	return planChanged
}

// Cancel marks the subscription canceled
func (s *Subscription) Cancel(at time.Time) {
	s.Status = SubscriptionCanceled
	if s.CanceledAt == nil {
		s.CanceledAt = &at
	}
	s.IncrementVersion()
}

func metadataMap(m map[string]string) datatypes.JSONMap {
	if len(m) == 0 {
		return nil
	}
	out := make(datatypes.JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
