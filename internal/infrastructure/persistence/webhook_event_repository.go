package persistence

import (
	"context"

	"github.com/inmobiliaria/backend/internal/domain/billing"
	"gorm.io/gorm"
)

// GormWebhookEventRepository implements billing.WebhookEventRepository using GORM
type GormWebhookEventRepository struct {
	db *gorm.DB
}

// NewGormWebhookEventRepository creates a new GormWebhookEventRepository
func NewGormWebhookEventRepository(db *gorm.DB) *GormWebhookEventRepository {
	return &GormWebhookEventRepository{db: db}
}

// Create inserts the log row. A duplicate external id fails on the unique index.
func (r *GormWebhookEventRepository) Create(ctx context.Context, event *billing.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// Update saves the log row
func (r *GormWebhookEventRepository) Update(ctx context.Context, event *billing.WebhookEvent) error {
	return r.db.WithContext(ctx).Save(event).Error
}

// FindByExternalID finds the log row for a gateway event id
func (r *GormWebhookEventRepository) FindByExternalID(ctx context.Context, externalID string) (*billing.WebhookEvent, error) {
	var event billing.WebhookEvent
	if err := r.db.WithContext(ctx).Where("external_event_id = ?", externalID).First(&event).Error; err != nil {
		return nil, translateError(err)
	}
	return &event, nil
}

var _ billing.WebhookEventRepository = (*GormWebhookEventRepository)(nil)
