package persistence

import (
	"context"

	"github.com/inmobiliaria/backend/internal/domain/billing"
	"gorm.io/gorm"
)

// GormSubscriptionRepository implements billing.SubscriptionRepository using GORM
type GormSubscriptionRepository struct {
	*GormCollection[billing.Subscription]
}

// NewGormSubscriptionRepository creates a new GormSubscriptionRepository
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{GormCollection: NewGormCollection[billing.Subscription](db, nil)}
}

// FindByExternalID finds a subscription by its gateway id
func (r *GormSubscriptionRepository) FindByExternalID(ctx context.Context, externalID string) (*billing.Subscription, error) {
	var sub billing.Subscription
	if err := r.DB().WithContext(ctx).Where("external_id = ?", externalID).First(&sub).Error; err != nil {
		return nil, translateError(err)
	}
	return &sub, nil
}

var _ billing.SubscriptionRepository = (*GormSubscriptionRepository)(nil)
