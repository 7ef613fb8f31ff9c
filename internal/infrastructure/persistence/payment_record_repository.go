package persistence

import (
	"context"

	"github.com/inmobiliaria/backend/internal/domain/sales"
	"gorm.io/gorm"
)

// GormPaymentRecordRepository implements sales.PaymentRecordRepository using GORM
type GormPaymentRecordRepository struct {
	*GormCollection[sales.PaymentRecord]
}

// NewGormPaymentRecordRepository creates a new GormPaymentRecordRepository
func NewGormPaymentRecordRepository(db *gorm.DB) *GormPaymentRecordRepository {
	return &GormPaymentRecordRepository{GormCollection: NewGormCollection[sales.PaymentRecord](db, nil)}
}

// ExistsByReference reports whether a receipt with the external reference was already written
func (r *GormPaymentRecordRepository) ExistsByReference(ctx context.Context, reference string) (bool, error) {
	if reference == "" {
		return false, nil
	}
	var count int64
	err := r.DB().WithContext(ctx).Model(&sales.PaymentRecord{}).
		Where("reference = ?", reference).
		Count(&count).Error
	return count > 0, err
}

var _ sales.PaymentRecordRepository = (*GormPaymentRecordRepository)(nil)
