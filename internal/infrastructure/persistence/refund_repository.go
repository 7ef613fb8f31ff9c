package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormRefundRepository implements billing.RefundRepository using GORM
type GormRefundRepository struct {
	*GormCollection[billing.Refund]
}

// NewGormRefundRepository creates a new GormRefundRepository
func NewGormRefundRepository(db *gorm.DB) *GormRefundRepository {
	return &GormRefundRepository{GormCollection: NewGormCollection[billing.Refund](db, RefundSortFields)}
}

// FindByIDForUpdate loads a refund and locks its row for the rest of the transaction
func (r *GormRefundRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*billing.Refund, error) {
	var refund billing.Refund
	if err := forUpdate(r.DB().WithContext(ctx)).First(&refund, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &refund, nil
}

// FindByExternalRefundIDForUpdate finds a refund by the gateway refund id and locks its row
func (r *GormRefundRepository) FindByExternalRefundIDForUpdate(ctx context.Context, externalRefundID string) (*billing.Refund, error) {
	var refund billing.Refund
	if err := forUpdate(r.DB().WithContext(ctx)).Where("external_refund_id = ?", externalRefundID).First(&refund).Error; err != nil {
		return nil, translateError(err)
	}
	return &refund, nil
}

// SumReservedByInstallment totals the refunds still counting against an installment's paid amount
func (r *GormRefundRepository) SumReservedByInstallment(ctx context.Context, installmentID uuid.UUID, excludeID *uuid.UUID) (decimal.Decimal, error) {
	var refunds []billing.Refund
	query := r.DB().WithContext(ctx).
		Where("pago_id = ? AND estatus IN ?", installmentID,
			[]billing.RefundStatus{billing.RefundPending, billing.RefundApproved, billing.RefundProcessed})
	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}
	if err := query.Find(&refunds).Error; err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, refund := range refunds {
		total = total.Add(refund.Amount)
	}
	return total, nil
}

var _ billing.RefundRepository = (*GormRefundRepository)(nil)
