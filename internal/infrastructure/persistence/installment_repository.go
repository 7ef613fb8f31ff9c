package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/domain/sales"
	"gorm.io/gorm"
)

// GormInstallmentRepository implements sales.InstallmentRepository using GORM
type GormInstallmentRepository struct {
	*GormCollection[sales.Installment]
}

// NewGormInstallmentRepository creates a new GormInstallmentRepository
func NewGormInstallmentRepository(db *gorm.DB) *GormInstallmentRepository {
	return &GormInstallmentRepository{GormCollection: NewGormCollection[sales.Installment](db, InstallmentSortFields)}
}

// CreateBatch inserts a full schedule
func (r *GormInstallmentRepository) CreateBatch(ctx context.Context, installments []sales.Installment) error {
	if len(installments) == 0 {
		return nil
	}
	return r.DB().WithContext(ctx).CreateInBatches(&installments, 100).Error
}

// FindByIDForUpdate loads an installment and locks its row for the rest of the transaction
func (r *GormInstallmentRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*sales.Installment, error) {
	var inst sales.Installment
	if err := forUpdate(r.DB().WithContext(ctx)).First(&inst, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &inst, nil
}

// FindOpenBySaleForUpdate locks every non-paid installment of the sale, ordered by number
func (r *GormInstallmentRepository) FindOpenBySaleForUpdate(ctx context.Context, saleID uuid.UUID) ([]sales.Installment, error) {
	var items []sales.Installment
	err := forUpdate(r.DB().WithContext(ctx)).
		Where("sale_id = ? AND estatus <> ?", saleID, sales.InstallmentPaid).
		Order("numero_pago ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// FindBySale returns the full schedule of a sale ordered by number
func (r *GormInstallmentRepository) FindBySale(ctx context.Context, saleID uuid.UUID) ([]sales.Installment, error) {
	var items []sales.Installment
	err := r.DB().WithContext(ctx).
		Where("sale_id = ?", saleID).
		Order("numero_pago ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// FindByReference finds the installment carrying an external payment reference
func (r *GormInstallmentRepository) FindByReference(ctx context.Context, reference string) (*sales.Installment, error) {
	var inst sales.Installment
	if err := r.DB().WithContext(ctx).Where("referencia_pago = ?", reference).First(&inst).Error; err != nil {
		return nil, translateError(err)
	}
	return &inst, nil
}

// FindByReferenceForUpdate locks the installment carrying an external payment reference
func (r *GormInstallmentRepository) FindByReferenceForUpdate(ctx context.Context, reference string) (*sales.Installment, error) {
	var inst sales.Installment
	if err := forUpdate(r.DB().WithContext(ctx)).Where("referencia_pago = ?", reference).First(&inst).Error; err != nil {
		return nil, translateError(err)
	}
	return &inst, nil
}

// CountUnpaidBySale counts installments of a sale that are not pagado
func (r *GormInstallmentRepository) CountUnpaidBySale(ctx context.Context, saleID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB().WithContext(ctx).Model(&sales.Installment{}).
		Where("sale_id = ? AND estatus <> ?", saleID, sales.InstallmentPaid).
		Count(&count).Error
	return count, err
}

// MarkOverdueBefore flips pendiente rows due before the given instant to atrasado.
// The status guard lives in the WHERE clause so a payment committed since any earlier
// read is never overwritten.
func (r *GormInstallmentRepository) MarkOverdueBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.DB().WithContext(ctx).Model(&sales.Installment{}).
		Where("estatus = ? AND fecha_vencimiento < ?", sales.InstallmentPending, before).
		Updates(map[string]interface{}{
			"estatus":    sales.InstallmentOverdue,
			"updated_at": time.Now(),
			"version":    gorm.Expr("version + 1"),
		})
	return result.RowsAffected, result.Error
}

var _ sales.InstallmentRepository = (*GormInstallmentRepository)(nil)
