package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/domain/sales"
	"gorm.io/gorm"
)

// GormCommissionSchemeRepository implements sales.CommissionSchemeRepository using GORM
type GormCommissionSchemeRepository struct {
	db *gorm.DB
}

// NewGormCommissionSchemeRepository creates a new GormCommissionSchemeRepository
func NewGormCommissionSchemeRepository(db *gorm.DB) *GormCommissionSchemeRepository {
	return &GormCommissionSchemeRepository{db: db}
}

// FindByVendor returns the vendor's scheme
func (r *GormCommissionSchemeRepository) FindByVendor(ctx context.Context, vendorID uuid.UUID) (*sales.CommissionScheme, error) {
	var scheme sales.CommissionScheme
	if err := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID).First(&scheme).Error; err != nil {
		return nil, translateError(err)
	}
	return &scheme, nil
}

// GormCommissionRepository implements sales.CommissionRepository using GORM
type GormCommissionRepository struct {
	db *gorm.DB
}

// NewGormCommissionRepository creates a new GormCommissionRepository
func NewGormCommissionRepository(db *gorm.DB) *GormCommissionRepository {
	return &GormCommissionRepository{db: db}
}

// CreateBatch inserts the tranche rows of a sale
func (r *GormCommissionRepository) CreateBatch(ctx context.Context, commissions []sales.Commission) error {
	if len(commissions) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&commissions).Error
}

// FindBySale lists the commission tranches of a sale
func (r *GormCommissionRepository) FindBySale(ctx context.Context, saleID uuid.UUID) ([]sales.Commission, error) {
	var rows []sales.Commission
	if err := r.db.WithContext(ctx).Where("sale_id = ?", saleID).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

var (
	_ sales.CommissionSchemeRepository = (*GormCommissionSchemeRepository)(nil)
	_ sales.CommissionRepository       = (*GormCommissionRepository)(nil)
)
