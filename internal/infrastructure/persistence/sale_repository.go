package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/domain/sales"
	"gorm.io/gorm"
)

// GormSaleRepository implements sales.SaleRepository using GORM
type GormSaleRepository struct {
	*GormCollection[sales.Sale]
}

// NewGormSaleRepository creates a new GormSaleRepository
func NewGormSaleRepository(db *gorm.DB) *GormSaleRepository {
	return &GormSaleRepository{GormCollection: NewGormCollection[sales.Sale](db, SaleSortFields)}
}

// FindByIDForUpdate loads a sale and locks its row for the rest of the transaction
func (r *GormSaleRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*sales.Sale, error) {
	var sale sales.Sale
	if err := forUpdate(r.DB().WithContext(ctx)).First(&sale, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &sale, nil
}

var _ sales.SaleRepository = (*GormSaleRepository)(nil)
