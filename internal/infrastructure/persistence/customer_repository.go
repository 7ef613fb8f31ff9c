package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/domain/billing"
	"gorm.io/gorm"
)

// GormCustomerRepository implements billing.CustomerRepository using GORM
type GormCustomerRepository struct {
	db *gorm.DB
}

// NewGormCustomerRepository creates a new GormCustomerRepository
func NewGormCustomerRepository(db *gorm.DB) *GormCustomerRepository {
	return &GormCustomerRepository{db: db}
}

// FindByID finds a customer by ID
func (r *GormCustomerRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Customer, error) {
	var customer billing.Customer
	if err := r.db.WithContext(ctx).First(&customer, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &customer, nil
}

// FindByExternalID finds a customer by gateway customer id
func (r *GormCustomerRepository) FindByExternalID(ctx context.Context, externalCustomerID string) (*billing.Customer, error) {
	var customer billing.Customer
	if err := r.db.WithContext(ctx).Where("external_customer_id = ?", externalCustomerID).First(&customer).Error; err != nil {
		return nil, translateError(err)
	}
	return &customer, nil
}

// Update saves the customer
func (r *GormCustomerRepository) Update(ctx context.Context, customer *billing.Customer) error {
	return r.db.WithContext(ctx).Save(customer).Error
}

var _ billing.CustomerRepository = (*GormCustomerRepository)(nil)
