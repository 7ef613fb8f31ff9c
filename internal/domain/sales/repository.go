package sales

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/domain/shared"
)

// SaleRepository persists sales
type SaleRepository interface {
	shared.Collection[Sale]
	// FindByIDForUpdate loads the sale holding a row lock until the transaction ends
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Sale, error)
}

// InstallmentRepository persists amortization rows
type InstallmentRepository interface {
	shared.Collection[Installment]
	CreateBatch(ctx context.Context, installments []Installment) error
	// FindByIDForUpdate loads one installment holding a row lock until the transaction ends
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Installment, error)
	// FindOpenBySaleForUpdate locks and returns the non-paid installments of a sale ordered by number
	FindOpenBySaleForUpdate(ctx context.Context, saleID uuid.UUID) ([]Installment, error)
	FindBySale(ctx context.Context, saleID uuid.UUID) ([]Installment, error)
	FindByReference(ctx context.Context, reference string) (*Installment, error)
	// FindByReferenceForUpdate is FindByReference holding a row lock until the transaction ends
	FindByReferenceForUpdate(ctx context.Context, reference string) (*Installment, error)
	CountUnpaidBySale(ctx context.Context, saleID uuid.UUID) (int64, error)
	// MarkOverdueBefore moves pendiente installments due before the given day to atrasado in
	// one guarded statement; rows paid concurrently no longer match and are left alone.
	MarkOverdueBefore(ctx context.Context, before time.Time) (int64, error)
}

// CommissionSchemeRepository reads vendor commission schemes
type CommissionSchemeRepository interface {
	FindByVendor(ctx context.Context, vendorID uuid.UUID) (*CommissionScheme, error)
}

// CommissionRepository persists commission tranches
type CommissionRepository interface {
	CreateBatch(ctx context.Context, commissions []Commission) error
	FindBySale(ctx context.Context, saleID uuid.UUID) ([]Commission, error)
}

// PaymentRecordRepository persists payment receipts
type PaymentRecordRepository interface {
	shared.Collection[PaymentRecord]
	ExistsByReference(ctx context.Context, reference string) (bool, error)
}
