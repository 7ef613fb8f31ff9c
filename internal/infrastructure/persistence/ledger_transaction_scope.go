package persistence

import (
	"context"

	"github.com/inmobiliaria/backend/internal/application/ledger"
	"github.com/inmobiliaria/backend/internal/domain/billing"
	"github.com/inmobiliaria/backend/internal/domain/sales"
	"gorm.io/gorm"
)

// GormLedgerScope implements ledger.TransactionScope using GORM transactions.
type GormLedgerScope struct {
	db *gorm.DB
}

// NewGormLedgerScope creates a new GormLedgerScope.
func NewGormLedgerScope(db *gorm.DB) *GormLedgerScope {
	return &GormLedgerScope{db: db}
}

// Execute runs fn within a database transaction.
// If fn returns an error, the transaction is rolled back.
func (s *GormLedgerScope) Execute(ctx context.Context, fn func(repos ledger.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormLedgerRepositories{tx: tx})
	})
}

// gormLedgerRepositories hands out repositories bound to one transaction
type gormLedgerRepositories struct {
	tx *gorm.DB
}

func (r *gormLedgerRepositories) Sales() sales.SaleRepository {
	return NewGormSaleRepository(r.tx)
}

func (r *gormLedgerRepositories) Installments() sales.InstallmentRepository {
	return NewGormInstallmentRepository(r.tx)
}

func (r *gormLedgerRepositories) PaymentRecords() sales.PaymentRecordRepository {
	return NewGormPaymentRecordRepository(r.tx)
}

func (r *gormLedgerRepositories) Commissions() sales.CommissionRepository {
	return NewGormCommissionRepository(r.tx)
}

func (r *gormLedgerRepositories) Refunds() billing.RefundRepository {
	return NewGormRefundRepository(r.tx)
}

var _ ledger.TransactionScope = (*GormLedgerScope)(nil)
var _ ledger.TransactionalRepositories = (*gormLedgerRepositories)(nil)
