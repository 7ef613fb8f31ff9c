package ledger

import (
	"context"

	"github.com/inmobiliaria/backend/internal/domain/billing"
	"github.com/inmobiliaria/backend/internal/domain/sales"
)

// TransactionScope provides transactional access to the ledger repositories.
// Every repository handed to fn shares one database transaction, committed when fn
// returns nil and rolled back otherwise.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories exposes the repositories scoped to the current transaction.
//
// Locking order inside a transaction is installment rows first, then the sale row.
// Refund reservation locks the installment before summing its refunds.
type TransactionalRepositories interface {
	Sales() sales.SaleRepository
	Installments() sales.InstallmentRepository
	PaymentRecords() sales.PaymentRecordRepository
	Commissions() sales.CommissionRepository
	Refunds() billing.RefundRepository
}

// NoOpTransactionScope runs fn against plain repositories without a transaction.
// Useful in tests where the repositories are mocks.
type NoOpTransactionScope struct {
	sales          sales.SaleRepository
	installments   sales.InstallmentRepository
	paymentRecords sales.PaymentRecordRepository
	commissions    sales.CommissionRepository
	refunds        billing.RefundRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	saleRepo sales.SaleRepository,
	installmentRepo sales.InstallmentRepository,
	paymentRecordRepo sales.PaymentRecordRepository,
	commissionRepo sales.CommissionRepository,
	refundRepo billing.RefundRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		sales:          saleRepo,
		installments:   installmentRepo,
		paymentRecords: paymentRecordRepo,
		commissions:    commissionRepo,
		refunds:        refundRepo,
	}
}

// Execute runs fn directly
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

func (s *NoOpTransactionScope) Sales() sales.SaleRepository                   { return s.sales }
func (s *NoOpTransactionScope) Installments() sales.InstallmentRepository     { return s.installments }
func (s *NoOpTransactionScope) PaymentRecords() sales.PaymentRecordRepository { return s.paymentRecords }
func (s *NoOpTransactionScope) Commissions() sales.CommissionRepository       { return s.commissions }
func (s *NoOpTransactionScope) Refunds() billing.RefundRepository             { return s.refunds }

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
