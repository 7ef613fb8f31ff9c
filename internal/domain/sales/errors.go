package sales

import "github.com/inmobiliaria/backend/internal/domain/shared"

// Ledger business-rule errors
var (
	ErrInstallmentAlreadyPaid  = shared.NewDomainError("INSTALLMENT_ALREADY_PAID", "Installment is already paid")
	ErrInvalidPaymentAmount    = shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be greater than zero")
	ErrInstallmentSaleMismatch = shared.NewDomainError("INSTALLMENT_SALE_MISMATCH", "Installment does not belong to the given sale")
	ErrNoEligibleInstallment   = shared.NewDomainError("NO_ELIGIBLE_INSTALLMENT", "No pending or overdue installment found for the sale")
	ErrInstallmentNotFound     = shared.NewDomainError("INSTALLMENT_NOT_FOUND", "Installment not found")
	ErrSaleNotFound            = shared.NewDomainError("SALE_NOT_FOUND", "Sale not found")
	ErrSaleCancelled           = shared.NewDomainError("SALE_CANCELLED", "Sale is cancelled and does not accept payments")
	ErrMissingPaymentTarget    = shared.NewDomainError("MISSING_PAYMENT_TARGET", "Either venta_id or pago_id is required")
	ErrSchemeNotFound          = shared.NewDomainError("COMMISSION_SCHEME_NOT_FOUND", "Vendor has no commission scheme")
	ErrDuplicatePaymentRef     = shared.NewDomainError("DUPLICATE_PAYMENT_REFERENCE", "A payment with this reference was already recorded")
)
