package ledger_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/application/ledger"
	"github.com/inmobiliaria/backend/internal/domain/sales"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// Unmocked methods fall through to the nil embedded interface and panic
type mockInstallmentRepo struct {
	sales.InstallmentRepository
	mock.Mock
}

func (m *mockInstallmentRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*sales.Installment, error) {
	args := m.Called(ctx, id)
	inst, _ := args.Get(0).(*sales.Installment)
	return inst, args.Error(1)
}

func (m *mockInstallmentRepo) FindOpenBySaleForUpdate(ctx context.Context, saleID uuid.UUID) ([]sales.Installment, error) {
	args := m.Called(ctx, saleID)
	items, _ := args.Get(0).([]sales.Installment)
	return items, args.Error(1)
}

func (m *mockInstallmentRepo) FindByReferenceForUpdate(ctx context.Context, reference string) (*sales.Installment, error) {
	args := m.Called(ctx, reference)
	inst, _ := args.Get(0).(*sales.Installment)
	return inst, args.Error(1)
}

func (m *mockInstallmentRepo) Update(ctx context.Context, inst *sales.Installment) error {
	return m.Called(ctx, inst).Error(0)
}

type mockSaleRepo struct {
	sales.SaleRepository
	mock.Mock
}

func (m *mockSaleRepo) FindByID(ctx context.Context, id uuid.UUID) (*sales.Sale, error) {
	args := m.Called(ctx, id)
	sale, _ := args.Get(0).(*sales.Sale)
	return sale, args.Error(1)
}

type mockPaymentRecordRepo struct {
	sales.PaymentRecordRepository
	mock.Mock
}

func (m *mockPaymentRecordRepo) ExistsByReference(ctx context.Context, reference string) (bool, error) {
	args := m.Called(ctx, reference)
	return args.Bool(0), args.Error(1)
}

type mockedLedger struct {
	service      *ledger.LedgerService
	sales        *mockSaleRepo
	installments *mockInstallmentRepo
	records      *mockPaymentRecordRepo
}

func newMockedLedger() *mockedLedger {
	m := &mockedLedger{
		sales:        &mockSaleRepo{},
		installments: &mockInstallmentRepo{},
		records:      &mockPaymentRecordRepo{},
	}
	scope := ledger.NewNoOpTransactionScope(m.sales, m.installments, m.records, nil, nil)
	m.service = ledger.NewLedgerService(ledger.LedgerServiceConfig{
		Scope:          scope,
		Installments:   m.installments,
		EventPublisher: &recordingPublisher{},
		Settings:       ledger.DefaultSettings(),
	})
	return m
}

func (m *mockedLedger) assertExpectations(t *testing.T) {
	m.sales.AssertExpectations(t)
	m.installments.AssertExpectations(t)
	m.records.AssertExpectations(t)
}

func TestLedgerService_ApplyPayment_RepositoryFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("reference lookup failure aborts before any lock", func(t *testing.T) {
		m := newMockedLedger()
		saleID := uuid.New()
		m.records.On("ExistsByReference", mock.Anything, "pi_x").Return(false, assert.AnError)

		_, err := m.service.ApplyPayment(ctx, ledger.ApplyPaymentInput{
			SaleID:    &saleID,
			Amount:    dec("10"),
			Reference: "pi_x",
		})
		assert.ErrorIs(t, err, assert.AnError)
		m.assertExpectations(t)
		m.installments.AssertNotCalled(t, "FindOpenBySaleForUpdate", mock.Anything, mock.Anything)
	})

	t.Run("missing installment is a domain error", func(t *testing.T) {
		m := newMockedLedger()
		id := uuid.New()
		m.installments.On("FindByIDForUpdate", mock.Anything, id).Return(nil, shared.ErrNotFound)

		_, err := m.service.ApplyPayment(ctx, ledger.ApplyPaymentInput{InstallmentID: &id, Amount: dec("10")})
		assert.ErrorIs(t, err, sales.ErrInstallmentNotFound)
		m.assertExpectations(t)
	})

	t.Run("lock failure is wrapped", func(t *testing.T) {
		m := newMockedLedger()
		id := uuid.New()
		m.installments.On("FindByIDForUpdate", mock.Anything, id).Return(nil, assert.AnError)

		_, err := m.service.ApplyPayment(ctx, ledger.ApplyPaymentInput{InstallmentID: &id, Amount: dec("10")})
		assert.ErrorIs(t, err, assert.AnError)
		assert.Contains(t, err.Error(), "lock installment")
		m.assertExpectations(t)
	})

	t.Run("unknown sale without open rows", func(t *testing.T) {
		m := newMockedLedger()
		saleID := uuid.New()
		m.installments.On("FindOpenBySaleForUpdate", mock.Anything, saleID).Return([]sales.Installment{}, nil)
		m.sales.On("FindByID", mock.Anything, saleID).Return(nil, shared.ErrNotFound)

		_, err := m.service.ApplyPayment(ctx, ledger.ApplyPaymentInput{SaleID: &saleID, Amount: dec("10")})
		assert.ErrorIs(t, err, sales.ErrSaleNotFound)
		m.assertExpectations(t)
	})

	t.Run("known sale without open rows", func(t *testing.T) {
		m := newMockedLedger()
		saleID := uuid.New()
		m.installments.On("FindOpenBySaleForUpdate", mock.Anything, saleID).Return(nil, nil)
		m.sales.On("FindByID", mock.Anything, saleID).Return(&sales.Sale{}, nil)

		_, err := m.service.ApplyPayment(ctx, ledger.ApplyPaymentInput{SaleID: &saleID, Amount: dec("10")})
		requireCode(t, err, "NO_ELIGIBLE_INSTALLMENT")
		m.assertExpectations(t)
	})
}

func TestLedgerService_NoteWritesUseLockedRow(t *testing.T) {
	ctx := context.Background()
	locked := &sales.Installment{
		Status:           sales.InstallmentPaid,
		Amount:           dec("500"),
		LateFee:          dec("25"),
		AmountPaid:       dec("525"),
		PaymentReference: "pi_paid",
	}

	t.Run("note by reference", func(t *testing.T) {
		m := newMockedLedger()
		row := *locked
		m.installments.On("FindByReferenceForUpdate", mock.Anything, "pi_paid").Return(&row, nil)
		m.installments.On("Update", mock.Anything, mock.MatchedBy(func(inst *sales.Installment) bool {
			return inst.AmountPaid.Equal(dec("525")) && inst.Status == sales.InstallmentPaid && inst.Notes == "Payment failed: retry"
		})).Return(nil)

		inst, err := m.service.AppendInstallmentNote(ctx, "pi_paid", "Payment failed: retry")
		assert.NoError(t, err)
		assert.Equal(t, "Payment failed: retry", inst.Notes)
		m.assertExpectations(t)
	})

	t.Run("note by id", func(t *testing.T) {
		m := newMockedLedger()
		id := uuid.New()
		row := *locked
		m.installments.On("FindByIDForUpdate", mock.Anything, id).Return(&row, nil)
		m.installments.On("Update", mock.Anything, mock.Anything).Return(nil)

		_, err := m.service.AppendNoteToInstallment(ctx, id, "x")
		assert.NoError(t, err)
		m.assertExpectations(t)
	})

	t.Run("unchanged card digits skip the write", func(t *testing.T) {
		m := newMockedLedger()
		row := *locked
		row.CardLast4 = "4242"
		m.installments.On("FindByReferenceForUpdate", mock.Anything, "pi_paid").Return(&row, nil)

		assert.NoError(t, m.service.RecordCardLast4(ctx, "pi_paid", "4242"))
		m.installments.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("missing reference", func(t *testing.T) {
		m := newMockedLedger()
		m.installments.On("FindByReferenceForUpdate", mock.Anything, "pi_none").Return(nil, shared.ErrNotFound)

		assert.ErrorIs(t, m.service.RecordCardLast4(ctx, "pi_none", "1111"), sales.ErrInstallmentNotFound)
	})
}
