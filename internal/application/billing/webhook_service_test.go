package billing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/application/ledger"
	billingdomain "github.com/inmobiliaria/backend/internal/domain/billing"
	"github.com/inmobiliaria/backend/internal/domain/sales"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeVerifier decodes payloads as JSON events; signature "bad" fails verification
type fakeVerifier struct {
	hasSecret bool
}

func (v fakeVerifier) VerifyAndParse(payload []byte, signature string) (stripe.Event, error) {
	if signature == "bad" {
		return stripe.Event{}, errors.New("no signatures found matching the expected signature for payload")
	}
	return v.ParseUnverified(payload)
}

func (fakeVerifier) ParseUnverified(payload []byte) (stripe.Event, error) {
	var event stripe.Event
	err := json.Unmarshal(payload, &event)
	return event, err
}

func (v fakeVerifier) CanVerify() bool {
	return v.hasSecret
}

// memoryEventLog is an in-memory webhook event log
type memoryEventLog struct {
	mu         sync.Mutex
	rows       map[string]billingdomain.WebhookEvent
	failCreate bool
	lookupErr  error
}

func newMemoryEventLog() *memoryEventLog {
	return &memoryEventLog{rows: make(map[string]billingdomain.WebhookEvent)}
}

func (l *memoryEventLog) Create(_ context.Context, event *billingdomain.WebhookEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failCreate {
		return errors.New("insert failed")
	}
	if _, ok := l.rows[event.ExternalEventID]; ok {
		return shared.ErrAlreadyExists
	}
	l.rows[event.ExternalEventID] = *event
	return nil
}

func (l *memoryEventLog) Update(_ context.Context, event *billingdomain.WebhookEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows[event.ExternalEventID] = *event
	return nil
}

func (l *memoryEventLog) FindByExternalID(_ context.Context, externalID string) (*billingdomain.WebhookEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lookupErr != nil {
		return nil, l.lookupErr
	}
	row, ok := l.rows[externalID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &row, nil
}

func (l *memoryEventLog) get(externalID string) (billingdomain.WebhookEvent, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.rows[externalID]
	return row, ok
}

// MockPaymentLedger is a mock implementation of PaymentLedger
type MockPaymentLedger struct {
	mock.Mock
}

func (m *MockPaymentLedger) ApplyPayment(ctx context.Context, input ledger.ApplyPaymentInput) (*ledger.PaymentResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.PaymentResult), args.Error(1)
}

func (m *MockPaymentLedger) AppendInstallmentNote(ctx context.Context, reference, note string) (*sales.Installment, error) {
	args := m.Called(ctx, reference, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sales.Installment), args.Error(1)
}

func (m *MockPaymentLedger) AppendNoteToInstallment(ctx context.Context, installmentID uuid.UUID, note string) (*sales.Installment, error) {
	args := m.Called(ctx, installmentID, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sales.Installment), args.Error(1)
}

func (m *MockPaymentLedger) RecordCardLast4(ctx context.Context, reference, last4 string) error {
	args := m.Called(ctx, reference, last4)
	return args.Error(0)
}

func (m *MockPaymentLedger) FindInstallmentByReference(ctx context.Context, reference string) (*sales.Installment, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sales.Installment), args.Error(1)
}

// MockRefundApplier is a mock implementation of RefundStatusApplier
type MockRefundApplier struct {
	mock.Mock
}

func (m *MockRefundApplier) ApplyGatewayRefundStatus(ctx context.Context, update GatewayRefundUpdate) (*billingdomain.Refund, error) {
	args := m.Called(ctx, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingdomain.Refund), args.Error(1)
}

// memoryIdempotency is a map-backed idempotency store
type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryIdempotency) MarkProcessed(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryIdempotency) IsProcessed(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *memoryIdempotency) Close() error { return nil }

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

type webhookHarness struct {
	service *WebhookService
	log     *memoryEventLog
	ledger  *MockPaymentLedger
	refunds *MockRefundApplier
	sleeps  *recordedSleeps
	cache   *memoryIdempotency
}

func newWebhookHarness(t *testing.T, verifier EventVerifier, allowInsecure bool, logger *zap.Logger) *webhookHarness {
	t.Helper()
	h := &webhookHarness{
		log:     newMemoryEventLog(),
		ledger:  new(MockPaymentLedger),
		refunds: new(MockRefundApplier),
		sleeps:  &recordedSleeps{},
		cache:   &memoryIdempotency{},
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h.service = NewWebhookService(WebhookServiceConfig{
		Verifier:      verifier,
		Events:        h.log,
		Idempotency:   h.cache,
		Ledger:        h.ledger,
		Refunds:       h.refunds,
		AllowInsecure: allowInsecure,
		Sleep:         h.sleeps.sleep,
		Logger:        logger,
	})
	return h
}

// eventPayload wraps a gateway object in an event envelope
func eventPayload(t *testing.T, id, eventType string, object interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]interface{}{
		"id":      id,
		"object":  "event",
		"type":    eventType,
		"created": time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Unix(),
		"data":    map[string]json.RawMessage{"object": raw},
	})
	require.NoError(t, err)
	return payload
}

func succeededIntent(installmentID uuid.UUID) stripe.PaymentIntent {
	return stripe.PaymentIntent{
		ID:             "pi_123",
		Amount:         799639,
		AmountReceived: 799639,
		Status:         stripe.PaymentIntentStatusSucceeded,
		Metadata:       map[string]string{MetadataInstallmentID: installmentID.String()},
	}
}

func paidResult(installmentID uuid.UUID) *ledger.PaymentResult {
	inst := &sales.Installment{Status: sales.InstallmentPaid}
	inst.ID = installmentID
	return &ledger.PaymentResult{Installment: inst}
}

func TestWebhookService_ProcessWebhook_MissingSignature(t *testing.T) {
	h := newWebhookHarness(t, fakeVerifier{hasSecret: true}, false, nil)

	result, err := h.service.ProcessWebhook(context.Background(), []byte(`{"id":"evt_1"}`), "")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.True(t, IsRejectedWebhook(err))
	assert.Empty(t, h.log.rows)
}

func TestWebhookService_ProcessWebhook_InvalidSignature(t *testing.T) {
	h := newWebhookHarness(t, fakeVerifier{hasSecret: true}, false, nil)

	result, err := h.service.ProcessWebhook(context.Background(), []byte(`{"id":"evt_1"}`), "bad")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Contains(t, err.Error(), "no signatures found")
}

func TestWebhookService_ProcessWebhook_SecretMissingStrict(t *testing.T) {
	h := newWebhookHarness(t, fakeVerifier{}, false, nil)

	_, err := h.service.ProcessWebhook(context.Background(), []byte(`{"id":"evt_1"}`), "t=1,v1=abc")

	assert.ErrorIs(t, err, ErrWebhookSecretMissing)
}

func TestWebhookService_ProcessWebhook_InsecureModeWarnsEveryCall(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	h := newWebhookHarness(t, fakeVerifier{}, true, zap.New(core))
	ctx := context.Background()

	for _, id := range []string{"evt_a", "evt_b"} {
		result, err := h.service.ProcessWebhook(ctx, eventPayload(t, id, "customer.created", map[string]string{"id": "cus_1"}), "")
		require.NoError(t, err)
		assert.True(t, result.Processed)
	}

	warnings := logs.FilterMessage("Processing webhook without signature verification (insecure mode)")
	assert.Equal(t, 2, warnings.Len())

	row, ok := h.log.get("evt_a")
	require.True(t, ok)
	assert.False(t, row.SignatureVerified)
}

func TestWebhookService_ProcessWebhook_UnhandledEventIsProcessed(t *testing.T) {
	h := newWebhookHarness(t, fakeVerifier{hasSecret: true}, false, nil)

	result, err := h.service.ProcessWebhook(context.Background(),
		eventPayload(t, "evt_x", "product.created", map[string]string{"id": "prod_1"}), "sig")

	require.NoError(t, err)
	assert.True(t, result.Processed)
	assert.False(t, result.Duplicate)
	assert.Equal(t, "Event type not handled", result.Message)

	row, _ := h.log.get("evt_x")
	assert.Equal(t, billingdomain.WebhookEventProcessed, row.Status)
	assert.True(t, row.SignatureVerified)
}

func TestWebhookService_ProcessWebhook_PaymentSucceeded(t *testing.T) {
	h := newWebhookHarness(t, fakeVerifier{hasSecret: true}, false, nil)
	ctx := context.Background()
	installmentID := uuid.New()

	h.ledger.On("FindInstallmentByReference", ctx, "pi_123").Return(nil, sales.ErrInstallmentNotFound)
	h.ledger.On("ApplyPayment", ctx, mock.MatchedBy(func(in ledger.ApplyPaymentInput) bool {
		return in.InstallmentID != nil && *in.InstallmentID == installmentID &&
			in.SaleID == nil &&
			in.Amount.Equal(decimal.RequireFromString("7996.39")) &&
			in.Reference == "pi_123" &&
			in.Method == "tarjeta" &&
			in.Source == sales.PaymentSourceWebhook &&
			in.PaymentDate.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	})).Return(paidResult(installmentID), nil).Once()

	payload := eventPayload(t, "evt_pay", "payment_intent.succeeded", succeededIntent(installmentID))
	result, err := h.service.ProcessWebhook(ctx, payload, "sig")

	require.NoError(t, err)
	assert.True(t, result.Processed)
	assert.Equal(t, "payment_intent.succeeded", result.EventType)

	row, _ := h.log.get("evt_pay")
	assert.Equal(t, billingdomain.WebhookEventProcessed, row.Status)
	assert.Equal(t, 1, row.Attempts)
	require.NotNil(t, row.LinkedRecordID)
	assert.Equal(t, installmentID, *row.LinkedRecordID)
	h.ledger.AssertExpectations(t)
}

func TestWebhookService_ProcessWebhook_DuplicateDelivery(t *testing.T) {
	h := newWebhookHarness(t, fakeVerifier{hasSecret: true}, false, nil)
	ctx := context.Background()
	installmentID := uuid.New()

	h.ledger.On("FindInstallmentByReference", ctx, "pi_123").Return(nil, sales.ErrInstallmentNotFound)
	h.ledger.On("ApplyPayment", ctx, mock.Anything).Return(paidResult(installmentID), nil).Once()

	payload := eventPayload(t, "evt_dup", "payment_intent.succeeded", succeededIntent(installmentID))
	_, err := h.service.ProcessWebhook(ctx, payload, "sig")
	require.NoError(t, err)

	// a fresh cache forces the durable log to answer
	h.service.idempotency = &memoryIdempotency{}
	result, err := h.service.ProcessWebhook(ctx, payload, "sig")

	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.Equal(t, "Event already processed", result.Message)
	h.ledger.AssertNumberOfCalls(t, "ApplyPayment", 1)
}

func TestWebhookService_ProcessWebhook_CacheFastPath(t *testing.T) {
	h := newWebhookHarness(t, fakeVerifier{hasSecret: true}, false, nil)
	ctx := context.Background()
	_, _ = h.cache.MarkProcessed(ctx, "evt_cached", time.Hour)

	result, err := h.service.ProcessWebhook(ctx,
		eventPayload(t, "evt_cached", "payment_intent.succeeded", succeededIntent(uuid.New())), "sig")

	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	_, logged := h.log.get("evt_cached")
	assert.False(t, logged)
	h.ledger.AssertNotCalled(t, "ApplyPayment", mock.Anything, mock.Anything)
}

func TestWebhookService_ProcessWebhook_AlreadyPaidByReference(t *testing.T) {
	h := newWebhookHarness(t, fakeVerifier{hasSecret: true}, false, nil)
	ctx := context.Background()
	installmentID := uuid.New()

	paid := &sales.Installment{Status: sales.InstallmentPaid, PaymentReference: "pi_123"}
	paid.ID = installmentID
	h.ledger.On("FindInstallmentByReference", ctx, "pi_123").Return(paid, nil)

	result, err := h.service.ProcessWebhook(ctx,
		eventPayload(t, "evt_redelivered", "payment_intent.succeeded", succeededIntent(installmentID)), "sig")

	require.NoError(t, err)
	assert.True(t, result.Processed)
	h.ledger.AssertNotCalled(t, "ApplyPayment", mock.Anything, mock.Anything)
}

func TestWebhookService_ProcessWebhook_FailureMarksRowFailed(t *testing.T) {
	h := newWebhookHarness(t, fakeVerifier{hasSecret: true}, false, nil)
	ctx := context.Background()

	h.ledger.On("FindInstallmentByReference", ctx, "pi_123").Return(nil, sales.ErrInstallmentNotFound)
	h.ledger.On("ApplyPayment", ctx, mock.Anything).
		Return(nil, shared.NewDomainError("AMOUNT_EXCEEDS_BALANCE", "Payment exceeds outstanding balance"))

	result, err := h.service.ProcessWebhook(ctx,
		eventPayload(t, "evt_fail", "payment_intent.succeeded", succeededIntent(uuid.New())), "sig")

	require.Error(t, err)
	assert.False(t, result.Processed)

	row, _ := h.log.get("evt_fail")
	assert.Equal(t, billingdomain.WebhookEventFailed, row.Status)
	assert.Equal(t, "Payment exceeds outstanding balance", row.ErrorMessage)

	processed, _ := h.cache.IsProcessed(ctx, "evt_fail")
	assert.False(t, processed)
}

func TestWebhookService_ProcessWebhook_LogInsertFailureStillProcesses(t *testing.T) {
	h := newWebhookHarness(t, fakeVerifier{hasSecret: true}, false, nil)
	h.log.failCreate = true
	ctx := context.Background()
	installmentID := uuid.New()

	h.ledger.On("FindInstallmentByReference", ctx, "pi_123").Return(nil, sales.ErrInstallmentNotFound)
	h.ledger.On("ApplyPayment", ctx, mock.Anything).Return(paidResult(installmentID), nil)

	result, err := h.service.ProcessWebhook(ctx,
		eventPayload(t, "evt_nolog", "payment_intent.succeeded", succeededIntent(installmentID)), "sig")

	require.NoError(t, err)
	assert.True(t, result.Processed)
	assert.Empty(t, h.log.rows)
}

func TestWebhookService_ProcessWebhookWithRetry_BackoffSchedule(t *testing.T) {
	h := newWebhookHarness(t, fakeVerifier{hasSecret: true}, false, nil)
	ctx := context.Background()

	h.ledger.On("FindInstallmentByReference", ctx, "pi_123").Return(nil, sales.ErrInstallmentNotFound)
	h.ledger.On("ApplyPayment", ctx, mock.Anything).Return(nil, errors.New("connection reset by peer"))

	_, err := h.service.ProcessWebhookWithRetry(ctx,
		eventPayload(t, "evt_retry", "payment_intent.succeeded", succeededIntent(uuid.New())), "sig")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up after 4 attempts")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, h.sleeps.delays)
	h.ledger.AssertNumberOfCalls(t, "ApplyPayment", 4)

	row, _ := h.log.get("evt_retry")
	assert.Equal(t, billingdomain.WebhookEventFailed, row.Status)
	assert.Equal(t, 4, row.Attempts)
}

func TestWebhookService_ProcessWebhookWithRetry_RecoversOnSecondAttempt(t *testing.T) {
	h := newWebhookHarness(t, fakeVerifier{hasSecret: true}, false, nil)
	ctx := context.Background()
	installmentID := uuid.New()

	h.ledger.On("FindInstallmentByReference", ctx, "pi_123").Return(nil, sales.ErrInstallmentNotFound)
	h.ledger.On("ApplyPayment", ctx, mock.Anything).Return(nil, errors.New("deadlock detected")).Once()
	h.ledger.On("ApplyPayment", ctx, mock.Anything).Return(paidResult(installmentID), nil).Once()

	result, err := h.service.ProcessWebhookWithRetry(ctx,
		eventPayload(t, "evt_flaky", "payment_intent.succeeded", succeededIntent(installmentID)), "sig")

	require.NoError(t, err)
	assert.True(t, result.Processed)
	assert.Equal(t, []time.Duration{time.Second}, h.sleeps.delays)

	row, _ := h.log.get("evt_flaky")
	assert.Equal(t, billingdomain.WebhookEventProcessed, row.Status)
	assert.Equal(t, 2, row.Attempts)
}

func TestWebhookService_ProcessWebhookWithRetry_DomainErrorNotRetried(t *testing.T) {
	h := newWebhookHarness(t, fakeVerifier{hasSecret: true}, false, nil)
	ctx := context.Background()

	h.ledger.On("FindInstallmentByReference", ctx, "pi_123").Return(nil, sales.ErrInstallmentNotFound)
	h.ledger.On("ApplyPayment", ctx, mock.Anything).Return(nil, sales.ErrInstallmentAlreadyPaid)

	_, err := h.service.ProcessWebhookWithRetry(ctx,
		eventPayload(t, "evt_rule", "payment_intent.succeeded", succeededIntent(uuid.New())), "sig")

	assert.ErrorIs(t, err, sales.ErrInstallmentAlreadyPaid)
	assert.Empty(t, h.sleeps.delays)
	h.ledger.AssertNumberOfCalls(t, "ApplyPayment", 1)
}

func TestWebhookService_ProcessWebhookWithRetry_SignatureNotRetried(t *testing.T) {
	h := newWebhookHarness(t, fakeVerifier{hasSecret: true}, false, nil)

	_, err := h.service.ProcessWebhookWithRetry(context.Background(), []byte(`{}`), "bad")

	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Empty(t, h.sleeps.delays)
}

func TestWebhookService_ProcessWebhookWithRetry_StopsOnCancel(t *testing.T) {
	h := newWebhookHarness(t, fakeVerifier{hasSecret: true}, false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	h.service.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}

	h.ledger.On("FindInstallmentByReference", mock.Anything, "pi_123").Return(nil, sales.ErrInstallmentNotFound)
	h.ledger.On("ApplyPayment", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	_, err := h.service.ProcessWebhookWithRetry(ctx,
		eventPayload(t, "evt_cancel", "payment_intent.succeeded", succeededIntent(uuid.New())), "sig")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry interrupted")
	h.ledger.AssertNumberOfCalls(t, "ApplyPayment", 1)
}

func TestWebhookService_ProcessWebhook_PaymentFailedAppendsNote(t *testing.T) {
	h := newWebhookHarness(t, fakeVerifier{hasSecret: true}, false, nil)
	ctx := context.Background()
	installmentID := uuid.New()

	inst := &sales.Installment{}
	inst.ID = installmentID
	h.ledger.On("AppendInstallmentNote", ctx, "pi_declined", "Payment failed: Your card was declined.").
		Return(nil, sales.ErrInstallmentNotFound)
	h.ledger.On("AppendNoteToInstallment", ctx, installmentID, "Payment failed: Your card was declined.").
		Return(inst, nil)

	intent := stripe.PaymentIntent{
		ID:               "pi_declined",
		Status:           stripe.PaymentIntentStatusRequiresPaymentMethod,
		LastPaymentError: &stripe.Error{Msg: "Your card was declined."},
		Metadata:         map[string]string{MetadataInstallmentID: installmentID.String()},
	}
	result, err := h.service.ProcessWebhook(ctx, eventPayload(t, "evt_declined", "payment_intent.payment_failed", intent), "sig")

	require.NoError(t, err)
	assert.True(t, result.Processed)
	h.ledger.AssertExpectations(t)
}

func TestWebhookService_ProcessWebhook_ChargeSucceededStoresCardDigits(t *testing.T) {
	h := newWebhookHarness(t, fakeVerifier{hasSecret: true}, false, nil)
	ctx := context.Background()

	h.ledger.On("RecordCardLast4", ctx, "pi_123", "4242").Return(nil)

	charge := stripe.Charge{
		ID:            "ch_1",
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_123"},
		PaymentMethodDetails: &stripe.ChargePaymentMethodDetails{
			Card: &stripe.ChargePaymentMethodDetailsCard{Last4: "4242"},
		},
	}
	_, err := h.service.ProcessWebhook(ctx, eventPayload(t, "evt_charge", "charge.succeeded", charge), "sig")

	require.NoError(t, err)
	h.ledger.AssertExpectations(t)
}

func TestWebhookService_ProcessWebhook_RefundStatusFromGateway(t *testing.T) {
	h := newWebhookHarness(t, fakeVerifier{hasSecret: true}, false, nil)
	ctx := context.Background()
	localID := uuid.New()

	local := &billingdomain.Refund{Status: billingdomain.RefundFailed}
	local.ID = localID
	h.refunds.On("ApplyGatewayRefundStatus", ctx, mock.MatchedBy(func(u GatewayRefundUpdate) bool {
		return u.ExternalRefundID == "re_1" &&
			u.Status == billingdomain.RefundFailed &&
			u.LocalRefundID != nil && *u.LocalRefundID == localID
	})).Return(local, nil)

	refund := stripe.Refund{
		ID:       "re_1",
		Status:   stripe.RefundStatusFailed,
		Metadata: map[string]string{MetadataRefundID: localID.String()},
	}
	_, err := h.service.ProcessWebhook(ctx, eventPayload(t, "evt_refund", "refund.updated", refund), "sig")

	require.NoError(t, err)
	row, _ := h.log.get("evt_refund")
	require.NotNil(t, row.LinkedRecordID)
	assert.Equal(t, localID, *row.LinkedRecordID)
	h.refunds.AssertExpectations(t)
}

func TestWebhookService_ProcessWebhook_UnknownRefundIsSkipped(t *testing.T) {
	h := newWebhookHarness(t, fakeVerifier{hasSecret: true}, false, nil)
	ctx := context.Background()

	h.refunds.On("ApplyGatewayRefundStatus", ctx, mock.Anything).Return(nil, ErrRefundNotFound)

	result, err := h.service.ProcessWebhook(ctx,
		eventPayload(t, "evt_stranger", "refund.updated", stripe.Refund{ID: "re_unknown"}), "sig")

	require.NoError(t, err)
	assert.True(t, result.Processed)
}

func TestWebhookService_ProcessWebhook_LookupErrorIsTransient(t *testing.T) {
	h := newWebhookHarness(t, fakeVerifier{hasSecret: true}, false, nil)
	h.log.lookupErr = errors.New("database is closed")

	_, err := h.service.ProcessWebhook(context.Background(),
		eventPayload(t, "evt_db", "product.created", map[string]string{"id": "prod_1"}), "sig")

	require.Error(t, err)
	assert.True(t, isTransient(err))
}

func TestMapGatewayRefundStatus(t *testing.T) {
	tests := []struct {
		in   stripe.RefundStatus
		want billingdomain.RefundStatus
	}{
		{"", billingdomain.RefundProcessed},
		{stripe.RefundStatusSucceeded, billingdomain.RefundProcessed},
		{stripe.RefundStatusFailed, billingdomain.RefundFailed},
		{stripe.RefundStatusCanceled, billingdomain.RefundFailed},
		{stripe.RefundStatusPending, billingdomain.RefundApproved},
		{stripe.RefundStatusRequiresAction, billingdomain.RefundApproved},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, MapGatewayRefundStatus(tt.in))
		})
	}
}

func TestParseEventKind(t *testing.T) {
	assert.Equal(t, EventPaymentSucceeded, ParseEventKind("payment_intent.succeeded"))
	assert.Equal(t, EventRefundUpdated, ParseEventKind("charge.refund.updated"))
	assert.Equal(t, EventChargeRefunded, ParseEventKind("charge.refunded"))
	assert.Equal(t, EventUnhandled, ParseEventKind("customer.created"))
	assert.Equal(t, "invoice_payment_failed", EventInvoicePaymentFailed.String())
}

func TestFromMinorUnits(t *testing.T) {
	assert.True(t, fromMinorUnits(799639).Equal(decimal.RequireFromString("7996.39")))
	assert.True(t, fromMinorUnits(5).Equal(decimal.RequireFromString("0.05")))
}
