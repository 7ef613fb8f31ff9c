package billing

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/application/ledger"
	billingdomain "github.com/inmobiliaria/backend/internal/domain/billing"
	"github.com/inmobiliaria/backend/internal/domain/sales"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"github.com/inmobiliaria/backend/internal/infrastructure/persistence"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"gorm.io/gorm"
)

// eventRecorder keeps published events in memory
type eventRecorder struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (r *eventRecorder) Publish(_ context.Context, events ...shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *eventRecorder) ofType(eventType string) []shared.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []shared.DomainEvent
	for _, e := range r.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

type subscriptionFixture struct {
	db        *gorm.DB
	handler   *SubscriptionHandler
	ledger    *MockPaymentLedger
	gateway   *MockGateway
	published *eventRecorder
	customer  *billingdomain.Customer
}

var subscriptionClock = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newSubscriptionFixture(t *testing.T) *subscriptionFixture {
	t.Helper()
	db := openTestDB(t)
	customer := &billingdomain.Customer{
		BaseEntity: shared.NewBaseEntity(),
		Name:       "Lucía Herrera",
		Email:      "lucia@example.com",
	}
	require.NoError(t, db.Create(customer).Error)

	f := &subscriptionFixture{
		db:        db,
		ledger:    new(MockPaymentLedger),
		gateway:   new(MockGateway),
		published: &eventRecorder{},
		customer:  customer,
	}
	f.handler = NewSubscriptionHandler(SubscriptionHandlerConfig{
		Subscriptions:  persistence.NewGormSubscriptionRepository(db),
		Customers:      persistence.NewGormCustomerRepository(db),
		Records:        persistence.NewGormPaymentRecordRepository(db),
		Ledger:         f.ledger,
		Gateway:        f.gateway,
		EventPublisher: f.published,
		Clock:          func() time.Time { return subscriptionClock },
	})
	return f
}

func (f *subscriptionFixture) reloadCustomer(t *testing.T) billingdomain.Customer {
	t.Helper()
	var c billingdomain.Customer
	require.NoError(t, f.db.First(&c, "id = ?", f.customer.ID).Error)
	return c
}

func (f *subscriptionFixture) mirror(t *testing.T, externalID string) billingdomain.Subscription {
	t.Helper()
	var s billingdomain.Subscription
	require.NoError(t, f.db.First(&s, "external_id = ?", externalID).Error)
	return s
}

func subscriptionEvent(t *testing.T, eventType string, sub stripe.Subscription) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(sub)
	require.NoError(t, err)
	return stripe.Event{
		ID:   "evt_" + sub.ID,
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: raw},
	}
}

func invoiceEvent(t *testing.T, eventType string, invoice stripe.Invoice) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(invoice)
	require.NoError(t, err)
	return stripe.Event{
		ID:      "evt_" + invoice.ID,
		Type:    stripe.EventType(eventType),
		Created: time.Date(2024, 5, 3, 8, 0, 0, 0, time.UTC).Unix(),
		Data:    &stripe.EventData{Raw: raw},
	}
}

func gatewaySubscription(id, price string, status stripe.SubscriptionStatus, metadata map[string]string) stripe.Subscription {
	return stripe.Subscription{
		ID:                 id,
		Customer:           &stripe.Customer{ID: "cus_remote"},
		Status:             status,
		CurrentPeriodStart: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).Unix(),
		CurrentPeriodEnd:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC).Unix(),
		Metadata:           metadata,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{Price: &stripe.Price{ID: price}}},
		},
	}
}

func TestSubscriptionHandler_Created_LinksSaleAndCustomer(t *testing.T) {
	f := newSubscriptionFixture(t)
	saleID := uuid.New()

	sub := gatewaySubscription("sub_1", "price_basic", stripe.SubscriptionStatusActive, map[string]string{
		MetadataSaleID:     saleID.String(),
		MetadataCustomerID: f.customer.ID.String(),
	})
	id, err := f.handler.HandleSubscriptionCreated(context.Background(), subscriptionEvent(t, "customer.subscription.created", sub))

	require.NoError(t, err)
	require.NotNil(t, id)
	local := f.mirror(t, "sub_1")
	assert.Equal(t, *id, local.ID)
	assert.Equal(t, billingdomain.SubscriptionActive, local.Status)
	assert.Equal(t, "price_basic", local.PriceID)
	require.NotNil(t, local.SaleID)
	assert.Equal(t, saleID, *local.SaleID)
	require.NotNil(t, local.CustomerID)
	assert.Equal(t, f.customer.ID, *local.CustomerID)
	assert.Equal(t, saleID.String(), local.Metadata[MetadataSaleID])

	customer := f.reloadCustomer(t)
	assert.Equal(t, "cus_remote", customer.ExternalCustomerID)
	assert.True(t, customer.EntitlementActive)
}

func TestSubscriptionHandler_Created_IsIdempotent(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()
	event := subscriptionEvent(t, "customer.subscription.created",
		gatewaySubscription("sub_2", "price_basic", stripe.SubscriptionStatusTrialing, nil))

	first, err := f.handler.HandleSubscriptionCreated(ctx, event)
	require.NoError(t, err)
	second, err := f.handler.HandleSubscriptionCreated(ctx, event)
	require.NoError(t, err)

	assert.Equal(t, *first, *second)
	var count int64
	require.NoError(t, f.db.Model(&billingdomain.Subscription{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSubscriptionHandler_Updated_UnknownCreatesMirror(t *testing.T) {
	f := newSubscriptionFixture(t)

	_, err := f.handler.HandleSubscriptionUpdated(context.Background(), subscriptionEvent(t, "customer.subscription.updated",
		gatewaySubscription("sub_late", "price_pro", stripe.SubscriptionStatusPastDue, nil)))

	require.NoError(t, err)
	local := f.mirror(t, "sub_late")
	assert.Equal(t, billingdomain.SubscriptionPastDue, local.Status)
}

func TestSubscriptionHandler_Updated_PlanChange(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()
	metadata := map[string]string{MetadataCustomerID: f.customer.ID.String()}

	_, err := f.handler.HandleSubscriptionCreated(ctx, subscriptionEvent(t, "customer.subscription.created",
		gatewaySubscription("sub_3", "price_basic", stripe.SubscriptionStatusActive, metadata)))
	require.NoError(t, err)

	_, err = f.handler.HandleSubscriptionUpdated(ctx, subscriptionEvent(t, "customer.subscription.updated",
		gatewaySubscription("sub_3", "price_pro", stripe.SubscriptionStatusActive, metadata)))
	require.NoError(t, err)

	local := f.mirror(t, "sub_3")
	assert.Equal(t, "price_pro", local.PriceID)
	assert.Equal(t, "price_basic", local.PreviousPriceID)
	require.NotNil(t, local.PlanChangedAt)
	assert.True(t, local.PlanChangedAt.Equal(subscriptionClock))

	changes := f.published.ofType(billingdomain.EventTypeSubscriptionPlanChanged)
	require.Len(t, changes, 1)
	change := changes[0].(*billingdomain.SubscriptionPlanChangedEvent)
	assert.Equal(t, "price_basic", change.PreviousPriceID)
	assert.Equal(t, "price_pro", change.NewPriceID)
}

func TestSubscriptionHandler_Updated_PastDueRevokesEntitlement(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()
	metadata := map[string]string{MetadataCustomerID: f.customer.ID.String()}

	_, err := f.handler.HandleSubscriptionCreated(ctx, subscriptionEvent(t, "customer.subscription.created",
		gatewaySubscription("sub_4", "price_basic", stripe.SubscriptionStatusActive, metadata)))
	require.NoError(t, err)
	require.True(t, f.reloadCustomer(t).EntitlementActive)

	_, err = f.handler.HandleSubscriptionUpdated(ctx, subscriptionEvent(t, "customer.subscription.updated",
		gatewaySubscription("sub_4", "price_basic", stripe.SubscriptionStatusUnpaid, metadata)))
	require.NoError(t, err)

	assert.False(t, f.reloadCustomer(t).EntitlementActive)
	assert.Empty(t, f.published.ofType(billingdomain.EventTypeSubscriptionPlanChanged))
}

func TestSubscriptionHandler_Deleted(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()
	metadata := map[string]string{MetadataCustomerID: f.customer.ID.String()}

	_, err := f.handler.HandleSubscriptionCreated(ctx, subscriptionEvent(t, "customer.subscription.created",
		gatewaySubscription("sub_5", "price_basic", stripe.SubscriptionStatusActive, metadata)))
	require.NoError(t, err)

	deleted := gatewaySubscription("sub_5", "price_basic", stripe.SubscriptionStatusCanceled, metadata)
	deleted.CanceledAt = time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC).Unix()
	_, err = f.handler.HandleSubscriptionDeleted(ctx, subscriptionEvent(t, "customer.subscription.deleted", deleted))
	require.NoError(t, err)

	local := f.mirror(t, "sub_5")
	assert.Equal(t, billingdomain.SubscriptionCanceled, local.Status)
	require.NotNil(t, local.CanceledAt)
	assert.True(t, local.CanceledAt.Equal(time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)))
	assert.False(t, f.reloadCustomer(t).EntitlementActive)
}

func TestSubscriptionHandler_UpdatedAfterDeletedStaysCanceled(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()
	metadata := map[string]string{MetadataCustomerID: f.customer.ID.String()}

	_, err := f.handler.HandleSubscriptionCreated(ctx, subscriptionEvent(t, "customer.subscription.created",
		gatewaySubscription("sub_6", "price_basic", stripe.SubscriptionStatusActive, metadata)))
	require.NoError(t, err)
	_, err = f.handler.HandleSubscriptionDeleted(ctx, subscriptionEvent(t, "customer.subscription.deleted",
		gatewaySubscription("sub_6", "price_basic", stripe.SubscriptionStatusCanceled, metadata)))
	require.NoError(t, err)
	require.False(t, f.reloadCustomer(t).EntitlementActive)

	// an update sent before the deletion but delivered after it
	id, err := f.handler.HandleSubscriptionUpdated(ctx, subscriptionEvent(t, "customer.subscription.updated",
		gatewaySubscription("sub_6", "price_pro", stripe.SubscriptionStatusActive, metadata)))

	require.NoError(t, err)
	require.NotNil(t, id)
	local := f.mirror(t, "sub_6")
	assert.Equal(t, *id, local.ID)
	assert.Equal(t, billingdomain.SubscriptionCanceled, local.Status)
	assert.Equal(t, "price_basic", local.PriceID)
	assert.False(t, f.reloadCustomer(t).EntitlementActive)
	assert.Empty(t, f.published.ofType(billingdomain.EventTypeSubscriptionPlanChanged))
}

func TestSubscriptionHandler_Deleted_UnknownIsSkipped(t *testing.T) {
	f := newSubscriptionFixture(t)

	id, err := f.handler.HandleSubscriptionDeleted(context.Background(), subscriptionEvent(t, "customer.subscription.deleted",
		gatewaySubscription("sub_never", "price_basic", stripe.SubscriptionStatusCanceled, nil)))

	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestSubscriptionHandler_InvoicePaid_AppliesToSale(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()
	saleID := uuid.New()

	_, err := f.handler.HandleSubscriptionCreated(ctx, subscriptionEvent(t, "customer.subscription.created",
		gatewaySubscription("sub_6", "price_basic", stripe.SubscriptionStatusActive, map[string]string{MetadataSaleID: saleID.String()})))
	require.NoError(t, err)
	local := f.mirror(t, "sub_6")

	installmentID := uuid.New()
	f.ledger.On("ApplyPayment", ctx, mock.MatchedBy(func(in ledger.ApplyPaymentInput) bool {
		return in.SaleID != nil && *in.SaleID == saleID &&
			in.InstallmentID == nil &&
			in.Amount.Equal(decimal.RequireFromString("2500")) &&
			in.Reference == "pi_invoice" &&
			in.Source == sales.PaymentSourceSubscription &&
			in.SubscriptionID != nil && *in.SubscriptionID == local.ID
	})).Return(paidResult(installmentID), nil)

	invoice := stripe.Invoice{
		ID:            "in_1",
		AmountPaid:    250000,
		Subscription:  &stripe.Subscription{ID: "sub_6"},
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_invoice"},
	}
	id, err := f.handler.HandleInvoicePaymentSucceeded(ctx, invoiceEvent(t, "invoice.payment_succeeded", invoice))

	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, installmentID, *id)
	f.ledger.AssertExpectations(t)
}

func TestSubscriptionHandler_InvoicePaid_StandaloneRecord(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()

	_, err := f.handler.HandleSubscriptionCreated(ctx, subscriptionEvent(t, "customer.subscription.created",
		gatewaySubscription("sub_7", "price_basic", stripe.SubscriptionStatusActive, nil)))
	require.NoError(t, err)

	event := invoiceEvent(t, "invoice.payment_succeeded", stripe.Invoice{
		ID:           "in_2",
		AmountPaid:   99900,
		Subscription: &stripe.Subscription{ID: "sub_7"},
	})
	_, err = f.handler.HandleInvoicePaymentSucceeded(ctx, event)
	require.NoError(t, err)
	_, err = f.handler.HandleInvoicePaymentSucceeded(ctx, event)
	require.NoError(t, err)

	var records []sales.PaymentRecord
	require.NoError(t, f.db.Find(&records).Error)
	require.Len(t, records, 1)
	assert.True(t, records[0].Amount.Equal(decimal.RequireFromString("999")))
	assert.Equal(t, sales.PaymentSourceSubscription, records[0].Source)
	require.NotNil(t, records[0].Reference)
	assert.Equal(t, "in_2", *records[0].Reference)
	f.ledger.AssertNotCalled(t, "ApplyPayment", mock.Anything, mock.Anything)
}

func TestSubscriptionHandler_InvoicePaid_LedgerRejectsFallsBackToRecord(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()
	saleID := uuid.New()

	_, err := f.handler.HandleSubscriptionCreated(ctx, subscriptionEvent(t, "customer.subscription.created",
		gatewaySubscription("sub_8", "price_basic", stripe.SubscriptionStatusActive, map[string]string{MetadataSaleID: saleID.String()})))
	require.NoError(t, err)

	f.ledger.On("ApplyPayment", ctx, mock.Anything).Return(nil, sales.ErrNoEligibleInstallment)

	_, err = f.handler.HandleInvoicePaymentSucceeded(ctx, invoiceEvent(t, "invoice.payment_succeeded", stripe.Invoice{
		ID:           "in_3",
		AmountPaid:   120000,
		Subscription: &stripe.Subscription{ID: "sub_8"},
	}))
	require.NoError(t, err)

	var records []sales.PaymentRecord
	require.NoError(t, f.db.Find(&records).Error)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].SaleID)
	assert.Equal(t, saleID, *records[0].SaleID)
}

func TestSubscriptionHandler_InvoiceFailed_NotifiesOwner(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()

	_, err := f.handler.HandleSubscriptionCreated(ctx, subscriptionEvent(t, "customer.subscription.created",
		gatewaySubscription("sub_9", "price_basic", stripe.SubscriptionStatusActive,
			map[string]string{MetadataCustomerID: f.customer.ID.String()})))
	require.NoError(t, err)

	_, err = f.handler.HandleInvoicePaymentFailed(ctx, invoiceEvent(t, "invoice.payment_failed", stripe.Invoice{
		ID:           "in_4",
		AmountDue:    250000,
		AttemptCount: 2,
		Subscription: &stripe.Subscription{ID: "sub_9"},
	}))
	require.NoError(t, err)

	failures := f.published.ofType(billingdomain.EventTypeInvoicePaymentFailed)
	require.Len(t, failures, 1)
	failure := failures[0].(*billingdomain.InvoicePaymentFailedEvent)
	assert.Equal(t, "lucia@example.com", failure.CustomerEmail)
	assert.Equal(t, "in_4", failure.ExternalInvoiceID)
	assert.True(t, failure.AmountDue.Equal(decimal.RequireFromString("2500")))
	assert.Equal(t, int64(2), failure.AttemptCount)
}

func TestSubscriptionHandler_InvoiceFailed_FallsBackToGatewayCustomer(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()

	_, err := f.handler.HandleSubscriptionCreated(ctx, subscriptionEvent(t, "customer.subscription.created",
		gatewaySubscription("sub_10", "price_basic", stripe.SubscriptionStatusActive, nil)))
	require.NoError(t, err)

	f.gateway.On("RetrieveCustomer", ctx, "cus_remote").
		Return(&CustomerCommand{Name: "Owner", Email: "owner@example.com"}, nil)

	_, err = f.handler.HandleInvoicePaymentFailed(ctx, invoiceEvent(t, "invoice.payment_failed", stripe.Invoice{
		ID:           "in_5",
		Customer:     &stripe.Customer{ID: "cus_remote"},
		Subscription: &stripe.Subscription{ID: "sub_10"},
	}))
	require.NoError(t, err)

	failures := f.published.ofType(billingdomain.EventTypeInvoicePaymentFailed)
	require.Len(t, failures, 1)
	assert.Equal(t, "owner@example.com", failures[0].(*billingdomain.InvoicePaymentFailedEvent).CustomerEmail)
	f.gateway.AssertExpectations(t)
}
