package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testEvent struct {
	shared.BaseDomainEvent
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "Installment", uuid.New())}
}

type testHandler struct {
	mu         sync.Mutex
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
	panics     bool
	block      chan struct{}
}

func (h *testHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if h.block != nil {
		<-h.block
	}
	if h.panics {
		panic("boom")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	return h.err
}

func (h *testHandler) EventTypes() []string { return h.eventTypes }

func (h *testHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func TestBus_SynchronousRouting(t *testing.T) {
	bus := NewInMemoryEventBus(zaptest.NewLogger(t))
	paid := &testHandler{eventTypes: []string{"InstallmentPaid"}}
	all := &testHandler{}
	bus.Subscribe(paid)
	bus.Subscribe(all)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("InstallmentPaid"), newTestEvent("RefundApproved")))

	assert.Equal(t, 1, paid.count())
	assert.Equal(t, 2, all.count())
}

func TestBus_HandlerFailuresAreIsolated(t *testing.T) {
	bus := NewInMemoryEventBus(zaptest.NewLogger(t))
	failing := &testHandler{err: errors.New("smtp down")}
	panicking := &testHandler{panics: true}
	healthy := &testHandler{}
	bus.Subscribe(failing, "RefundProcessed")
	bus.Subscribe(panicking, "RefundProcessed")
	bus.Subscribe(healthy, "RefundProcessed")

	err := bus.Publish(context.Background(), newTestEvent("RefundProcessed"))

	assert.NoError(t, err)
	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 1, healthy.count())
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	h := &testHandler{}
	bus.Subscribe(h, "SaleLiquidated", "InstallmentPaid")
	bus.Unsubscribe(h)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("SaleLiquidated")))
	assert.Equal(t, 0, h.count())
	assert.Empty(t, bus.registry.handlers)
}

func TestBus_AsyncDispatchOutlivesCallerContext(t *testing.T) {
	bus := NewInMemoryEventBus(zaptest.NewLogger(t))
	require.NoError(t, bus.Start(context.Background()))
	h := &testHandler{block: make(chan struct{})}
	bus.Subscribe(h, "InstallmentPaid")

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Publish(ctx, newTestEvent("InstallmentPaid")))
	cancel()
	assert.Equal(t, 0, h.count(), "publish must not wait for the handler")

	close(h.block)
	require.NoError(t, bus.Stop(context.Background()))
	assert.Equal(t, 1, h.count())
}

func TestBus_StopHonoursDeadline(t *testing.T) {
	bus := NewInMemoryEventBus(zaptest.NewLogger(t))
	require.NoError(t, bus.Start(context.Background()))
	h := &testHandler{block: make(chan struct{})}
	bus.Subscribe(h, "InstallmentPaid")
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("InstallmentPaid")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Stop(ctx), context.DeadlineExceeded)

	close(h.block)
}
