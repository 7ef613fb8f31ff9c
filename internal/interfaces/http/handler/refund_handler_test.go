package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appbilling "github.com/inmobiliaria/backend/internal/application/billing"
	billingdomain "github.com/inmobiliaria/backend/internal/domain/billing"
	"github.com/inmobiliaria/backend/internal/domain/shared"
	"github.com/inmobiliaria/backend/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRefundWorkflow struct {
	mock.Mock
}

func (m *MockRefundWorkflow) refundResult(args mock.Arguments) (*billingdomain.Refund, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingdomain.Refund), args.Error(1)
}

func (m *MockRefundWorkflow) RequestRefund(ctx context.Context, input appbilling.RequestRefundInput) (*billingdomain.Refund, error) {
	return m.refundResult(m.Called(ctx, input))
}

func (m *MockRefundWorkflow) ApproveRefund(ctx context.Context, refundID, approverID uuid.UUID) (*billingdomain.Refund, error) {
	return m.refundResult(m.Called(ctx, refundID, approverID))
}

func (m *MockRefundWorkflow) RetryRefund(ctx context.Context, refundID, actorID uuid.UUID) (*billingdomain.Refund, error) {
	return m.refundResult(m.Called(ctx, refundID, actorID))
}

func (m *MockRefundWorkflow) RejectRefund(ctx context.Context, refundID, rejecterID uuid.UUID, reason string) (*billingdomain.Refund, error) {
	return m.refundResult(m.Called(ctx, refundID, rejecterID, reason))
}

func (m *MockRefundWorkflow) GetRefund(ctx context.Context, refundID uuid.UUID) (*billingdomain.Refund, error) {
	return m.refundResult(m.Called(ctx, refundID))
}

func (m *MockRefundWorkflow) ListRefunds(ctx context.Context, filter shared.Filter) (shared.Paginated[billingdomain.Refund], error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(shared.Paginated[billingdomain.Refund]), args.Error(1)
}

func setupRefundRouter(svc RefundWorkflow, actor *uuid.UUID) *gin.Engine {
	r := gin.New()
	if actor != nil {
		r.Use(setActor(*actor, "admin@example.com"))
	}
	h := NewRefundHandler(svc)
	g := r.Group("/api/v1/refunds")
	g.POST("", h.RequestRefund)
	g.GET("", h.ListRefunds)
	g.GET("/:id", h.GetRefund)
	g.POST("/:id/approve", h.ApproveRefund)
	g.POST("/:id/reject", h.RejectRefund)
	g.POST("/:id/retry", h.RetryRefund)
	return r
}

func newRefund(status billingdomain.RefundStatus) *billingdomain.Refund {
	r, err := billingdomain.NewRefund(uuid.New(), decimal.RequireFromString("1500"), "Pago duplicado", uuid.New(), "admin@example.com")
	if err != nil {
		panic(err)
	}
	r.Status = status
	return r
}

func TestRefundHandler_RequestRefund(t *testing.T) {
	svc := new(MockRefundWorkflow)
	actor := uuid.New()
	installmentID := uuid.New()
	refund := newRefund(billingdomain.RefundPending)

	svc.On("RequestRefund", mock.Anything, mock.MatchedBy(func(in appbilling.RequestRefundInput) bool {
		return in.InstallmentID == installmentID &&
			in.RequestedBy == actor &&
			in.RequesterEmail == "admin@example.com" &&
			in.Amount.Equal(decimal.RequireFromString("1500"))
	})).Return(refund, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/refunds",
		bytes.NewBufferString(`{"pago_id":"`+installmentID.String()+`","monto":"1500","motivo":"Pago duplicado"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	setupRefundRouter(svc, &actor).ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := decodeEnvelope(t, w).Data.(map[string]any)
	assert.Equal(t, "pendiente", data["estatus"])
	assert.Equal(t, "1500.00", data["monto_reembolsado"])
	svc.AssertExpectations(t)
}

func TestRefundHandler_RequestRefund_ExceedsPaid(t *testing.T) {
	svc := new(MockRefundWorkflow)
	actor := uuid.New()
	svc.On("RequestRefund", mock.Anything, mock.Anything).Return(nil, appbilling.ErrRefundExceedsPaid)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/refunds",
		bytes.NewBufferString(`{"pago_id":"`+uuid.NewString()+`","monto":"999999","motivo":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	setupRefundRouter(svc, &actor).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.CodeRefundExceedsPaid, decodeEnvelope(t, w).Error.Code)
}

func TestRefundHandler_RequiresActor(t *testing.T) {
	svc := new(MockRefundWorkflow)
	r := setupRefundRouter(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/refunds/"+uuid.NewString()+"/approve", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	svc.AssertNotCalled(t, "ApproveRefund", mock.Anything, mock.Anything, mock.Anything)
}

func TestRefundHandler_ApproveRefund(t *testing.T) {
	actor := uuid.New()
	refund := newRefund(billingdomain.RefundProcessed)

	tests := []struct {
		name   string
		result *billingdomain.Refund
		err    error
		status int
		code   string
	}{
		{"processed", refund, nil, http.StatusOK, ""},
		{"not pending", nil, shared.NewDomainError(dto.CodeInvalidRefundState, "Cannot approve a procesado refund"), http.StatusConflict, dto.CodeInvalidRefundState},
		{"no payment reference", nil, appbilling.ErrMissingPaymentReference, http.StatusBadRequest, dto.CodeMissingPaymentReference},
		{"gateway failed", nil, fmt.Errorf("%w: card_declined", appbilling.ErrGatewayRefundFailed), http.StatusBadGateway, dto.ErrCodeGateway},
		{"missing", nil, appbilling.ErrRefundNotFound, http.StatusNotFound, "REFUND_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockRefundWorkflow)
			svc.On("ApproveRefund", mock.Anything, refund.ID, actor).Return(tt.result, tt.err)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/refunds/"+refund.ID.String()+"/approve", nil)
			w := httptest.NewRecorder()
			setupRefundRouter(svc, &actor).ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, decodeEnvelope(t, w).Error.Code)
			}
		})
	}
}

func TestRefundHandler_RetryRefund(t *testing.T) {
	actor := uuid.New()
	refund := newRefund(billingdomain.RefundProcessed)
	svc := new(MockRefundWorkflow)
	svc.On("RetryRefund", mock.Anything, refund.ID, actor).Return(refund, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/refunds/"+refund.ID.String()+"/retry", nil)
	w := httptest.NewRecorder()
	setupRefundRouter(svc, &actor).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestRefundHandler_RejectRefund(t *testing.T) {
	actor := uuid.New()
	refund := newRefund(billingdomain.RefundRejected)
	svc := new(MockRefundWorkflow)
	svc.On("RejectRefund", mock.Anything, refund.ID, actor, "Fuera de plazo").Return(refund, nil)
	r := setupRefundRouter(svc, &actor)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/refunds/"+refund.ID.String()+"/reject",
		bytes.NewBufferString(`{"motivo":"Fuera de plazo"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/refunds/"+refund.ID.String()+"/reject", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefundHandler_ListRefunds(t *testing.T) {
	actor := uuid.New()
	installmentID := uuid.New()
	svc := new(MockRefundWorkflow)
	svc.On("ListRefunds", mock.Anything, mock.MatchedBy(func(f shared.Filter) bool {
		return f.Page == 2 && f.PageSize == 10 &&
			f.Filters["estatus"] == "pendiente" &&
			f.Filters["pago_id"] == installmentID
	})).Return(shared.Paginated[billingdomain.Refund]{
		Items:    []billingdomain.Refund{*newRefund(billingdomain.RefundPending)},
		Total:    11,
		Page:     2,
		PageSize: 10,
	}, nil)

	w := httptest.NewRecorder()
	setupRefundRouter(svc, &actor).ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/api/v1/refunds?estatus=pendiente&pago_id="+installmentID.String()+"&page=2&page_size=10", nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeEnvelope(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(11), resp.Meta.Total)
	assert.Len(t, resp.Data, 1)
}

func TestRefundHandler_ListRefunds_RejectsUnknownFilters(t *testing.T) {
	actor := uuid.New()
	svc := new(MockRefundWorkflow)
	r := setupRefundRouter(svc, &actor)

	for _, q := range []string{"estatus=borrado", "pago_id=abc"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/refunds?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
	svc.AssertNotCalled(t, "ListRefunds", mock.Anything, mock.Anything)
}
