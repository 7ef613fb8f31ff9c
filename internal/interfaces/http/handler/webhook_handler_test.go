package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	appbilling "github.com/inmobiliaria/backend/internal/application/billing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWebhookProcessor struct {
	mock.Mock
}

func (m *MockWebhookProcessor) ProcessWebhookWithRetry(ctx context.Context, payload []byte, signature string) (*appbilling.WebhookResult, error) {
	args := m.Called(ctx, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.WebhookResult), args.Error(1)
}

func setupWebhookRouter(processor WebhookProcessor, maxPayload int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewStripeWebhookHandler(processor, maxPayload)
	r.POST("/webhooks/stripe", h.HandleStripeWebhook)
	return r
}

func postWebhook(r *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStripeWebhookHandler_Processed(t *testing.T) {
	processor := new(MockWebhookProcessor)
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	processor.On("ProcessWebhookWithRetry", mock.Anything, body, "t=1,v1=abc").
		Return(&appbilling.WebhookResult{EventID: "evt_1", EventType: "payment_intent.succeeded", Processed: true}, nil)

	w := postWebhook(setupWebhookRouter(processor, 0), body, "t=1,v1=abc")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp StripeWebhookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Received)
	assert.Equal(t, "evt_1", resp.EventID)
	assert.False(t, resp.Duplicate)
	processor.AssertExpectations(t)
}

func TestStripeWebhookHandler_DuplicateIsAcknowledged(t *testing.T) {
	processor := new(MockWebhookProcessor)
	processor.On("ProcessWebhookWithRetry", mock.Anything, mock.Anything, mock.Anything).
		Return(&appbilling.WebhookResult{EventID: "evt_1", Processed: true, Duplicate: true}, nil)

	w := postWebhook(setupWebhookRouter(processor, 0), []byte(`{}`), "sig")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"duplicate":true`)
}

func TestStripeWebhookHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"bad signature", fmt.Errorf("%w: no match", appbilling.ErrInvalidSignature), http.StatusBadRequest},
		{"no secret", appbilling.ErrWebhookSecretMissing, http.StatusBadRequest},
		{"malformed", appbilling.ErrMalformedEvent, http.StatusBadRequest},
		{"processing failure", errors.New("database unavailable"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := new(MockWebhookProcessor)
			processor.On("ProcessWebhookWithRetry", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)

			w := postWebhook(setupWebhookRouter(processor, 0), []byte(`{}`), "sig")

			assert.Equal(t, tt.status, w.Code)
			var resp StripeWebhookError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.True(t, strings.HasPrefix(resp.Error, "Webhook Error: "))
		})
	}
}

func TestStripeWebhookHandler_PayloadTooLarge(t *testing.T) {
	processor := new(MockWebhookProcessor)

	w := postWebhook(setupWebhookRouter(processor, 16), bytes.Repeat([]byte("a"), 17), "sig")

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	processor.AssertNotCalled(t, "ProcessWebhookWithRetry", mock.Anything, mock.Anything, mock.Anything)
}
