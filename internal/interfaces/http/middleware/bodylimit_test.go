package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/inmobiliaria/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookPayload = `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","amount":799639}}}`

// newWebhookRouter mounts a stand-in for the gateway webhook, which reads the raw body
// because the signature covers the exact bytes
func newWebhookRouter(limit int64, received *[]byte, readErr *error) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), BodyLimit(limit))
	router.POST("/webhooks/stripe", func(c *gin.Context) {
		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			*readErr = err
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		*received = payload
		c.JSON(http.StatusOK, gin.H{"received": true})
	})
	return router
}

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("webhook payload within limit reaches the handler untouched", func(t *testing.T) {
		var received []byte
		var readErr error
		router := newWebhookRouter(1024, &received, &readErr)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(webhookPayload))
		req.Header.Set("Stripe-Signature", "t=1,v1=abc")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, readErr)
		assert.Equal(t, webhookPayload, string(received))
	})

	t.Run("declared oversize payload is refused with the error envelope", func(t *testing.T) {
		var received []byte
		var readErr error
		router := newWebhookRouter(64, &received, &readErr)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(webhookPayload))
		req.Header.Set(RequestIDHeader, "req-webhook-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Nil(t, received)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodePayloadTooLarge, resp.Error.Code)
		assert.Equal(t, "req-webhook-1", resp.Error.RequestID)
		assert.Equal(t, "req-webhook-1", w.Header().Get(RequestIDHeader))
	})

	t.Run("chunked payload fails on read once past the limit", func(t *testing.T) {
		var received []byte
		var readErr error
		router := newWebhookRouter(64, &received, &readErr)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(webhookPayload))
		req.ContentLength = -1
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		var maxErr *http.MaxBytesError
		require.True(t, errors.As(readErr, &maxErr), "expected MaxBytesError, got %v", readErr)
		assert.Equal(t, int64(64), maxErr.Limit)
		assert.Nil(t, received)
	})

	t.Run("reads without a body pass", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID(), BodyLimit(8))
		router.GET("/api/v1/sales/:id/schedule", func(c *gin.Context) {
			c.JSON(http.StatusOK, dto.Response{Success: true})
		})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/sales/42/schedule", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
