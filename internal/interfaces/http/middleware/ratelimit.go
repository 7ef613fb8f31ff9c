package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inmobiliaria/backend/internal/infrastructure/cache"
	"github.com/inmobiliaria/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// RateLimit limits requests per client IP through the given limiter
func RateLimit(limiter cache.RateLimiter, logger *zap.Logger) gin.HandlerFunc {
	return RateLimitByKey(limiter, func(c *gin.Context) string { return c.ClientIP() }, logger)
}

// RateLimitByKey limits requests per key. A limiter error lets the request through.
func RateLimitByKey(limiter cache.RateLimiter, keyFunc func(*gin.Context) string, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		decision, err := limiter.Allow(c.Request.Context(), keyFunc(c))
		if err != nil {
			logger.Warn("Rate limiter unavailable, allowing request", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(decision)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRateLimited,
				"Too many requests. Please try again later.",
				GetRequestID(c),
			))
			return
		}
		c.Next()
	}
}

func retryAfterSeconds(d cache.RateLimitDecision) int {
	secs := int(time.Until(d.ResetAt).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}
