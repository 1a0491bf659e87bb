package middleware

import (
	"context"
	"net/http"
	"strconv"

	"chirp-dm/internal/redis"
	"chirp-dm/internal/services"
	"chirp-dm/internal/transport/httpdto"
	"chirp-dm/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type MessageLimiter interface {
	AllowMessage(ctx context.Context, userID uuid.UUID) (*redis.RateLimitResult, error)
}

// MessageRateLimitMiddleware applies the per-user message quota shared with the
// gateway. It runs after AuthMiddleware and lets requests through when the
// limiter itself fails.
func MessageRateLimitMiddleware(limiter MessageLimiter, l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := services.UserIDFromContext(c.Request.Context())
		if !ok || limiter == nil {
			c.Next()
			return
		}

		result, err := limiter.AllowMessage(c.Request.Context(), userID)
		if err != nil {
			if l != nil {
				l.WarnCtx(c.Request.Context(), "rate limit check failed", zap.Error(err))
			}
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("message rate limit exceeded", "RATE_LIMITED"))
			c.Abort()
			return
		}

		c.Next()
	}
}

func setRateLimitHeaders(c *gin.Context, result *redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}
