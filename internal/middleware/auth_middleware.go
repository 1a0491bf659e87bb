package middleware

import (
	"context"
	"net/http"
	"strings"

	"chirp-dm/internal/services"
	"chirp-dm/internal/transport/httpdto"
	"chirp-dm/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware resolves the bearer token through the identity provider and
// puts the identity on the request context.
func AuthMiddleware(identity services.IdentityProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			c.Abort()
			return
		}

		id, err := identity.Verify(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			c.Abort()
			return
		}

		ctx := services.WithIdentity(c.Request.Context(), id)
		ctx = context.WithValue(ctx, logger.UserIdKey, id.UserID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
