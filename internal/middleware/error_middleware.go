package middleware

import (
	"chirp-dm/internal/services"
	"chirp-dm/internal/transport/httpdto"
	"chirp-dm/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler renders the last error a handler attached with c.Error, unless
// the handler already wrote a response. Unmapped errors are logged and their
// detail withheld from the client.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status := services.HTTPStatus(err)
		msg := err.Error()
		if status >= 500 {
			if l != nil {
				l.ErrorCtx(c.Request.Context(), "request failed",
					zap.String("path", c.Request.URL.Path), zap.Error(err))
			}
			msg = "internal server error"
		}
		c.JSON(status, httpdto.NewErrorResponse(msg, services.ErrorCode(err)))
	}
}
