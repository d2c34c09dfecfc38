package middleware

import (
	"net/http"

	"paircall/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware converts errors attached to the gin context into
// JSON responses. AppErrors keep their code and status; anything else is
// reported as an internal error without leaking detail to the caller.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		if appErr := errors.GetAppError(err); appErr != nil {
			logger.Errorw("request failed",
				"code", appErr.Code,
				"status", appErr.HTTPStatus,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"error", appErr.Message,
			)
			respondError(c, appErr.HTTPStatus, string(appErr.Code), appErr.Message)
			return
		}

		logger.Errorw("unhandled error",
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"error", err,
		)
		respondError(c, http.StatusInternalServerError, string(errors.ErrCodeInternal), "Internal server error")
	}
}

// RecoveryMiddleware turns a handler panic into a 500 instead of tearing
// the connection down.
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("panic recovered",
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
					"panic", r,
				)
				respondError(c, http.StatusInternalServerError, string(errors.ErrCodeInternal), "Internal server error")
				c.Abort()
			}
		}()
		c.Next()
	}
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": code, "message": message})
}
