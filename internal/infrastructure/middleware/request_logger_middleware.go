package middleware

import (
	"context"
	"time"

	"paircall/pkg/logger"
	"paircall/pkg/utils"

	"github.com/gin-gonic/gin"
)

// RequestLoggerMiddleware assigns every request an ID, exposes it in the
// response headers and logs method, path, status and latency with the
// request-scoped logger.
func RequestLoggerMiddleware(contextLogger *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := utils.GenerateRequestID()
		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		contextLogger.LogRequest(ctx, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Milliseconds())
	}
}
