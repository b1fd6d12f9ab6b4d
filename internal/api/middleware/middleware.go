// Package middleware holds the gin middleware shared by admin routes.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"voxflow/internal/api/errors"
)

const requestIDKey = "request_id"

// RequestID adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(requestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// Logging writes one structured line per request. Health probes are skipped.
func Logging(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.FullPath() == "/health" {
			return
		}
		fields := []zap.Field{
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.String()))
		}
		logger.Info("HTTP request", fields...)
	}
}

// Recovery turns panics into a 500 JSON body.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("Panic in handler",
			zap.Any("recovered", recovered),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("path", c.Request.URL.Path),
		)
		c.AbortWithStatusJSON(500, &errors.APIError{
			Kind:      errors.KindInternal,
			Message:   "Internal server error",
			RequestID: c.GetString(requestIDKey),
		})
	})
}

// HandleError writes err as an APIError and aborts the chain.
func HandleError(c *gin.Context, err error, resource string) {
	if err == nil {
		return
	}
	apiErr := errors.FromError(err, resource)
	apiErr.RequestID = c.GetString(requestIDKey)
	_ = c.Error(err)
	c.AbortWithStatusJSON(apiErr.HTTPStatus(), apiErr)
}

// ValidateQuery binds query parameters and reports binding failures as 400.
func ValidateQuery(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindQuery(req); err != nil {
		return errors.NewBadRequestError("Invalid query parameters: " + err.Error())
	}
	return nil
}
