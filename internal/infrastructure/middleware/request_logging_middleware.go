package middleware

import (
	"errors"
	"net/http"
	"time"

	"campusconnect/pkg/logger"
	"campusconnect/pkg/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// RequestLoggingMiddleware tags each request with an id and logs it once
// it completes. A caller-supplied X-Request-ID is kept.
func RequestLoggingMiddleware(log *zap.Logger, userID string) gin.HandlerFunc {
	cl := logger.NewContextLogger(log)

	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = utils.GenerateRequestID()
		}
		c.Header(requestIDHeader, id)

		ctx := logger.WithRequestID(c.Request.Context(), id)
		if userID != "" {
			ctx = logger.WithUserID(ctx, userID)
		}
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			ctx = logger.WithTraceID(ctx, sc.TraceID().String())
		}
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		cl.LogRequest(ctx, c.Request.Method, c.Request.URL.Path, status, time.Since(start).Milliseconds())
		if status >= http.StatusInternalServerError {
			err := c.Errors.Last()
			if err == nil {
				cl.LogError(ctx, errors.New(http.StatusText(status)), "request failed")
				return
			}
			cl.LogError(ctx, err.Err, "request failed")
		}
	}
}
