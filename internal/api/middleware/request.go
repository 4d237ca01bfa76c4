package middleware

import (
	"time"

	"github.com/GriffinCanCode/scripthost/backend/internal/logging"
	"github.com/GriffinCanCode/scripthost/backend/internal/shared/id"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const loggerKey = "logger"

// RequestID tags each request with an id, taken from the incoming header
// when present, and stores a logger carrying it.
func RequestID(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = id.NewRequestID().String()
		}
		c.Header(RequestIDHeader, reqID)

		reqLog := log.With(zap.String(logging.KeyRequestID, reqID))
		c.Set(loggerKey, reqLog)

		start := time.Now()
		c.Next()

		reqLog.Debug("request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

// Logger returns the request-scoped logger, or fallback outside RequestID.
func Logger(c *gin.Context, fallback *zap.Logger) *zap.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(*zap.Logger); ok {
			return l
		}
	}
	if fallback == nil {
		return zap.NewNop()
	}
	return fallback
}
