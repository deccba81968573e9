package middleware

import (
	"context"
	"strings"

	"simoj/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader    = "X-Trace-Id"
	requestIDHeader  = "X-Request-Id"
	operatorIDHeader = "X-Operator-Id"
)

// TraceContextConfig controls which identifiers are accepted from the caller.
type TraceContextConfig struct {
	// AllowOperatorHeader copies X-Operator-Id into the context as the acting user.
	AllowOperatorHeader bool
}

// TraceContextMiddleware ensures trace/request/operator id are in context and response headers.
func TraceContextMiddleware() gin.HandlerFunc {
	return TraceContextMiddlewareWithConfig(TraceContextConfig{AllowOperatorHeader: true})
}

// TraceContextMiddlewareWithConfig is the configurable version of TraceContextMiddleware.
func TraceContextMiddlewareWithConfig(cfg TraceContextConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		bindID(c, traceIDHeader, "trace_id", contextkey.TraceID, true)
		bindID(c, requestIDHeader, "request_id", contextkey.RequestID, true)
		if cfg.AllowOperatorHeader {
			bindID(c, operatorIDHeader, "user_id", contextkey.UserID, false)
		}
		c.Next()
	}
}

func bindID(c *gin.Context, header, ginKey string, ctxKey interface{}, generate bool) {
	value := strings.TrimSpace(c.GetHeader(header))
	if value == "" {
		if !generate {
			return
		}
		value = uuid.NewString()
	}
	c.Set(ginKey, value)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), ctxKey, value))
	c.Writer.Header().Set(header, value)
}
