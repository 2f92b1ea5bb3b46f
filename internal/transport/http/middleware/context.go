package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nepalwears/account-service/internal/core/domain"
)

const (
	// TraceIDHeader is the HTTP header name for trace ID
	TraceIDHeader = "X-Trace-ID"
	// TraceIDKey is the context key for trace ID
	TraceIDKey = "trace_id"
	// AccountKey is the context key for the authenticated account
	AccountKey = "account"
)

// EnrichContext adds a trace ID to each request and echoes it in the response.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		c.Next()
	}
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(c *gin.Context) string {
	if traceID, exists := c.Get(TraceIDKey); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return ""
}

// GetAccount retrieves the authenticated account stored by RequireAuth.
func GetAccount(c *gin.Context) (domain.Account, bool) {
	value, exists := c.Get(AccountKey)
	if !exists {
		return domain.Account{}, false
	}

	account, ok := value.(domain.Account)
	return account, ok
}
