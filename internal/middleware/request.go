package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/irfndi/costcast/internal/logging"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// HTTPObserver receives one observation per served request
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

// RequestID propagates an incoming X-Request-ID or assigns a new UUID
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the id assigned by RequestID, or "" outside it
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// RequestLogger logs every request through LogAPIRequest and feeds observer.
// Handler errors attached with c.Error are logged with the request and client ids.
// Either argument may be nil.
func RequestLogger(logger logging.Logger, observer HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		clientID := c.Param("client_id")
		if logger != nil {
			logger.LogAPIRequest(c.Request.Method, c.Request.URL.Path, status, elapsed.Milliseconds(), clientID)
			if len(c.Errors) > 0 {
				entry := logger.WithRequestID(GetRequestID(c))
				if clientID != "" {
					entry = logger.WithClient(clientID).With("request_id", GetRequestID(c))
				}
				entry.Error("Request failed",
					"path", c.FullPath(),
					"status_code", status,
					"errors", c.Errors.String(),
				)
			}
		}
		if observer != nil {
			observer.ObserveHTTP(c.Request.Method, c.FullPath(), status, elapsed)
		}
	}
}

// CORS allows the configured origins; "*" allows any
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := allowed[origin]; ok || allowAll {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, "+RequestIDHeader)
				c.Header("Access-Control-Expose-Headers", RequestIDHeader)
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
