package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKeyMiddleware guards write endpoints such as cost ingestion with a shared key
type APIKeyMiddleware struct {
	apiKey string
}

// NewAPIKeyMiddleware creates the guard; an empty key disables it
func NewAPIKeyMiddleware(apiKey string) *APIKeyMiddleware {
	return &APIKeyMiddleware{apiKey: apiKey}
}

// Enabled reports whether a key is configured
func (am *APIKeyMiddleware) Enabled() bool {
	return am.apiKey != ""
}

// RequireAPIKey accepts the key as a Bearer token or in X-API-Key
func (am *APIKeyMiddleware) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !am.Enabled() {
			c.Next()
			return
		}

		if token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok && am.ValidateKey(token) {
			c.Next()
			return
		}
		if am.ValidateKey(c.GetHeader("X-API-Key")) {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "Unauthorized",
			"message": "Valid API key required for this endpoint",
		})
	}
}

// ValidateKey compares in constant time
func (am *APIKeyMiddleware) ValidateKey(key string) bool {
	if key == "" || !am.Enabled() {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(am.apiKey)) == 1
}
