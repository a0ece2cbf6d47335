// Package middleware carries the cross-cutting gin middleware: the
// static API-key gate and request logging.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIKey guards the admin surface with one opaque static key, sent as
// the x-api-key header.
type APIKey struct {
	key string
}

func NewAPIKey(key string) *APIKey {
	return &APIKey{key: key}
}

func (a *APIKey) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("x-api-key")
		if got == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "x-api-key header is required",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(got), []byte(a.key)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Invalid API key",
			})
			return
		}

		c.Next()
	}
}
