package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"campusconnect/pkg/errors"

	"github.com/gin-gonic/gin"
)

// AgentAuthMiddleware requires "Authorization: Bearer <secret>" when secret
// is non-empty. An empty secret leaves the routes open, which is only sane
// for an agent bound to loopback.
func AgentAuthMiddleware(secret string) gin.HandlerFunc {
	if secret == "" {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "authorization header required")
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(secret)) != 1 {
			abortUnauthorized(c, "invalid agent token")
			return
		}
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   string(errors.ErrCodeUnauthorized),
		"message": message,
	})
}
