// Package tenant resolves the owning account of a request.
package tenant

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	Header = "X-Tenant-ID"

	contextKey = "tenant_id"
)

// Middleware requires a UUID in the X-Tenant-ID header and stores it on the
// gin context. Authentication happens upstream.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.GetHeader(Header))
		if err != nil || id == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid " + Header + " header"})
			return
		}
		c.Set(contextKey, id)
		c.Next()
	}
}

// FromContext returns the tenant set by Middleware.
func FromContext(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(contextKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}
