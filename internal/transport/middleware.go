package transport

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	taskhandler "github.com/alanyang/call-dispatch/internal/transport/task"
	"github.com/alanyang/call-dispatch/internal/transport/tenant"
)

// quietRoutes are polled by dashboards and probes; their GETs log at Debug.
var quietRoutes = map[string]bool{
	"/api/tasks/":               true,
	"/api/tasks/agent/:agentId": true,
	"/api/agents/":              true,
	"/api/agents/:id":           true,
	"/api/ws":                   true,
	"/healthz":                  true,
	"/metrics":                  true,
}

var allowedHeaders = strings.Join([]string{
	"Content-Type",
	"Authorization",
	tenant.Header,
	taskhandler.IdempotencyHeader,
}, ", ")

// RequestLogger logs one line per request. Level follows the response class:
// 5xx at Error, 4xx at Warn, quiet GETs at Debug.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Request.Method == http.MethodOptions {
			return
		}

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		case c.Request.Method == http.MethodGet && quietRoutes[c.FullPath()]:
			level = slog.LevelDebug
		}

		attrs := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
		}
		if id := tenant.FromContext(c); id != uuid.Nil {
			attrs = append(attrs, "tenant_id", id)
		}
		if c.Request.ContentLength > 0 {
			attrs = append(attrs, "bytes_in", c.Request.ContentLength)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}
		slog.Log(c.Request.Context(), level, "request", attrs...)
	}
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", allowedHeaders)
		h.Set("Access-Control-Max-Age", "600")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
