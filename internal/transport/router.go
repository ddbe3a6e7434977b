package transport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alanyang/call-dispatch/internal/domain/event"
	porteventbus "github.com/alanyang/call-dispatch/internal/port/eventbus"
	agentsvc "github.com/alanyang/call-dispatch/internal/service/agent"
	"github.com/alanyang/call-dispatch/internal/service/rebalance"
	tasksvc "github.com/alanyang/call-dispatch/internal/service/task"

	agenthandler "github.com/alanyang/call-dispatch/internal/transport/agent"
	mcptransport "github.com/alanyang/call-dispatch/internal/transport/mcp"
	taskhandler "github.com/alanyang/call-dispatch/internal/transport/task"
	"github.com/alanyang/call-dispatch/internal/transport/tenant"
	wshandler "github.com/alanyang/call-dispatch/internal/transport/ws"
)

func NewRouter(
	ctx context.Context,
	agentSvc *agentsvc.Service,
	taskSvc *tasksvc.Service,
	rebalanceSvc *rebalance.Service,
	mcpServer *mcptransport.Server,
	metricsHandler http.Handler,
	eventBus porteventbus.EventBus,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestLogger())
	r.Use(CORSMiddleware())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(metricsHandler))
	r.Any("/mcp", gin.WrapH(mcpServer.Handler()))

	api := r.Group("/api")

	hub := wshandler.NewHub()
	hub.Register(api.Group("/ws"))

	scoped := api.Group("")
	scoped.Use(tenant.Middleware())
	agenthandler.Register(scoped.Group("/agents"), agentSvc, rebalanceSvc)
	taskhandler.Register(scoped.Group("/tasks"), taskSvc)

	// One subscription per domain channel. Every event reaches the tenant's
	// websocket clients and MCP sessions; event.Type lets them filter.
	for _, ch := range event.Channels {
		c := ch
		if _, err := eventBus.Subscribe(ctx, c, func(ctx context.Context, e event.Event) {
			hub.Broadcast(e)
			if err := mcpServer.Registry().NotifyTenant(ctx, e.TenantID, e); err != nil {
				slog.ErrorContext(ctx, "failed to notify mcp sessions", "tenant_id", e.TenantID, "error", err)
			}
		}); err != nil {
			slog.Error("failed to subscribe channel to WS hub", "channel", c, "error", err)
		}
	}

	return r
}
