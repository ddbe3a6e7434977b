package mcp

import (
	"context"
	"log/slog"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	agentsvc "github.com/alanyang/call-dispatch/internal/service/agent"
	"github.com/alanyang/call-dispatch/internal/service/rebalance"
	tasksvc "github.com/alanyang/call-dispatch/internal/service/task"
)

// Server wraps the mark3labs/mcp-go MCPServer and its StreamableHTTPServer.
// Tools live in tools.go, prompts in prompts.go, session state in registry.go.
type Server struct {
	httpSrv *mcpserver.StreamableHTTPServer
	reg     *SessionRegistry
}

func New(
	reg *SessionRegistry,
	agentSvc *agentsvc.Service,
	taskSvc *tasksvc.Service,
	rb *rebalance.Service,
) *Server {
	s := &Server{reg: reg}

	hooks := &mcpserver.Hooks{}
	hooks.OnUnregisterSession = append(hooks.OnUnregisterSession, s.onSessionClose)

	mcpSrv := mcpserver.NewMCPServer(
		"call-dispatch",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithHooks(hooks),
	)
	reg.SetMCPServer(mcpSrv)

	RegisterTools(mcpSrv, reg, agentSvc, taskSvc, rb)
	RegisterPrompts(mcpSrv, agentSvc)

	s.httpSrv = mcpserver.NewStreamableHTTPServer(mcpSrv)
	return s
}

// Handler serves the MCP streamable HTTP endpoint.
func (s *Server) Handler() http.Handler {
	return s.httpSrv
}

func (s *Server) Registry() *SessionRegistry {
	return s.reg
}

func (s *Server) onSessionClose(ctx context.Context, session mcpserver.ClientSession) {
	if tenantID, ok := s.reg.Unregister(session.SessionID()); ok {
		slog.InfoContext(ctx, "mcp: session closed", "session_id", session.SessionID(), "tenant_id", tenantID)
	}
}
