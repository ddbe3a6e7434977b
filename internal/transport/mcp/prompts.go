package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	mcpmcp "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	agentsvc "github.com/alanyang/call-dispatch/internal/service/agent"
)

// RegisterPrompts registers the workload_report prompt.
func RegisterPrompts(s *mcpserver.MCPServer, agentSvc *agentsvc.Service) {
	s.AddPrompt(
		mcpmcp.NewPrompt("workload_report",
			mcpmcp.WithPromptDescription("Current task load per agent for a tenant, as a starting point for a staffing review."),
			mcpmcp.WithArgument("tenant_id",
				mcpmcp.ArgumentDescription("Tenant UUID"),
				mcpmcp.RequiredArgument(),
			),
		),
		workloadReportHandler(agentSvc),
	)
}

func workloadReportHandler(agentSvc *agentsvc.Service) mcpserver.PromptHandlerFunc {
	return func(ctx context.Context, req mcpmcp.GetPromptRequest) (*mcpmcp.GetPromptResult, error) {
		tenantID, err := uuid.Parse(req.Params.Arguments["tenant_id"])
		if err != nil {
			return nil, fmt.Errorf("invalid tenant_id: %w", err)
		}

		agents, err := agentSvc.List(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("list agents: %w", err)
		}

		var b strings.Builder
		total := 0
		fmt.Fprintf(&b, "Workload for tenant %s:\n", tenantID)
		for _, a := range agents {
			state := "active"
			if !a.IsActive {
				state = "inactive"
			}
			fmt.Fprintf(&b, "- %s <%s>: %d tasks (%s)\n", a.Name, a.Email, a.Load(), state)
			total += a.Load()
		}
		fmt.Fprintf(&b, "%d agents, %d assigned tasks.\n", len(agents), total)

		return mcpmcp.NewGetPromptResult(
			"Workload report",
			[]mcpmcp.PromptMessage{
				mcpmcp.NewPromptMessage(
					mcpmcp.RoleUser,
					mcpmcp.TextContent{
						Type: "text",
						Text: b.String(),
					},
				),
			},
		), nil
	}
}
