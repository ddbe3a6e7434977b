package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	mcpmcp "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	domaintask "github.com/alanyang/call-dispatch/internal/domain/task"
	agentsvc "github.com/alanyang/call-dispatch/internal/service/agent"
	"github.com/alanyang/call-dispatch/internal/service/rebalance"
	tasksvc "github.com/alanyang/call-dispatch/internal/service/task"
)

// RegisterTools registers all MCP tools on the server. Every tool takes the
// tenant_id it operates on and binds the calling session to that tenant.
func RegisterTools(
	s *mcpserver.MCPServer,
	reg *SessionRegistry,
	agentSvc *agentsvc.Service,
	taskSvc *tasksvc.Service,
	rb *rebalance.Service,
) {
	tenantArg := mcpmcp.WithString("tenant_id", mcpmcp.Required(), mcpmcp.Description("Tenant UUID"))

	s.AddTool(mcpmcp.NewTool("list_agents",
		mcpmcp.WithDescription("List the tenant's agents with their active flag and assigned task ids."),
		tenantArg,
	), listAgentsHandler(reg, agentSvc))

	s.AddTool(mcpmcp.NewTool("list_tasks",
		mcpmcp.WithDescription("List the tenant's tasks, newest first. Optionally filter by status or by assigned agent."),
		tenantArg,
		mcpmcp.WithString("status", mcpmcp.Description("One of: pending, in-progress, completed, failed")),
		mcpmcp.WithString("agent_id", mcpmcp.Description("Only tasks assigned to this agent UUID")),
	), listTasksHandler(reg, taskSvc))

	s.AddTool(mcpmcp.NewTool("rebalance_tasks",
		mcpmcp.WithDescription("Clear every assignment and spread all tasks evenly over the active agents. Returns the distribution metrics."),
		tenantArg,
	), rebalanceHandler(reg, rb))

	s.AddTool(mcpmcp.NewTool("update_task_status",
		mcpmcp.WithDescription("Set a task's status. Moving to completed stamps completed_at; any other status clears it."),
		tenantArg,
		mcpmcp.WithString("task_id", mcpmcp.Required(), mcpmcp.Description("Task UUID")),
		mcpmcp.WithString("status", mcpmcp.Required(), mcpmcp.Description("One of: pending, in-progress, completed, failed")),
	), updateTaskStatusHandler(reg, taskSvc))
}

// tenantFrom parses tenant_id and binds the session, if any, to it.
func tenantFrom(ctx context.Context, reg *SessionRegistry, req mcpmcp.CallToolRequest) (uuid.UUID, bool) {
	tenantID, err := uuid.Parse(mcpmcp.ParseString(req, "tenant_id", ""))
	if err != nil || tenantID == uuid.Nil {
		return uuid.Nil, false
	}
	if session := mcpserver.ClientSessionFromContext(ctx); session != nil {
		reg.Bind(session.SessionID(), tenantID)
	}
	return tenantID, true
}

func jsonResult(v any) *mcpmcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcpmcp.NewToolResultText(fmt.Sprintf("error: %s", err))
	}
	return mcpmcp.NewToolResultText(string(data))
}

func listAgentsHandler(reg *SessionRegistry, agentSvc *agentsvc.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		tenantID, ok := tenantFrom(ctx, reg, req)
		if !ok {
			return mcpmcp.NewToolResultText("error: invalid tenant_id"), nil
		}

		agents, err := agentSvc.List(ctx, tenantID)
		if err != nil {
			return mcpmcp.NewToolResultText(fmt.Sprintf("error: %s", err)), nil
		}
		if agents == nil {
			return mcpmcp.NewToolResultText("[]"), nil
		}
		return jsonResult(agents), nil
	}
}

func listTasksHandler(reg *SessionRegistry, taskSvc *tasksvc.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		tenantID, ok := tenantFrom(ctx, reg, req)
		if !ok {
			return mcpmcp.NewToolResultText("error: invalid tenant_id"), nil
		}

		var (
			tasks []domaintask.Task
			err   error
		)
		if v := mcpmcp.ParseString(req, "agent_id", ""); v != "" {
			agentID, perr := uuid.Parse(v)
			if perr != nil {
				return mcpmcp.NewToolResultText("error: invalid agent_id"), nil
			}
			tasks, err = taskSvc.ListByAgent(ctx, tenantID, agentID)
		} else {
			var status *domaintask.Status
			if v := mcpmcp.ParseString(req, "status", ""); v != "" {
				s := domaintask.Status(v)
				status = &s
			}
			tasks, err = taskSvc.List(ctx, tenantID, status)
		}
		if err != nil {
			return mcpmcp.NewToolResultText(fmt.Sprintf("error: %s", err)), nil
		}
		if tasks == nil {
			return mcpmcp.NewToolResultText("[]"), nil
		}
		return jsonResult(tasks), nil
	}
}

func rebalanceHandler(reg *SessionRegistry, rb *rebalance.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		tenantID, ok := tenantFrom(ctx, reg, req)
		if !ok {
			return mcpmcp.NewToolResultText("error: invalid tenant_id"), nil
		}

		res, err := rb.Rebalance(ctx, tenantID, rebalance.TriggerManual)
		if err != nil {
			return mcpmcp.NewToolResultText(fmt.Sprintf("error: %s", err)), nil
		}
		return jsonResult(res), nil
	}
}

func updateTaskStatusHandler(reg *SessionRegistry, taskSvc *tasksvc.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		tenantID, ok := tenantFrom(ctx, reg, req)
		if !ok {
			return mcpmcp.NewToolResultText("error: invalid tenant_id"), nil
		}
		taskID, err := uuid.Parse(mcpmcp.ParseString(req, "task_id", ""))
		if err != nil {
			return mcpmcp.NewToolResultText("error: invalid task_id"), nil
		}
		status := domaintask.Status(mcpmcp.ParseString(req, "status", ""))

		t, err := taskSvc.UpdateStatus(ctx, tenantID, taskID, status)
		if err != nil {
			return mcpmcp.NewToolResultText(fmt.Sprintf("error: %s", err)), nil
		}
		return jsonResult(t), nil
	}
}
