package agent

import (
	"context"

	"github.com/google/uuid"

	domainagent "github.com/alanyang/call-dispatch/internal/domain/agent"
)

//go:generate mockgen -source=agent.go -destination=../../mocks/mock_agent_repository.go -package=mocks -mock_names=Repository=MockAgentRepository

// Repository manages agent state in the database. Every read is scoped to a tenant.
type Repository interface {
	Create(ctx context.Context, a domainagent.Agent) (domainagent.Agent, error)
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (domainagent.Agent, error)
	// List returns agents ordered by created_at ASC.
	List(ctx context.Context, filters domainagent.ListFilters) ([]domainagent.Agent, error)
	Update(ctx context.Context, a domainagent.Agent) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error

	SetActive(ctx context.Context, tenantID, id uuid.UUID, active bool) error
	// ActivateAll marks every agent of the tenant active and returns how many changed.
	ActivateAll(ctx context.Context, tenantID uuid.UUID) (int, error)

	// PushTasks appends task ids to the agent's assigned list.
	PushTasks(ctx context.Context, agentID uuid.UUID, taskIDs []uuid.UUID) error
	PullTask(ctx context.Context, agentID, taskID uuid.UUID) error
	ClearTasks(ctx context.Context, agentID uuid.UUID) error
	// ClearAllTasks empties the assigned list of every agent of the tenant.
	ClearAllTasks(ctx context.Context, tenantID uuid.UUID) error
}
