package task

import (
	"context"
	"time"

	"github.com/google/uuid"

	domaintask "github.com/alanyang/call-dispatch/internal/domain/task"
)

//go:generate mockgen -source=task.go -destination=../../mocks/mock_task_repository.go -package=mocks -mock_names=Repository=MockTaskRepository

type Repository interface {
	// CreateBatch inserts all tasks or none.
	CreateBatch(ctx context.Context, tasks []domaintask.Task) ([]domaintask.Task, error)
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (domaintask.Task, error)
	List(ctx context.Context, filters domaintask.ListFilters) ([]domaintask.Task, error)
	UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status domaintask.Status, completedAt *time.Time) (domaintask.Task, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error

	Assign(ctx context.Context, taskID, agentID uuid.UUID) error
	// ClearAssignments nulls assigned_agent_id on every task of the tenant.
	ClearAssignments(ctx context.Context, tenantID uuid.UUID) error

	// OpenPhones returns the subset of phones already used by the tenant's
	// pending or in-progress tasks.
	OpenPhones(ctx context.Context, tenantID uuid.UUID, phones []string) ([]string, error)
}
