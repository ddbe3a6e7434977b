package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	domaintask "github.com/alanyang/call-dispatch/internal/domain/task"
	porttask "github.com/alanyang/call-dispatch/internal/port/task"
)

type TaskRepository struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]domaintask.Task
	// seq preserves insertion order for tasks created in the same instant.
	seq  map[uuid.UUID]int
	next int
}

var _ porttask.Repository = (*TaskRepository)(nil)

func NewTaskRepository() *TaskRepository {
	return &TaskRepository{
		tasks: make(map[uuid.UUID]domaintask.Task),
		seq:   make(map[uuid.UUID]int),
	}
}

func (r *TaskRepository) CreateBatch(_ context.Context, tasks []domaintask.Task) ([]domaintask.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range tasks {
		if _, exists := r.tasks[t.ID]; exists {
			return nil, fmt.Errorf("inserting task %s: duplicate id", t.ID)
		}
	}
	out := make([]domaintask.Task, len(tasks))
	for i, t := range tasks {
		r.tasks[t.ID] = t
		r.seq[t.ID] = r.next
		r.next++
		out[i] = t
	}
	return out, nil
}

func (r *TaskRepository) GetByID(_ context.Context, tenantID, id uuid.UUID) (domaintask.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok || t.TenantID != tenantID {
		return domaintask.Task{}, domaintask.ErrNotFound
	}
	return t, nil
}

func (r *TaskRepository) List(_ context.Context, filters domaintask.ListFilters) ([]domaintask.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []domaintask.Task{}
	for _, t := range r.tasks {
		if t.TenantID != filters.TenantID {
			continue
		}
		if filters.Status != nil && t.Status != *filters.Status {
			continue
		}
		if filters.AssignedTo != nil && (t.AssignedAgentID == nil || *t.AssignedAgentID != *filters.AssignedTo) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if filters.OldestFirst {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if filters.OldestFirst {
			return r.seq[a.ID] < r.seq[b.ID]
		}
		return r.seq[a.ID] > r.seq[b.ID]
	})
	return out, nil
}

func (r *TaskRepository) UpdateStatus(_ context.Context, tenantID, id uuid.UUID, status domaintask.Status, completedAt *time.Time) (domaintask.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || t.TenantID != tenantID {
		return domaintask.Task{}, domaintask.ErrNotFound
	}
	t.Status = status
	t.CompletedAt = completedAt
	r.tasks[id] = t
	return t, nil
}

func (r *TaskRepository) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || t.TenantID != tenantID {
		return domaintask.ErrNotFound
	}
	delete(r.tasks, id)
	delete(r.seq, id)
	return nil
}

func (r *TaskRepository) Assign(_ context.Context, taskID, agentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, domaintask.ErrNotFound)
	}
	id := agentID
	t.AssignedAgentID = &id
	r.tasks[taskID] = t
	return nil
}

func (r *TaskRepository) ClearAssignments(_ context.Context, tenantID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, t := range r.tasks {
		if t.TenantID == tenantID {
			t.AssignedAgentID = nil
			r.tasks[id] = t
		}
	}
	return nil
}

func (r *TaskRepository) OpenPhones(_ context.Context, tenantID uuid.UUID, phones []string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	open := make(map[string]bool)
	for _, t := range r.tasks {
		if t.TenantID == tenantID && t.Status.Open() {
			open[t.Phone] = true
		}
	}
	var taken []string
	seen := make(map[string]bool)
	for _, p := range phones {
		if open[p] && !seen[p] {
			taken = append(taken, p)
			seen[p] = true
		}
	}
	return taken, nil
}
