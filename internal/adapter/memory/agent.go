package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	domainagent "github.com/alanyang/call-dispatch/internal/domain/agent"
	portagent "github.com/alanyang/call-dispatch/internal/port/agent"
)

// AgentRepository keeps agents in a map. It is used when no database is
// configured and by service tests.
type AgentRepository struct {
	mu     sync.RWMutex
	agents map[uuid.UUID]domainagent.Agent
	// seq breaks created_at ties in insertion order.
	seq  map[uuid.UUID]int
	next int
}

var _ portagent.Repository = (*AgentRepository)(nil)

func NewAgentRepository() *AgentRepository {
	return &AgentRepository{
		agents: make(map[uuid.UUID]domainagent.Agent),
		seq:    make(map[uuid.UUID]int),
	}
}

func (r *AgentRepository) Create(_ context.Context, a domainagent.Agent) (domainagent.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.agents {
		if existing.TenantID == a.TenantID && existing.Email == a.Email {
			return domainagent.Agent{}, domainagent.ErrDuplicateEmail
		}
	}
	if a.AssignedTasks == nil {
		a.AssignedTasks = []uuid.UUID{}
	}
	r.agents[a.ID] = cloneAgent(a)
	r.seq[a.ID] = r.next
	r.next++
	return cloneAgent(a), nil
}

func (r *AgentRepository) GetByID(_ context.Context, tenantID, id uuid.UUID) (domainagent.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok || a.TenantID != tenantID {
		return domainagent.Agent{}, domainagent.ErrNotFound
	}
	return cloneAgent(a), nil
}

func (r *AgentRepository) List(_ context.Context, filters domainagent.ListFilters) ([]domainagent.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []domainagent.Agent{}
	for _, a := range r.agents {
		if a.TenantID != filters.TenantID {
			continue
		}
		if filters.ActiveOnly && !a.IsActive {
			continue
		}
		if filters.ExcludeID != nil && a.ID == *filters.ExcludeID {
			continue
		}
		if filters.Email != nil && a.Email != *filters.Email {
			continue
		}
		out = append(out, cloneAgent(a))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return r.seq[out[i].ID] < r.seq[out[j].ID]
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *AgentRepository) Update(_ context.Context, a domainagent.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.agents[a.ID]
	if !ok || existing.TenantID != a.TenantID {
		return domainagent.ErrNotFound
	}
	for id, other := range r.agents {
		if id != a.ID && other.TenantID == a.TenantID && other.Email == a.Email {
			return domainagent.ErrDuplicateEmail
		}
	}
	existing.Name = a.Name
	existing.Email = a.Email
	existing.CountryCode = a.CountryCode
	existing.MobileNumber = a.MobileNumber
	r.agents[a.ID] = existing
	return nil
}

func (r *AgentRepository) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok || a.TenantID != tenantID {
		return domainagent.ErrNotFound
	}
	delete(r.agents, id)
	delete(r.seq, id)
	return nil
}

func (r *AgentRepository) SetActive(_ context.Context, tenantID, id uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok || a.TenantID != tenantID {
		return domainagent.ErrNotFound
	}
	a.IsActive = active
	r.agents[id] = a
	return nil
}

func (r *AgentRepository) ActivateAll(_ context.Context, tenantID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, a := range r.agents {
		if a.TenantID == tenantID && !a.IsActive {
			a.IsActive = true
			r.agents[id] = a
			n++
		}
	}
	return n, nil
}

func (r *AgentRepository) PushTasks(_ context.Context, agentID uuid.UUID, taskIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %s: %w", agentID, domainagent.ErrNotFound)
	}
	a.AssignedTasks = append(slices.Clone(a.AssignedTasks), taskIDs...)
	r.agents[agentID] = a
	return nil
}

func (r *AgentRepository) PullTask(_ context.Context, agentID, taskID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %s: %w", agentID, domainagent.ErrNotFound)
	}
	kept := make([]uuid.UUID, 0, len(a.AssignedTasks))
	for _, id := range a.AssignedTasks {
		if id != taskID {
			kept = append(kept, id)
		}
	}
	a.AssignedTasks = kept
	r.agents[agentID] = a
	return nil
}

func (r *AgentRepository) ClearTasks(_ context.Context, agentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %s: %w", agentID, domainagent.ErrNotFound)
	}
	a.AssignedTasks = []uuid.UUID{}
	r.agents[agentID] = a
	return nil
}

func (r *AgentRepository) ClearAllTasks(_ context.Context, tenantID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, a := range r.agents {
		if a.TenantID == tenantID {
			a.AssignedTasks = []uuid.UUID{}
			r.agents[id] = a
		}
	}
	return nil
}

func cloneAgent(a domainagent.Agent) domainagent.Agent {
	a.AssignedTasks = slices.Clone(a.AssignedTasks)
	if a.AssignedTasks == nil {
		a.AssignedTasks = []uuid.UUID{}
	}
	return a
}
