package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainagent "github.com/alanyang/call-dispatch/internal/domain/agent"
	domaintask "github.com/alanyang/call-dispatch/internal/domain/task"
	portagent "github.com/alanyang/call-dispatch/internal/port/agent"
	porttask "github.com/alanyang/call-dispatch/internal/port/task"
)

// AssertAssignmentsConsistent checks that every agent's task list holds
// exactly the tasks whose AssignedAgentID points at it, with no duplicates.
func AssertAssignmentsConsistent(t *testing.T, agents portagent.Repository, tasks porttask.Repository, tenantID uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	as, err := agents.List(ctx, domainagent.ListFilters{TenantID: tenantID})
	require.NoError(t, err)
	ts, err := tasks.List(ctx, domaintask.ListFilters{TenantID: tenantID})
	require.NoError(t, err)

	byAgent := make(map[uuid.UUID]map[uuid.UUID]bool)
	for _, task := range ts {
		if task.AssignedAgentID == nil {
			continue
		}
		if byAgent[*task.AssignedAgentID] == nil {
			byAgent[*task.AssignedAgentID] = make(map[uuid.UUID]bool)
		}
		byAgent[*task.AssignedAgentID][task.ID] = true
	}

	known := make(map[uuid.UUID]bool)
	for _, a := range as {
		known[a.ID] = true
		listed := make(map[uuid.UUID]bool)
		for _, id := range a.AssignedTasks {
			assert.False(t, listed[id], "agent %s lists task %s twice", a.Name, id)
			listed[id] = true
		}
		assert.Equal(t, len(byAgent[a.ID]), len(listed), "agent %s task count", a.Name)
		for id := range listed {
			assert.True(t, byAgent[a.ID][id], "agent %s lists task %s that points elsewhere", a.Name, id)
		}
	}
	for agentID := range byAgent {
		assert.True(t, known[agentID], "tasks point at unknown agent %s", agentID)
	}
}

// Loads returns the number of assigned tasks per agent, in listing order.
func Loads(t *testing.T, agents portagent.Repository, tenantID uuid.UUID) []int {
	t.Helper()
	as, err := agents.List(context.Background(), domainagent.ListFilters{TenantID: tenantID})
	require.NoError(t, err)
	out := make([]int, len(as))
	for i := range as {
		out[i] = as[i].Load()
	}
	return out
}
