package distributor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainagent "github.com/alanyang/call-dispatch/internal/domain/agent"
	"github.com/alanyang/call-dispatch/internal/domain/distribution"
	"github.com/alanyang/call-dispatch/internal/mocks"
	"github.com/alanyang/call-dispatch/internal/service/distributor"
)

func newDistributorSvc(t *testing.T) (*distributor.Service, *mocks.MockAgentRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	agentRepo := mocks.NewMockAgentRepository(ctrl)
	return distributor.NewService(agentRepo, distribution.DefaultLimits()), agentRepo
}

func agentWithLoad(tenantID uuid.UUID, name string, active bool, load int) domainagent.Agent {
	a := domainagent.New(tenantID, name, name+"@example.com", "+1", "5551234567")
	a.IsActive = active
	for i := 0; i < load; i++ {
		a.AssignedTasks = append(a.AssignedTasks, uuid.New())
	}
	return a
}

func TestDistribute_PlansOverActiveAgents(t *testing.T) {
	svc, repo := newDistributorSvc(t)
	tenant := uuid.New()
	a := agentWithLoad(tenant, "ann", true, 0)
	b := agentWithLoad(tenant, "bob", true, 0)
	c := agentWithLoad(tenant, "cat", true, 0)

	repo.EXPECT().List(gomock.Any(), domainagent.ListFilters{TenantID: tenant}).
		Return([]domainagent.Agent{a, b, c}, nil)

	plan, warnings, err := svc.Distribute(context.Background(), tenant, 10)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, plan.Allocations, 3)
	assert.Equal(t, a.ID, plan.Allocations[0].AgentID)
	assert.Equal(t, 4, plan.Allocations[0].Planned)
	assert.Equal(t, 10, plan.Len())
}

func TestDistribute_ReactivatesWhenNoneActive(t *testing.T) {
	svc, repo := newDistributorSvc(t)
	tenant := uuid.New()
	a := agentWithLoad(tenant, "ann", false, 0)
	b := agentWithLoad(tenant, "bob", false, 2)

	gomock.InOrder(
		repo.EXPECT().List(gomock.Any(), gomock.Any()).Return([]domainagent.Agent{a, b}, nil),
		repo.EXPECT().ActivateAll(gomock.Any(), tenant).Return(2, nil),
	)

	plan, _, err := svc.Distribute(context.Background(), tenant, 3)
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 2)
	assert.Equal(t, a.ID, plan.Allocations[0].AgentID, "least loaded first")
	assert.Equal(t, 2, plan.Allocations[0].Planned)
}

func TestDistribute_NoAgents(t *testing.T) {
	svc, repo := newDistributorSvc(t)

	repo.EXPECT().List(gomock.Any(), gomock.Any()).Return([]domainagent.Agent{}, nil)

	_, _, err := svc.Distribute(context.Background(), uuid.New(), 5)
	assert.ErrorIs(t, err, distribution.ErrNoAgents)
}

func TestDistribute_CapacityExclusionBecomesWarning(t *testing.T) {
	svc, repo := newDistributorSvc(t)
	tenant := uuid.New()
	full := agentWithLoad(tenant, "full", true, 200)
	busy := agentWithLoad(tenant, "busy", true, 170)
	idle := agentWithLoad(tenant, "idle", true, 0)

	repo.EXPECT().List(gomock.Any(), gomock.Any()).Return([]domainagent.Agent{full, busy, idle}, nil)

	plan, warnings, err := svc.Distribute(context.Background(), tenant, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Agent full has reached maximum task capacity",
		"Agent busy is approaching maximum task capacity",
	}, warnings)
	require.Len(t, plan.Allocations, 2)
	assert.Equal(t, idle.ID, plan.Allocations[0].AgentID)
}

func TestDistribute_AllAtCapacity(t *testing.T) {
	svc, repo := newDistributorSvc(t)
	tenant := uuid.New()

	repo.EXPECT().List(gomock.Any(), gomock.Any()).
		Return([]domainagent.Agent{agentWithLoad(tenant, "full", true, 200)}, nil)

	_, warnings, err := svc.Distribute(context.Background(), tenant, 1)
	assert.ErrorIs(t, err, distribution.ErrAllAgentsAtCapacity)
	assert.Len(t, warnings, 1)
}

func TestDistribute_RepoError(t *testing.T) {
	svc, repo := newDistributorSvc(t)

	repo.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, errors.New("unexpected db error"))

	_, _, err := svc.Distribute(context.Background(), uuid.New(), 1)
	require.Error(t, err)
}
