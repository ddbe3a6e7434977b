package rebalance_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyang/call-dispatch/internal/adapter/memory"
	domainagent "github.com/alanyang/call-dispatch/internal/domain/agent"
	"github.com/alanyang/call-dispatch/internal/domain/event"
	domaintask "github.com/alanyang/call-dispatch/internal/domain/task"
	"github.com/alanyang/call-dispatch/internal/metrics"
	"github.com/alanyang/call-dispatch/internal/service/rebalance"
	"github.com/alanyang/call-dispatch/internal/testutil"
)

type fixture struct {
	agents *memory.AgentRepository
	tasks  *memory.TaskRepository
	bus    *testutil.CaptureBus
	svc    *rebalance.Service
	tenant uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		agents: memory.NewAgentRepository(),
		tasks:  memory.NewTaskRepository(),
		bus:    &testutil.CaptureBus{},
		tenant: uuid.New(),
	}
	f.svc = rebalance.NewService(f.agents, f.tasks, memory.NewLocker(), f.bus, metrics.NewNop())
	return f
}

func (f *fixture) addAgent(t *testing.T, name string, active bool) domainagent.Agent {
	t.Helper()
	a := domainagent.New(f.tenant, name, name+"@example.com", "+1", "5551234567")
	// distinct creation instants keep listing order deterministic
	a.CreatedAt = time.Now().UTC().Add(time.Duration(len(testutil.Loads(t, f.agents, f.tenant))) * time.Millisecond)
	a.IsActive = active
	created, err := f.agents.Create(context.Background(), a)
	require.NoError(t, err)
	return created
}

// addTasks creates n tasks all assigned to owner, keeping both sides in sync.
func (f *fixture) addTasks(t *testing.T, owner domainagent.Agent, n int) []uuid.UUID {
	t.Helper()
	ctx := context.Background()
	batch := make([]domaintask.Task, n)
	ids := make([]uuid.UUID, n)
	for i := range batch {
		batch[i] = domaintask.New(f.tenant, "Caller", "555000"+uuid.New().String()[:4], "", owner.ID)
		ids[i] = batch[i].ID
	}
	_, err := f.tasks.CreateBatch(ctx, batch)
	require.NoError(t, err)
	require.NoError(t, f.agents.PushTasks(ctx, owner.ID, ids))
	return ids
}

func TestRebalance_BalancesSkewedLoad(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent(t, "ann", true)
	f.addAgent(t, "bob", true)
	f.addAgent(t, "cat", true)
	f.addTasks(t, a, 10)

	res, err := f.svc.Rebalance(context.Background(), f.tenant, rebalance.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, []int{4, 3, 3}, testutil.Loads(t, f.agents, f.tenant))
	assert.Equal(t, 10, res.Metrics.TotalTasks)
	assert.Equal(t, 3, res.Metrics.ActiveAgents)
	require.Len(t, res.Assignments, 3)
	testutil.AssertAssignmentsConsistent(t, f.agents, f.tasks, f.tenant)
	assert.Equal(t, []event.Type{event.TypeTasksRedistributed}, f.bus.Types())
}

func TestRebalance_ContiguousBlocksInCreationOrder(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent(t, "ann", true)
	b := f.addAgent(t, "bob", true)
	ids := f.addTasks(t, b, 5)

	res, err := f.svc.Rebalance(context.Background(), f.tenant, rebalance.TriggerManual)
	require.NoError(t, err)

	require.Len(t, res.Assignments, 2)
	assert.Equal(t, a.ID, res.Assignments[0].AgentID)
	assert.Equal(t, ids[:3], res.Assignments[0].TaskIDs)
	assert.Equal(t, ids[3:], res.Assignments[1].TaskIDs)
}

func TestRebalance_IgnoresInactiveAgentsAndStatus(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent(t, "ann", true)
	off := f.addAgent(t, "off", false)
	f.addAgent(t, "cat", true)
	ids := f.addTasks(t, off, 4)

	now := time.Now().UTC()
	_, err := f.tasks.UpdateStatus(context.Background(), f.tenant, ids[0], domaintask.StatusCompleted, &now)
	require.NoError(t, err)

	_, err = f.svc.Rebalance(context.Background(), f.tenant, rebalance.TriggerAgentToggled)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 0, 2}, testutil.Loads(t, f.agents, f.tenant))
	got, err := f.agents.GetByID(context.Background(), f.tenant, a.ID)
	require.NoError(t, err)
	assert.Contains(t, got.AssignedTasks, ids[0], "completed tasks are redistributed too")
	testutil.AssertAssignmentsConsistent(t, f.agents, f.tasks, f.tenant)
}

func TestRebalance_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent(t, "ann", true)
	for _, name := range []string{"bob", "cat", "dan"} {
		f.addAgent(t, name, true)
	}
	f.addTasks(t, a, 23)

	ctx := context.Background()
	_, err := f.svc.Rebalance(ctx, f.tenant, rebalance.TriggerManual)
	require.NoError(t, err)
	first := testutil.Loads(t, f.agents, f.tenant)

	_, err = f.svc.Rebalance(ctx, f.tenant, rebalance.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, first, testutil.Loads(t, f.agents, f.tenant))
	assert.Equal(t, []int{6, 6, 6, 5}, first)
	testutil.AssertAssignmentsConsistent(t, f.agents, f.tasks, f.tenant)
}

func TestRebalance_NoOpWithoutTasksOrActiveAgents(t *testing.T) {
	t.Run("no tasks", func(t *testing.T) {
		f := newFixture(t)
		f.addAgent(t, "ann", true)

		res, err := f.svc.Rebalance(context.Background(), f.tenant, rebalance.TriggerAgentCreated)
		require.NoError(t, err)
		assert.Empty(t, res.Assignments)
		assert.Empty(t, f.bus.Types())
	})

	t.Run("no active agents", func(t *testing.T) {
		f := newFixture(t)
		off := f.addAgent(t, "off", false)
		f.addTasks(t, off, 3)

		res, err := f.svc.Rebalance(context.Background(), f.tenant, rebalance.TriggerAgentToggled)
		require.NoError(t, err)
		assert.Empty(t, res.Assignments)
		assert.Equal(t, []int{3}, testutil.Loads(t, f.agents, f.tenant), "state unchanged")
		testutil.AssertAssignmentsConsistent(t, f.agents, f.tasks, f.tenant)
	})
}

func TestHandOff_ModuloOverReceivers(t *testing.T) {
	f := newFixture(t)
	leaving := f.addAgent(t, "leaving", true)
	b := f.addAgent(t, "bob", true)
	c := f.addAgent(t, "cat", true)
	ids := f.addTasks(t, leaving, 5)

	from, err := f.agents.GetByID(context.Background(), f.tenant, leaving.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.HandOff(context.Background(), from, []domainagent.Agent{b, c}))

	gotB, _ := f.agents.GetByID(context.Background(), f.tenant, b.ID)
	gotC, _ := f.agents.GetByID(context.Background(), f.tenant, c.ID)
	gotFrom, _ := f.agents.GetByID(context.Background(), f.tenant, leaving.ID)
	assert.Equal(t, []uuid.UUID{ids[0], ids[2], ids[4]}, gotB.AssignedTasks)
	assert.Equal(t, []uuid.UUID{ids[1], ids[3]}, gotC.AssignedTasks)
	assert.Empty(t, gotFrom.AssignedTasks)
	testutil.AssertAssignmentsConsistent(t, f.agents, f.tasks, f.tenant)
}

func TestHandOff_RefusesWithoutReceivers(t *testing.T) {
	f := newFixture(t)
	leaving := f.addAgent(t, "leaving", true)
	f.addTasks(t, leaving, 1)
	from, _ := f.agents.GetByID(context.Background(), f.tenant, leaving.ID)

	err := f.svc.HandOff(context.Background(), from, nil)
	assert.ErrorIs(t, err, domainagent.ErrLastActiveAgent)

	empty := f.addAgent(t, "empty", true)
	assert.NoError(t, f.svc.HandOff(context.Background(), empty, nil))
}
