package distribution_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyang/call-dispatch/internal/domain/distribution"
)

func loads(current ...int) []distribution.Load {
	out := make([]distribution.Load, len(current))
	for i, c := range current {
		out[i] = distribution.Load{AgentID: uuid.New(), Current: c}
	}
	return out
}

func planned(p distribution.Plan) []int {
	out := make([]int, len(p.Allocations))
	for i, a := range p.Allocations {
		out[i] = a.Planned
	}
	return out
}

func TestNewPlan_TenOverThreeEqualLoad(t *testing.T) {
	in := loads(0, 0, 0)
	p := distribution.NewPlan(in, 10)

	assert.Equal(t, []int{4, 3, 3}, planned(p))
	assert.Equal(t, in[0].AgentID, p.Allocations[0].AgentID, "equal loads keep enumeration order")
	assert.Equal(t, 3, p.Metrics.BaseTasksPerAgent)
	assert.Equal(t, 1, p.Metrics.RemainingTasks)
	assert.Equal(t, 10, p.Metrics.TotalTasks)
	assert.Equal(t, 3, p.Metrics.ActiveAgents)
	assert.InDelta(t, 10.0/3.0, p.Metrics.AverageTasksPerAgent, 1e-9)
	// totals 4,3,3: mean 10/3, variance = ((2/3)^2 + 2*(1/3)^2)/3 = 2/9
	assert.InDelta(t, 2.0/9.0, p.Metrics.WorkloadVariance, 1e-9)
	assert.Zero(t, p.Unplaced)
}

func TestNewPlan_NoAgents(t *testing.T) {
	p := distribution.NewPlan(nil, 7)
	assert.Empty(t, p.Allocations)
	assert.Equal(t, 7, p.Unplaced)
	assert.Equal(t, 7, p.Metrics.TotalTasks)
	assert.Zero(t, p.Metrics.AverageTasksPerAgent)
	assert.Empty(t, p.RoundRobin())
}

func TestNewPlan_ExtrasGoToLeastLoaded(t *testing.T) {
	in := loads(5, 0, 2, 0)
	p := distribution.NewPlan(in, 6)

	// sorted: in[1](0), in[3](0), in[2](2), in[0](5); base 1, remainder 2
	require.Len(t, p.Allocations, 4)
	assert.Equal(t, in[1].AgentID, p.Allocations[0].AgentID)
	assert.Equal(t, in[3].AgentID, p.Allocations[1].AgentID)
	assert.Equal(t, in[2].AgentID, p.Allocations[2].AgentID)
	assert.Equal(t, in[0].AgentID, p.Allocations[3].AgentID)
	assert.Equal(t, []int{2, 2, 1, 1}, planned(p))
}

func TestNewPlan_DoesNotMutateInput(t *testing.T) {
	in := loads(3, 1, 2)
	first := in[0].AgentID
	distribution.NewPlan(in, 5)
	assert.Equal(t, first, in[0].AgentID)
}

func TestNewPlan_FairnessProperty(t *testing.T) {
	for k := 1; k <= 9; k++ {
		for n := 0; n <= 60; n++ {
			current := make([]int, k)
			for i := range current {
				current[i] = (i * 7) % 5
			}
			p := distribution.NewPlan(loads(current...), n)

			assert.Equal(t, n, p.Len(), "n=%d k=%d: counts must sum to n", n, k)
			assert.LessOrEqual(t, p.Spread(), 1, "n=%d k=%d: counts differ by at most one", n, k)

			// least-loaded agents never plan fewer items than more-loaded ones
			for i := 1; i < len(p.Allocations); i++ {
				assert.LessOrEqual(t, p.Allocations[i-1].CurrentLoad, p.Allocations[i].CurrentLoad)
				assert.GreaterOrEqual(t, p.Allocations[i-1].Planned, p.Allocations[i].Planned)
			}
		}
	}
}

func TestPlan_RoundRobin(t *testing.T) {
	p := distribution.NewPlan(loads(0, 0, 0), 10)
	slots := p.RoundRobin()

	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0, 1, 2, 0}, slots)
	assertCountsMatchPlan(t, p, slots)
}

func TestPlan_RoundRobinHonoursPlannedCounts(t *testing.T) {
	for k := 1; k <= 6; k++ {
		for n := 0; n <= 25; n++ {
			p := distribution.NewPlan(loads(make([]int, k)...), n)
			slots := p.RoundRobin()
			require.Len(t, slots, n)
			assertCountsMatchPlan(t, p, slots)
			if k == 1 {
				continue
			}
			for i := 1; i < len(slots); i++ {
				assert.NotEqual(t, slots[i-1], slots[i], "consecutive items alternate agents")
			}
		}
	}
}

func TestPlan_Buckets(t *testing.T) {
	p := distribution.NewPlan(loads(0, 0, 0), 8)
	slots := p.Buckets()

	assert.Equal(t, []int{0, 0, 0, 1, 1, 1, 2, 2}, slots)
	assertCountsMatchPlan(t, p, slots)
}

func TestModulo(t *testing.T) {
	assert.Equal(t, []int{0, 1, 0, 1, 0}, distribution.Modulo(5, 2))
	assert.Equal(t, []int{0, 0, 0}, distribution.Modulo(3, 1))
	assert.Nil(t, distribution.Modulo(3, 0))
	assert.Empty(t, distribution.Modulo(0, 4))
}

func TestGroup(t *testing.T) {
	in := loads(0, 0)
	p := distribution.NewPlan(in, 3)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	res := distribution.Group(p, p.RoundRobin(), ids)

	require.Len(t, res.Assignments, 2)
	assert.Equal(t, in[0].AgentID, res.Assignments[0].AgentID)
	assert.Equal(t, []uuid.UUID{ids[0], ids[2]}, res.Assignments[0].TaskIDs)
	assert.Equal(t, []uuid.UUID{ids[1]}, res.Assignments[1].TaskIDs)
	assert.Equal(t, p.Metrics, res.Metrics)
}

func TestGroup_IdleAllocationHasEmptyList(t *testing.T) {
	p := distribution.NewPlan(loads(0, 0, 0), 1)
	res := distribution.Group(p, p.RoundRobin(), []uuid.UUID{uuid.New()})

	require.Len(t, res.Assignments, 3)
	assert.NotNil(t, res.Assignments[2].TaskIDs)
	assert.Empty(t, res.Assignments[2].TaskIDs)
}

func assertCountsMatchPlan(t *testing.T, p distribution.Plan, slots []int) {
	t.Helper()
	got := make([]int, len(p.Allocations))
	for _, s := range slots {
		got[s]++
	}
	assert.Equal(t, planned(p), got)
}
