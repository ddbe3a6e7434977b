// Package distribution computes fair-share task plans for a set of agents.
//
// A plan for N items over K agents gives every agent base = N/K items and the
// first N%K agents one extra. Agents are ordered by current load ascending,
// ties kept in enumeration order, so the extra items land on the least-loaded
// agents. Planned counts never differ by more than one.
package distribution

import (
	"sort"

	"github.com/google/uuid"
)

// Load is an agent's identity plus the number of tasks it already holds.
type Load struct {
	AgentID uuid.UUID
	Current int
}

type Allocation struct {
	AgentID     uuid.UUID `json:"agentId"`
	CurrentLoad int       `json:"currentLoad"`
	Planned     int       `json:"planned"`
}

// Total is the agent's load once the plan is applied.
func (a Allocation) Total() int { return a.CurrentLoad + a.Planned }

// Metrics are reporting values only; no decision reads them.
type Metrics struct {
	TotalTasks           int     `json:"totalTasks"`
	ActiveAgents         int     `json:"activeAgents"`
	BaseTasksPerAgent    int     `json:"baseTasksPerAgent"`
	RemainingTasks       int     `json:"remainingTasks"`
	AverageTasksPerAgent float64 `json:"averageTasksPerAgent"`
	WorkloadVariance     float64 `json:"workloadVariance"`
}

type Plan struct {
	Allocations []Allocation `json:"allocations"`
	// Unplaced is non-zero only when there were no agents to plan over.
	Unplaced int     `json:"unplaced"`
	Metrics  Metrics `json:"metrics"`
}

// NewPlan plans n items over loads. It never fails: with no agents the plan
// is empty and every item is reported as unplaced.
func NewPlan(loads []Load, n int) Plan {
	k := len(loads)
	if k == 0 {
		return Plan{
			Allocations: []Allocation{},
			Unplaced:    n,
			Metrics: Metrics{
				TotalTasks:     n,
				RemainingTasks: n,
			},
		}
	}

	base, remainder := n/k, n%k

	ordered := make([]Load, k)
	copy(ordered, loads)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Current < ordered[j].Current
	})

	allocs := make([]Allocation, k)
	for i, l := range ordered {
		planned := base
		if i < remainder {
			planned++
		}
		allocs[i] = Allocation{AgentID: l.AgentID, CurrentLoad: l.Current, Planned: planned}
	}

	return Plan{
		Allocations: allocs,
		Metrics: Metrics{
			TotalTasks:           n,
			ActiveAgents:         k,
			BaseTasksPerAgent:    base,
			RemainingTasks:       remainder,
			AverageTasksPerAgent: float64(n) / float64(k),
			WorkloadVariance:     variance(allocs),
		},
	}
}

// Len is the number of items the plan places.
func (p Plan) Len() int {
	total := 0
	for _, a := range p.Allocations {
		total += a.Planned
	}
	return total
}

// Spread is max(planned) - min(planned).
func (p Plan) Spread() int {
	if len(p.Allocations) == 0 {
		return 0
	}
	lo, hi := p.Allocations[0].Planned, p.Allocations[0].Planned
	for _, a := range p.Allocations[1:] {
		lo = min(lo, a.Planned)
		hi = max(hi, a.Planned)
	}
	return hi - lo
}

// RoundRobin returns, for each item in order, the index of the allocation it
// goes to. Items cycle across allocations one per agent per pass, skipping
// agents whose planned count is already met.
func (p Plan) RoundRobin() []int {
	n := p.Len()
	slots := make([]int, 0, n)
	given := make([]int, len(p.Allocations))
	for len(slots) < n {
		for i, a := range p.Allocations {
			if given[i] < a.Planned {
				slots = append(slots, i)
				given[i]++
			}
		}
	}
	return slots
}

// Buckets returns, for each item in order, the index of the allocation it goes
// to when items are laid out in contiguous blocks in plan order.
func (p Plan) Buckets() []int {
	slots := make([]int, 0, p.Len())
	for i, a := range p.Allocations {
		for j := 0; j < a.Planned; j++ {
			slots = append(slots, i)
		}
	}
	return slots
}

// Modulo spreads n items over k receivers as i % k. It is the simple
// hand-off used when an agent leaves the pool.
func Modulo(n, k int) []int {
	if k <= 0 {
		return nil
	}
	slots := make([]int, n)
	for i := range slots {
		slots[i] = i % k
	}
	return slots
}

// population variance of the final per-agent totals
func variance(allocs []Allocation) float64 {
	if len(allocs) == 0 {
		return 0
	}
	var sum float64
	for _, a := range allocs {
		sum += float64(a.Total())
	}
	mean := sum / float64(len(allocs))

	var acc float64
	for _, a := range allocs {
		d := float64(a.Total()) - mean
		acc += d * d
	}
	return acc / float64(len(allocs))
}
