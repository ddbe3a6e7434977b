package distribution

import "github.com/google/uuid"

type Assignment struct {
	AgentID uuid.UUID   `json:"agentId"`
	TaskIDs []uuid.UUID `json:"taskIds"`
}

type Result struct {
	Assignments []Assignment `json:"assignments"`
	Metrics     Metrics      `json:"metrics"`
}

// Group collects taskIDs into one Assignment per allocation of plan, following
// slots (as produced by RoundRobin or Buckets). Allocations that receive no
// task still appear, with an empty list.
func Group(plan Plan, slots []int, taskIDs []uuid.UUID) Result {
	out := make([]Assignment, len(plan.Allocations))
	for i, a := range plan.Allocations {
		out[i] = Assignment{AgentID: a.AgentID, TaskIDs: []uuid.UUID{}}
	}
	for i, slot := range slots {
		if i >= len(taskIDs) {
			break
		}
		out[slot].TaskIDs = append(out[slot].TaskIDs, taskIDs[i])
	}
	return Result{Assignments: out, Metrics: plan.Metrics}
}
