package distribution

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNoAgents            = errors.New("need at least one agent for task distribution")
	ErrAllAgentsAtCapacity = errors.New("all agents have reached maximum task capacity")
)

type Limits struct {
	MaxTasksPerAgent     int
	CapacityWarningRatio float64
}

func DefaultLimits() Limits {
	return Limits{MaxTasksPerAgent: 200, CapacityWarningRatio: 0.8}
}

// Candidate is an agent as seen by the eligibility filter.
type Candidate struct {
	AgentID uuid.UUID
	Name    string
	Active  bool
	Load    int
}

type Eligibility struct {
	Eligible []Candidate
	// Excluded holds one message per agent left out for capacity.
	Excluded []string
	Warnings []string
}

// Loads returns the eligible candidates as planner input, in enumeration order.
func (e Eligibility) Loads() []Load {
	out := make([]Load, len(e.Eligible))
	for i, c := range e.Eligible {
		out[i] = Load{AgentID: c.AgentID, Current: c.Load}
	}
	return out
}

// NeedsReactivation reports whether agents exist but none of them is active.
// Callers reactivate all of them rather than fail the upload.
func NeedsReactivation(cands []Candidate) bool {
	if len(cands) == 0 {
		return false
	}
	for _, c := range cands {
		if c.Active {
			return false
		}
	}
	return true
}

// Filter applies the capacity rules to the active candidates.
func Filter(cands []Candidate, limits Limits) (Eligibility, error) {
	if len(cands) == 0 {
		return Eligibility{}, ErrNoAgents
	}

	warnAt := int(float64(limits.MaxTasksPerAgent) * limits.CapacityWarningRatio)

	var el Eligibility
	for _, c := range cands {
		if !c.Active {
			continue
		}
		switch {
		case limits.MaxTasksPerAgent > 0 && c.Load >= limits.MaxTasksPerAgent:
			el.Excluded = append(el.Excluded, fmt.Sprintf("Agent %s has reached maximum task capacity", c.Name))
			continue
		case limits.MaxTasksPerAgent > 0 && c.Load >= warnAt:
			el.Warnings = append(el.Warnings, fmt.Sprintf("Agent %s is approaching maximum task capacity", c.Name))
		}
		el.Eligible = append(el.Eligible, c)
	}

	if len(el.Eligible) == 0 {
		if len(el.Excluded) == 0 {
			return el, ErrNoAgents
		}
		return el, ErrAllAgentsAtCapacity
	}
	return el, nil
}

// IneligibleError carries the capacity messages gathered before eligibility
// failed, so callers can report them with the error.
type IneligibleError struct {
	Err      error
	Warnings []string
}

func (e *IneligibleError) Error() string { return e.Err.Error() }

func (e *IneligibleError) Unwrap() error { return e.Err }
