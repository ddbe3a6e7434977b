// Package rebalance reassigns every task of a tenant across its active agents.
//
// A run clears all assignments and rebuilds them from a fresh plan, so the
// outcome depends only on the task count and the active pool, never on the
// previous assignment. Writes run under the tenant lock and are detached from
// request cancellation: a half-applied run is repaired by the next one.
package rebalance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domainagent "github.com/alanyang/call-dispatch/internal/domain/agent"
	"github.com/alanyang/call-dispatch/internal/domain/distribution"
	"github.com/alanyang/call-dispatch/internal/domain/event"
	domaintask "github.com/alanyang/call-dispatch/internal/domain/task"
	portagent "github.com/alanyang/call-dispatch/internal/port/agent"
	porteventbus "github.com/alanyang/call-dispatch/internal/port/eventbus"
	portlocker "github.com/alanyang/call-dispatch/internal/port/locker"
	portmetrics "github.com/alanyang/call-dispatch/internal/port/metrics"
	porttask "github.com/alanyang/call-dispatch/internal/port/task"
)

// Trigger names why a redistribution ran. It labels metrics and logs.
type Trigger string

const (
	TriggerAgentCreated Trigger = "agent_created"
	TriggerAgentDeleted Trigger = "agent_deleted"
	TriggerAgentToggled Trigger = "agent_toggled"
	TriggerManual       Trigger = "manual"
)

type Service struct {
	agentRepo portagent.Repository
	taskRepo  porttask.Repository
	locker    portlocker.AdvisoryLocker
	bus       porteventbus.EventBus
	metrics   portmetrics.Recorder
}

func NewService(
	agentRepo portagent.Repository,
	taskRepo porttask.Repository,
	locker portlocker.AdvisoryLocker,
	bus porteventbus.EventBus,
	metrics portmetrics.Recorder,
) *Service {
	return &Service{
		agentRepo: agentRepo,
		taskRepo:  taskRepo,
		locker:    locker,
		bus:       bus,
		metrics:   metrics,
	}
}

// Rebalance takes the tenant lock and redistributes.
func (s *Service) Rebalance(ctx context.Context, tenantID uuid.UUID, trigger Trigger) (distribution.Result, error) {
	var res distribution.Result
	err := s.locker.WithLock(ctx, portlocker.TenantKey(tenantID), func(ctx context.Context) error {
		var err error
		res, err = s.Redistribute(ctx, tenantID, trigger)
		return err
	})
	return res, err
}

// Redistribute clears every assignment of the tenant and deals all tasks, in
// creation order, into contiguous blocks over the active agents. It is a no-op
// when the tenant has no tasks or no active agents. The caller must hold the
// tenant lock.
func (s *Service) Redistribute(ctx context.Context, tenantID uuid.UUID, trigger Trigger) (distribution.Result, error) {
	start := time.Now()
	ctx = context.WithoutCancel(ctx)

	res, applied, err := s.redistribute(ctx, tenantID)
	if err != nil {
		s.metrics.RecordRedistribution(string(trigger), false, time.Since(start).Seconds(), 0)
		slog.ErrorContext(ctx, "redistribution failed", "tenant_id", tenantID, "trigger", trigger, "error", err)
		return distribution.Result{}, err
	}
	if !applied {
		return res, nil
	}

	s.metrics.RecordRedistribution(string(trigger), true, time.Since(start).Seconds(), res.Metrics.TotalTasks)
	s.metrics.ObserveWorkloadVariance(res.Metrics.WorkloadVariance)
	slog.InfoContext(ctx, "tasks redistributed",
		"tenant_id", tenantID,
		"trigger", trigger,
		"tasks", res.Metrics.TotalTasks,
		"agents", res.Metrics.ActiveAgents,
	)

	if err := s.bus.Publish(ctx, event.New(event.TypeTasksRedistributed, tenantID, tenantID)); err != nil {
		slog.ErrorContext(ctx, "failed to publish redistribution event", "tenant_id", tenantID, "error", err)
	}
	return res, nil
}

func (s *Service) redistribute(ctx context.Context, tenantID uuid.UUID) (distribution.Result, bool, error) {
	tasks, err := s.taskRepo.List(ctx, domaintask.ListFilters{TenantID: tenantID, OldestFirst: true})
	if err != nil {
		return distribution.Result{}, false, fmt.Errorf("listing tasks: %w", err)
	}
	active, err := s.agentRepo.List(ctx, domainagent.ListFilters{TenantID: tenantID, ActiveOnly: true})
	if err != nil {
		return distribution.Result{}, false, fmt.Errorf("listing active agents: %w", err)
	}

	if len(tasks) == 0 || len(active) == 0 {
		return distribution.Result{
			Assignments: []distribution.Assignment{},
			Metrics:     distribution.Metrics{TotalTasks: len(tasks), ActiveAgents: len(active)},
		}, false, nil
	}

	if err := s.agentRepo.ClearAllTasks(ctx, tenantID); err != nil {
		return distribution.Result{}, false, fmt.Errorf("clearing agent task lists: %w", err)
	}
	if err := s.taskRepo.ClearAssignments(ctx, tenantID); err != nil {
		return distribution.Result{}, false, fmt.Errorf("clearing task assignments: %w", err)
	}

	// Every load is zero after the clear, so the plan keeps listing order.
	loads := make([]distribution.Load, len(active))
	for i := range active {
		loads[i] = distribution.Load{AgentID: active[i].ID}
	}
	plan := distribution.NewPlan(loads, len(tasks))

	ids := make([]uuid.UUID, len(tasks))
	for i := range tasks {
		ids[i] = tasks[i].ID
	}
	res := distribution.Group(plan, plan.Buckets(), ids)

	if err := s.apply(ctx, res.Assignments); err != nil {
		return distribution.Result{}, false, err
	}
	return res, true, nil
}

// apply writes both sides of each assignment.
func (s *Service) apply(ctx context.Context, assignments []distribution.Assignment) error {
	for _, a := range assignments {
		for _, taskID := range a.TaskIDs {
			if err := s.taskRepo.Assign(ctx, taskID, a.AgentID); err != nil {
				return fmt.Errorf("assigning task %s: %w", taskID, err)
			}
		}
		if err := s.agentRepo.PushTasks(ctx, a.AgentID, a.TaskIDs); err != nil {
			return fmt.Errorf("recording tasks on agent %s: %w", a.AgentID, err)
		}
	}
	return nil
}

// HandOff moves every task held by from onto receivers with task i going to
// receivers[i % len(receivers)], then clears from's list. The caller must hold
// the tenant lock. A source with no tasks needs no receivers.
func (s *Service) HandOff(ctx context.Context, from domainagent.Agent, receivers []domainagent.Agent) error {
	if from.Load() == 0 {
		return nil
	}
	if len(receivers) == 0 {
		return domainagent.ErrLastActiveAgent
	}
	ctx = context.WithoutCancel(ctx)

	slots := distribution.Modulo(from.Load(), len(receivers))
	moved := make([][]uuid.UUID, len(receivers))
	for i, taskID := range from.AssignedTasks {
		r := slots[i]
		if err := s.taskRepo.Assign(ctx, taskID, receivers[r].ID); err != nil {
			if errors.Is(err, domaintask.ErrNotFound) {
				slog.WarnContext(ctx, "skipping dangling task reference", "agent_id", from.ID, "task_id", taskID)
				continue
			}
			return fmt.Errorf("handing off task %s: %w", taskID, err)
		}
		moved[r] = append(moved[r], taskID)
	}
	for i, ids := range moved {
		if err := s.agentRepo.PushTasks(ctx, receivers[i].ID, ids); err != nil {
			return fmt.Errorf("recording handed-off tasks on agent %s: %w", receivers[i].ID, err)
		}
	}
	if err := s.agentRepo.ClearTasks(ctx, from.ID); err != nil {
		return fmt.Errorf("clearing tasks of agent %s: %w", from.ID, err)
	}
	return nil
}
