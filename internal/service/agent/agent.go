package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	domainagent "github.com/alanyang/call-dispatch/internal/domain/agent"
	"github.com/alanyang/call-dispatch/internal/domain/event"
	portagent "github.com/alanyang/call-dispatch/internal/port/agent"
	portbus "github.com/alanyang/call-dispatch/internal/port/eventbus"
	portlocker "github.com/alanyang/call-dispatch/internal/port/locker"
	"github.com/alanyang/call-dispatch/internal/service/rebalance"
)

// Service manages the agent pool. Every change to the active pool runs a
// redistribution under the tenant lock.
type Service struct {
	repo      portagent.Repository
	rebalance *rebalance.Service
	locker    portlocker.AdvisoryLocker
	bus       portbus.EventBus
}

func NewService(repo portagent.Repository, rb *rebalance.Service, locker portlocker.AdvisoryLocker, bus portbus.EventBus) *Service {
	return &Service{repo: repo, rebalance: rb, locker: locker, bus: bus}
}

type CreateInput struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	CountryCode  string `json:"country_code"`
	MobileNumber string `json:"mobile_number"`
}

func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, in CreateInput) (domainagent.Agent, error) {
	a := domainagent.New(tenantID, in.Name, in.Email, in.CountryCode, in.MobileNumber)
	if missing := a.MissingFields(); len(missing) > 0 {
		return domainagent.Agent{}, fmt.Errorf("%w: %s", domainagent.ErrMissingFields, strings.Join(missing, ", "))
	}

	err := s.locker.WithLock(ctx, portlocker.TenantKey(tenantID), func(ctx context.Context) error {
		if err := s.ensureEmailFree(ctx, tenantID, a.Email, nil); err != nil {
			return err
		}
		if _, err := s.repo.Create(ctx, a); err != nil {
			return fmt.Errorf("create agent: %w", err)
		}
		_, err := s.rebalance.Redistribute(ctx, tenantID, rebalance.TriggerAgentCreated)
		return err
	})
	if err != nil {
		return domainagent.Agent{}, err
	}

	s.publish(ctx, event.TypeAgentCreated, tenantID, a.ID)
	return s.Get(ctx, tenantID, a.ID)
}

func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (domainagent.Agent, error) {
	a, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return domainagent.Agent{}, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]domainagent.Agent, error) {
	agents, err := s.repo.List(ctx, domainagent.ListFilters{TenantID: tenantID})
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return agents, nil
}

// Update changes identity fields only. Assignments and the active flag are
// left alone, so no redistribution runs.
func (s *Service) Update(ctx context.Context, tenantID, id uuid.UUID, patch domainagent.Patch) (domainagent.Agent, error) {
	a, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return domainagent.Agent{}, err
	}
	a.Apply(patch)
	if missing := a.MissingFields(); len(missing) > 0 {
		return domainagent.Agent{}, fmt.Errorf("%w: %s", domainagent.ErrMissingFields, strings.Join(missing, ", "))
	}
	if err := s.ensureEmailFree(ctx, tenantID, a.Email, &a.ID); err != nil {
		return domainagent.Agent{}, err
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return domainagent.Agent{}, fmt.Errorf("update agent: %w", err)
	}

	s.publish(ctx, event.TypeAgentUpdated, tenantID, a.ID)
	return a, nil
}

// SetActive flips the active flag and redistributes over the new pool.
func (s *Service) SetActive(ctx context.Context, tenantID, id uuid.UUID, active bool) (domainagent.Agent, error) {
	err := s.locker.WithLock(ctx, portlocker.TenantKey(tenantID), func(ctx context.Context) error {
		a, err := s.Get(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if a.IsActive == active {
			return nil
		}
		if err := s.repo.SetActive(ctx, tenantID, id, active); err != nil {
			return fmt.Errorf("set agent active: %w", err)
		}
		_, err = s.rebalance.Redistribute(ctx, tenantID, rebalance.TriggerAgentToggled)
		return err
	})
	if err != nil {
		return domainagent.Agent{}, err
	}

	s.publish(ctx, event.TypeAgentUpdated, tenantID, id)
	return s.Get(ctx, tenantID, id)
}

// Delete hands the agent's tasks to the other active agents, removes it and
// redistributes. It refuses with ErrLastActiveAgent when the agent holds tasks
// and no other active agent could take them; state is then unchanged.
func (s *Service) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	err := s.locker.WithLock(ctx, portlocker.TenantKey(tenantID), func(ctx context.Context) error {
		a, err := s.Get(ctx, tenantID, id)
		if err != nil {
			return err
		}
		receivers, err := s.repo.List(ctx, domainagent.ListFilters{TenantID: tenantID, ActiveOnly: true, ExcludeID: &id})
		if err != nil {
			return fmt.Errorf("list receiving agents: %w", err)
		}
		if len(receivers) == 0 && a.Load() > 0 {
			return domainagent.ErrLastActiveAgent
		}

		if err := s.rebalance.HandOff(ctx, a, receivers); err != nil {
			return fmt.Errorf("hand off tasks: %w", err)
		}
		if err := s.repo.Delete(context.WithoutCancel(ctx), tenantID, id); err != nil {
			return fmt.Errorf("delete agent: %w", err)
		}
		_, err = s.rebalance.Redistribute(ctx, tenantID, rebalance.TriggerAgentDeleted)
		return err
	})
	if err != nil {
		return err
	}

	s.publish(ctx, event.TypeAgentDeleted, tenantID, id)
	return nil
}

func (s *Service) ensureEmailFree(ctx context.Context, tenantID uuid.UUID, email string, self *uuid.UUID) error {
	existing, err := s.repo.List(ctx, domainagent.ListFilters{TenantID: tenantID, Email: &email, ExcludeID: self})
	if err != nil {
		return fmt.Errorf("check agent email: %w", err)
	}
	if len(existing) > 0 {
		return domainagent.ErrDuplicateEmail
	}
	return nil
}

func (s *Service) publish(ctx context.Context, t event.Type, tenantID, agentID uuid.UUID) {
	if err := s.bus.Publish(ctx, event.New(t, tenantID, agentID)); err != nil {
		slog.ErrorContext(ctx, "failed to publish agent event", "type", t, "agent_id", agentID, "error", err)
	}
}
