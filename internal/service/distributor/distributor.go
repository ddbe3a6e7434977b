package distributor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	domainagent "github.com/alanyang/call-dispatch/internal/domain/agent"
	"github.com/alanyang/call-dispatch/internal/domain/distribution"
	portagent "github.com/alanyang/call-dispatch/internal/port/agent"
	portdist "github.com/alanyang/call-dispatch/internal/port/distributor"
)

var _ portdist.Distributor = (*Service)(nil)

// Service decides which agents may take new tasks and plans the spread.
// [SRP] Only plans; the caller persists tasks and assignments.
// [ISP] Depends on PoolReader, not the full agent Repository.
type Service struct {
	pool   portagent.PoolReader
	limits distribution.Limits
}

func NewService(pool portagent.PoolReader, limits distribution.Limits) *Service {
	return &Service{pool: pool, limits: limits}
}

// Eligible lists the tenant's agents and applies the capacity rules. When
// agents exist but none is active, all of them are reactivated first.
func (s *Service) Eligible(ctx context.Context, tenantID uuid.UUID) (distribution.Eligibility, error) {
	agents, err := s.pool.List(ctx, domainagent.ListFilters{TenantID: tenantID})
	if err != nil {
		return distribution.Eligibility{}, fmt.Errorf("listing agents: %w", err)
	}

	cands := candidates(agents)
	if distribution.NeedsReactivation(cands) {
		n, err := s.pool.ActivateAll(ctx, tenantID)
		if err != nil {
			return distribution.Eligibility{}, fmt.Errorf("reactivating agents: %w", err)
		}
		slog.InfoContext(ctx, "no active agents, reactivated all", "tenant_id", tenantID, "count", n)
		for i := range cands {
			cands[i].Active = true
		}
	}

	return distribution.Filter(cands, s.limits)
}

// Distribute plans n tasks over the eligible agents. The returned warnings
// include capacity exclusions, and are returned alongside eligibility errors too.
func (s *Service) Distribute(ctx context.Context, tenantID uuid.UUID, n int) (distribution.Plan, []string, error) {
	el, err := s.Eligible(ctx, tenantID)
	warnings := append(append([]string{}, el.Excluded...), el.Warnings...)
	if err != nil {
		return distribution.Plan{}, warnings, err
	}
	return distribution.NewPlan(el.Loads(), n), warnings, nil
}

func candidates(agents []domainagent.Agent) []distribution.Candidate {
	out := make([]distribution.Candidate, len(agents))
	for i := range agents {
		out[i] = distribution.Candidate{
			AgentID: agents[i].ID,
			Name:    agents[i].Name,
			Active:  agents[i].IsActive,
			Load:    agents[i].Load(),
		}
	}
	return out
}
