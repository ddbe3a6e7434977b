package agent

import (
	"context"

	"github.com/google/uuid"

	domainagent "github.com/alanyang/call-dispatch/internal/domain/agent"
)

// PoolReader is the narrow interface the distributor needs.
// [ISP] The distributor lists the pool and may reactivate it; it never writes tasks.
type PoolReader interface {
	List(ctx context.Context, filters domainagent.ListFilters) ([]domainagent.Agent, error)
	ActivateAll(ctx context.Context, tenantID uuid.UUID) (int, error)
}
