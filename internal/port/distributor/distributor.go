package distributor

import (
	"context"

	"github.com/google/uuid"

	"github.com/alanyang/call-dispatch/internal/domain/distribution"
)

//go:generate mockgen -source=distributor.go -destination=../../mocks/mock_distributor.go -package=mocks

// Distributor plans how n new tasks spread over the tenant's eligible agents.
// [SRP] Only plans; it never persists tasks or assignments.
type Distributor interface {
	Distribute(ctx context.Context, tenantID uuid.UUID, n int) (distribution.Plan, []string, error)
}
