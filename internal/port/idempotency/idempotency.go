package idempotency

import (
	"context"
	"time"

	"github.com/google/uuid"
)

//go:generate mockgen -source=idempotency.go -destination=../../mocks/mock_idempotency.go -package=mocks

// Store remembers the result of an operation by tenant and client-supplied
// key so that a retried upload replays the first result instead of inserting
// twice. The same key under two tenants names two unrelated operations.
type Store interface {
	Check(ctx context.Context, tenantID uuid.UUID, key string) ([]byte, bool, error)
	Store(ctx context.Context, tenantID uuid.UUID, key string, opType string, resultJSON []byte) error
	// Invalidate forgets a stored result so the next call with key runs afresh.
	Invalidate(ctx context.Context, tenantID uuid.UUID, key string) error
}

// Purger drops stored results older than cutoff.
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}
