package locker

import (
	"context"
	"errors"
	"hash/fnv"

	"github.com/google/uuid"
)

// ErrTimeout is returned when a lock could not be taken in the configured wait.
var ErrTimeout = errors.New("timed out waiting for tenant lock")

//go:generate mockgen -source=locker.go -destination=../../mocks/mock_locker.go -package=mocks

// AdvisoryLocker serialises critical sections per key.
// The Postgres implementation uses session advisory locks and keeps lock and
// unlock on the same connection; the memory implementation uses a keyed mutex.
type AdvisoryLocker interface {
	WithLock(ctx context.Context, key int64, fn func(ctx context.Context) error) error
}

// TenantKey derives the lock key that guards every assignment write for a tenant.
func TenantKey(tenantID uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write([]byte("assignments:"))
	h.Write(tenantID[:])
	return int64(h.Sum64())
}
