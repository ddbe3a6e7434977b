package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	portidem "github.com/alanyang/call-dispatch/internal/port/idempotency"
)

type Repository struct {
	pool *pgxpool.Pool
}

var _ portidem.Store = (*Repository)(nil)

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Check returns the tenant's stored result for key and whether it exists.
func (r *Repository) Check(ctx context.Context, tenantID uuid.UUID, key string) ([]byte, bool, error) {
	var result []byte
	err := r.pool.QueryRow(ctx,
		`SELECT result_jsonb FROM processed_operations WHERE tenant_id = $1 AND idempotency_key = $2`,
		tenantID, key,
	).Scan(&result)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("checking idempotency key: %w", err)
	}
	return result, true, nil
}

// Store records the result of an operation. The first write for a
// (tenant, key) pair wins.
func (r *Repository) Store(ctx context.Context, tenantID uuid.UUID, key string, opType string, resultJSON []byte) error {
	query := `
		INSERT INTO processed_operations (tenant_id, idempotency_key, operation_type, result_jsonb, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tenant_id, idempotency_key) DO NOTHING`

	if _, err := r.pool.Exec(ctx, query, tenantID, key, opType, resultJSON); err != nil {
		return fmt.Errorf("storing idempotency key: %w", err)
	}
	return nil
}

func (r *Repository) Invalidate(ctx context.Context, tenantID uuid.UUID, key string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM processed_operations WHERE tenant_id = $1 AND idempotency_key = $2`,
		tenantID, key,
	)
	if err != nil {
		return fmt.Errorf("invalidating idempotency key: %w", err)
	}
	return nil
}

// Purge deletes records older than cutoff and returns how many were removed.
func (r *Repository) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM processed_operations WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
