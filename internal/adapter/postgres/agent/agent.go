package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	domainagent "github.com/alanyang/call-dispatch/internal/domain/agent"
	portagent "github.com/alanyang/call-dispatch/internal/port/agent"
)

const uniqueViolation = "23505"

const columns = `id, tenant_id, name, email, country_code, mobile_number, is_active, assigned_tasks, created_at`

type Repository struct {
	pool *pgxpool.Pool
}

var _ portagent.Repository = (*Repository)(nil)

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, a domainagent.Agent) (domainagent.Agent, error) {
	if a.AssignedTasks == nil {
		a.AssignedTasks = []uuid.UUID{}
	}
	query := `
		INSERT INTO agents (` + columns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING ` + columns

	created, err := scanAgent(r.pool.QueryRow(ctx, query,
		a.ID, a.TenantID, a.Name, a.Email, a.CountryCode, a.MobileNumber,
		a.IsActive, a.AssignedTasks, a.CreatedAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return domainagent.Agent{}, domainagent.ErrDuplicateEmail
		}
		return domainagent.Agent{}, fmt.Errorf("inserting agent: %w", err)
	}
	return created, nil
}

func (r *Repository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (domainagent.Agent, error) {
	query := `SELECT ` + columns + ` FROM agents WHERE tenant_id = $1 AND id = $2`

	a, err := scanAgent(r.pool.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domainagent.Agent{}, domainagent.ErrNotFound
		}
		return domainagent.Agent{}, fmt.Errorf("querying agent: %w", err)
	}
	return a, nil
}

func (r *Repository) List(ctx context.Context, filters domainagent.ListFilters) ([]domainagent.Agent, error) {
	query := `SELECT ` + columns + ` FROM agents WHERE tenant_id = $1`
	args := []interface{}{filters.TenantID}
	argIdx := 2

	if filters.ActiveOnly {
		query += " AND is_active"
	}
	if filters.ExcludeID != nil {
		query += fmt.Sprintf(" AND id <> $%d", argIdx)
		args = append(args, *filters.ExcludeID)
		argIdx++
	}
	if filters.Email != nil {
		query += fmt.Sprintf(" AND email = $%d", argIdx)
		args = append(args, *filters.Email)
		argIdx++
	}

	query += " ORDER BY created_at ASC, id ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	agents := []domainagent.Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (r *Repository) Update(ctx context.Context, a domainagent.Agent) error {
	query := `
		UPDATE agents SET name = $3, email = $4, country_code = $5, mobile_number = $6
		WHERE tenant_id = $1 AND id = $2`

	tag, err := r.pool.Exec(ctx, query, a.TenantID, a.ID, a.Name, a.Email, a.CountryCode, a.MobileNumber)
	if err != nil {
		if isUniqueViolation(err) {
			return domainagent.ErrDuplicateEmail
		}
		return fmt.Errorf("updating agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainagent.ErrNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM agents WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("deleting agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainagent.ErrNotFound
	}
	return nil
}

func (r *Repository) SetActive(ctx context.Context, tenantID, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE agents SET is_active = $3 WHERE tenant_id = $1 AND id = $2`, tenantID, id, active)
	if err != nil {
		return fmt.Errorf("setting agent active flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainagent.ErrNotFound
	}
	return nil
}

func (r *Repository) ActivateAll(ctx context.Context, tenantID uuid.UUID) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE agents SET is_active = TRUE WHERE tenant_id = $1 AND NOT is_active`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("activating agents: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *Repository) PushTasks(ctx context.Context, agentID uuid.UUID, taskIDs []uuid.UUID) error {
	if len(taskIDs) == 0 {
		return nil
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE agents SET assigned_tasks = assigned_tasks || $2::uuid[] WHERE id = $1`, agentID, taskIDs)
	if err != nil {
		return fmt.Errorf("pushing tasks to agent %s: %w", agentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agent %s: %w", agentID, domainagent.ErrNotFound)
	}
	return nil
}

func (r *Repository) PullTask(ctx context.Context, agentID, taskID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE agents SET assigned_tasks = array_remove(assigned_tasks, $2) WHERE id = $1`, agentID, taskID)
	if err != nil {
		return fmt.Errorf("pulling task from agent %s: %w", agentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agent %s: %w", agentID, domainagent.ErrNotFound)
	}
	return nil
}

func (r *Repository) ClearTasks(ctx context.Context, agentID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE agents SET assigned_tasks = '{}' WHERE id = $1`, agentID)
	if err != nil {
		return fmt.Errorf("clearing tasks of agent %s: %w", agentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agent %s: %w", agentID, domainagent.ErrNotFound)
	}
	return nil
}

func (r *Repository) ClearAllTasks(ctx context.Context, tenantID uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `UPDATE agents SET assigned_tasks = '{}' WHERE tenant_id = $1`, tenantID); err != nil {
		return fmt.Errorf("clearing agent task lists: %w", err)
	}
	return nil
}

func scanAgent(row pgx.Row) (domainagent.Agent, error) {
	var a domainagent.Agent
	err := row.Scan(
		&a.ID, &a.TenantID, &a.Name, &a.Email, &a.CountryCode, &a.MobileNumber,
		&a.IsActive, &a.AssignedTasks, &a.CreatedAt,
	)
	if a.AssignedTasks == nil {
		a.AssignedTasks = []uuid.UUID{}
	}
	return a, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
