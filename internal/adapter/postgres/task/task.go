package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domaintask "github.com/alanyang/call-dispatch/internal/domain/task"
	porttask "github.com/alanyang/call-dispatch/internal/port/task"
)

const columns = `id, tenant_id, first_name, phone, notes, status, assigned_agent_id, created_at, completed_at`

type Repository struct {
	pool *pgxpool.Pool
}

var _ porttask.Repository = (*Repository)(nil)

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateBatch inserts tasks in one transaction, in slice order.
func (r *Repository) CreateBatch(ctx context.Context, tasks []domaintask.Task) ([]domaintask.Task, error) {
	if len(tasks) == 0 {
		return []domaintask.Task{}, nil
	}

	query := `
		INSERT INTO tasks (` + columns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING ` + columns

	created := make([]domaintask.Task, 0, len(tasks))
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, t := range tasks {
			batch.Queue(query,
				t.ID, t.TenantID, t.FirstName, t.Phone, t.Notes, string(t.Status),
				t.AssignedAgentID, t.CreatedAt, t.CompletedAt,
			)
		}

		results := tx.SendBatch(ctx, batch)
		for range tasks {
			t, err := scanTask(results.QueryRow())
			if err != nil {
				results.Close()
				return fmt.Errorf("inserting task: %w", err)
			}
			created = append(created, t)
		}
		return results.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("creating task batch: %w", err)
	}
	return created, nil
}

func (r *Repository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (domaintask.Task, error) {
	query := `SELECT ` + columns + ` FROM tasks WHERE tenant_id = $1 AND id = $2`

	t, err := scanTask(r.pool.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domaintask.Task{}, domaintask.ErrNotFound
		}
		return domaintask.Task{}, fmt.Errorf("querying task: %w", err)
	}
	return t, nil
}

func (r *Repository) List(ctx context.Context, filters domaintask.ListFilters) ([]domaintask.Task, error) {
	query := `SELECT ` + columns + ` FROM tasks WHERE tenant_id = $1`
	args := []interface{}{filters.TenantID}
	argIdx := 2

	if filters.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*filters.Status))
		argIdx++
	}
	if filters.AssignedTo != nil {
		query += fmt.Sprintf(" AND assigned_agent_id = $%d", argIdx)
		args = append(args, *filters.AssignedTo)
		argIdx++
	}

	if filters.OldestFirst {
		query += " ORDER BY created_at ASC, seq ASC"
	} else {
		query += " ORDER BY created_at DESC, seq DESC"
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domaintask.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *Repository) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status domaintask.Status, completedAt *time.Time) (domaintask.Task, error) {
	query := `
		UPDATE tasks SET status = $3, completed_at = $4
		WHERE tenant_id = $1 AND id = $2
		RETURNING ` + columns

	t, err := scanTask(r.pool.QueryRow(ctx, query, tenantID, id, string(status), completedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domaintask.Task{}, domaintask.ErrNotFound
		}
		return domaintask.Task{}, fmt.Errorf("updating task status: %w", err)
	}
	return t, nil
}

func (r *Repository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domaintask.ErrNotFound
	}
	return nil
}

func (r *Repository) Assign(ctx context.Context, taskID, agentID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tasks SET assigned_agent_id = $2 WHERE id = $1`, taskID, agentID)
	if err != nil {
		return fmt.Errorf("assigning task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", taskID, domaintask.ErrNotFound)
	}
	return nil
}

func (r *Repository) ClearAssignments(ctx context.Context, tenantID uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `UPDATE tasks SET assigned_agent_id = NULL WHERE tenant_id = $1`, tenantID); err != nil {
		return fmt.Errorf("clearing task assignments: %w", err)
	}
	return nil
}

func (r *Repository) OpenPhones(ctx context.Context, tenantID uuid.UUID, phones []string) ([]string, error) {
	if len(phones) == 0 {
		return nil, nil
	}
	query := `
		SELECT DISTINCT phone FROM tasks
		WHERE tenant_id = $1 AND phone = ANY($2) AND status IN ('pending', 'in-progress')`

	rows, err := r.pool.Query(ctx, query, tenantID, phones)
	if err != nil {
		return nil, fmt.Errorf("checking open phones: %w", err)
	}
	defer rows.Close()

	var taken []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning phone: %w", err)
		}
		taken = append(taken, p)
	}
	return taken, rows.Err()
}

func scanTask(row pgx.Row) (domaintask.Task, error) {
	var t domaintask.Task
	var status string
	err := row.Scan(
		&t.ID, &t.TenantID, &t.FirstName, &t.Phone, &t.Notes, &status,
		&t.AssignedAgentID, &t.CreatedAt, &t.CompletedAt,
	)
	t.Status = domaintask.Status(status)
	return t, err
}
