package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"crm_engine_backend/internal/tasks"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a task does not exist.
var ErrNotFound = tasks.ErrNotFound

const taskColumns = `id, tenant_id, contact_id, type, payload, scheduled_for, status,
	attempts, error_message, started_at, completed_at, created_at`

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanTask(row pgx.Row) (tasks.Task, error) {
	var t tasks.Task
	var typ, status string
	err := row.Scan(
		&t.ID, &t.TenantID, &t.ContactID, &typ, &t.Payload, &t.ScheduledFor, &status,
		&t.Attempts, &t.ErrorMessage, &t.StartedAt, &t.CompletedAt, &t.CreatedAt,
	)
	t.Type = tasks.Type(typ)
	t.Status = tasks.Status(status)
	return t, err
}

type CreateParams struct {
	TenantID     uuid.UUID
	ContactID    uuid.UUID
	Type         tasks.Type
	Payload      tasks.FollowUpPayload
	ScheduledFor time.Time
}

func (r *Repository) Create(ctx context.Context, p CreateParams) (tasks.Task, error) {
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return tasks.Task{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return tasks.Task{}, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO scheduled_tasks (id, tenant_id, contact_id, type, payload, scheduled_for)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+taskColumns,
		id, p.TenantID, p.ContactID, string(p.Type), payload, p.ScheduledFor)
	return scanTask(row)
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (tasks.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return tasks.Task{}, ErrNotFound
	}
	return t, err
}

// ListDue returns pending tasks scheduled at or before now, oldest first.
func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]tasks.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM scheduled_tasks
		WHERE status = 'pending' AND scheduled_for <= $1
		ORDER BY scheduled_for ASC, id ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []tasks.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

// Claim moves a due task from pending to processing. Only one caller can win.
func (r *Repository) Claim(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_tasks
		SET status = 'processing', attempts = attempts + 1, started_at = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending' AND scheduled_for <= $2
	`, id, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) Complete(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scheduled_tasks
		SET status = 'completed', completed_at = $2, error_message = NULL, updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`, id, now)
	return err
}

func (r *Repository) Fail(ctx context.Context, id uuid.UUID, message string, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scheduled_tasks
		SET status = 'failed', error_message = $2, completed_at = $3, updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`, id, message, now)
	return err
}

// Release hands a processing task back to the pending pool for a later run.
func (r *Repository) Release(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scheduled_tasks
		SET status = 'pending', started_at = NULL, updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`, id)
	return err
}

// ReclaimAbandoned returns tasks stuck in processing since before olderThan to
// pending.
func (r *Repository) ReclaimAbandoned(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_tasks
		SET status = 'pending', started_at = NULL, updated_at = now()
		WHERE status = 'processing' AND started_at < $1
	`, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
