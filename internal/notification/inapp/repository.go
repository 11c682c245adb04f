package inapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm_engine_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opCreate      = "notification.inapp.repository.create"
	opList        = "notification.inapp.repository.list"
	opListMembers = "notification.inapp.repository.list_members"

	errRepoNotConfigured = "in-app notification repository not configured"
)

type Notification struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  uuid.UUID  `json:"tenantId"`
	UserID    uuid.UUID  `json:"userId"`
	ContactID *uuid.UUID `json:"contactId,omitempty"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Category  string     `json:"category"`
	CreatedAt time.Time  `json:"createdAt"`
}

type CreateParams struct {
	TenantID  uuid.UUID
	UserID    uuid.UUID
	ContactID *uuid.UUID
	Title     string
	Content   string
	Category  string
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, p CreateParams) (Notification, error) {
	if r == nil || r.pool == nil {
		return Notification{}, apperr.Internal(errRepoNotConfigured).WithOp(opCreate)
	}
	if p.TenantID == uuid.Nil || p.UserID == uuid.Nil {
		return Notification{}, apperr.Validation("tenantId and userId are required").WithOp(opCreate)
	}
	if p.Title == "" {
		return Notification{}, apperr.Validation("title is required").WithOp(opCreate)
	}

	category := p.Category
	if category == "" {
		category = "info"
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Notification{}, apperr.Internal(fmt.Sprintf("generate notification id: %v", err)).WithOp(opCreate)
	}

	var n Notification
	err = r.pool.QueryRow(ctx, `
		INSERT INTO notifications (id, tenant_id, user_id, contact_id, title, content, category)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, tenant_id, user_id, contact_id, title, content, category, created_at
	`, id, p.TenantID, p.UserID, p.ContactID, p.Title, p.Content, category).Scan(
		&n.ID, &n.TenantID, &n.UserID, &n.ContactID, &n.Title, &n.Content, &n.Category, &n.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Notification{}, apperr.Validation("invalid tenantId or userId").WithOp(opCreate)
		}
		return Notification{}, apperr.Internal(fmt.Sprintf("create notification failed: %v", err)).WithOp(opCreate)
	}

	return n, nil
}

// ListTenantMembers returns the users that receive tenant-wide notifications.
func (r *Repository) ListTenantMembers(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opListMembers)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT user_id FROM tenant_members
		WHERE tenant_id = $1
		ORDER BY user_id
	`, tenantID)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list tenant members failed: %v", err)).WithOp(opListMembers)
	}

	members, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("scan tenant members failed: %v", err)).WithOp(opListMembers)
	}
	return members, nil
}

func (r *Repository) List(ctx context.Context, tenantID, userID uuid.UUID, limit, offset int) ([]Notification, int, error) {
	if r == nil || r.pool == nil {
		return nil, 0, apperr.Internal(errRepoNotConfigured).WithOp(opList)
	}
	if userID == uuid.Nil {
		return nil, 0, apperr.Validation("userId is required").WithOp(opList)
	}

	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID).Scan(&total)
	if err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("count notifications failed: %v", err)).WithOp(opList)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, user_id, contact_id, title, content, category, created_at
		FROM notifications
		WHERE tenant_id = $1 AND user_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, tenantID, userID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("list notifications query failed: %v", err)).WithOp(opList)
	}
	defer rows.Close()

	items := make([]Notification, 0, limit)
	for rows.Next() {
		var n Notification
		if scanErr := rows.Scan(&n.ID, &n.TenantID, &n.UserID, &n.ContactID, &n.Title, &n.Content, &n.Category, &n.CreatedAt); scanErr != nil {
			return nil, 0, apperr.Internal(fmt.Sprintf("scan notifications failed: %v", scanErr)).WithOp(opList)
		}
		items = append(items, n)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("iterate notifications failed: %v", rowsErr)).WithOp(opList)
	}

	return items, total, nil
}
