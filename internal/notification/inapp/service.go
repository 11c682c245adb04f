package inapp

import (
	"context"
	"errors"

	"crm_engine_backend/platform/apperr"
	"crm_engine_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, p CreateParams) (Notification, error)
	ListTenantMembers(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error)
	List(ctx context.Context, tenantID, userID uuid.UUID, limit, offset int) ([]Notification, int, error)
}

type Service struct {
	repo Store
	log  *logger.Logger
}

func NewService(repo Store, log *logger.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log,
	}
}

// Notice is a tenant-wide notification fanned out to every member.
type Notice struct {
	TenantID  uuid.UUID
	ContactID *uuid.UUID
	Title     string
	Content   string
	Category  string // "info", "success", "warning", "error"
}

// NotifyTenant creates one notification per tenant member and returns how many
// were persisted. Failures for individual members are joined.
func (s *Service) NotifyTenant(ctx context.Context, n Notice) (int, error) {
	if s == nil || s.repo == nil {
		return 0, apperr.Internal("in-app notification service not configured")
	}
	if n.Category == "" {
		n.Category = "info"
	}

	members, err := s.repo.ListTenantMembers(ctx, n.TenantID)
	if err != nil {
		return 0, err
	}

	created := 0
	var errs []error
	for _, userID := range members {
		_, err := s.repo.Create(ctx, CreateParams{
			TenantID:  n.TenantID,
			UserID:    userID,
			ContactID: n.ContactID,
			Title:     n.Title,
			Content:   n.Content,
			Category:  n.Category,
		})
		if err != nil {
			if s.log != nil {
				s.log.Error("failed to persist in-app notification", "error", err, "userId", userID)
			}
			errs = append(errs, err)
			continue
		}
		created++
	}

	return created, errors.Join(errs...)
}

func (s *Service) List(ctx context.Context, tenantID, userID uuid.UUID, page, pageSize int) ([]Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	offset := (page - 1) * pageSize
	return s.repo.List(ctx, tenantID, userID, pageSize, offset)
}
