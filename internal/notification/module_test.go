package notification

import (
	"context"
	"errors"
	"sync"
	"testing"

	"crm_engine_backend/internal/events"
	"crm_engine_backend/internal/notification/inapp"
	"crm_engine_backend/platform/logger"

	"github.com/google/uuid"
)

type memStore struct {
	mu      sync.Mutex
	members map[uuid.UUID][]uuid.UUID
	created []inapp.CreateParams
	failFor uuid.UUID
}

func (s *memStore) Create(_ context.Context, p inapp.CreateParams) (inapp.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.UserID == s.failFor {
		return inapp.Notification{}, errors.New("insert failed")
	}
	s.created = append(s.created, p)
	return inapp.Notification{ID: uuid.New(), TenantID: p.TenantID, UserID: p.UserID, Title: p.Title}, nil
}

func (s *memStore) ListTenantMembers(_ context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	return s.members[tenantID], nil
}

func (s *memStore) List(context.Context, uuid.UUID, uuid.UUID, int, int) ([]inapp.Notification, int, error) {
	return nil, 0, nil
}

func TestContactMarkedDeadNotifiesEveryMember(t *testing.T) {
	tenant := uuid.New()
	store := &memStore{members: map[uuid.UUID][]uuid.UUID{tenant: {uuid.New(), uuid.New(), uuid.New()}}}
	m := NewWithStore(store, logger.New("development"))

	err := m.Handle(context.Background(), events.ContactMarkedDead{
		TenantID:    tenant,
		ContactID:   uuid.New(),
		ContactName: "Ada Lovelace",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if len(store.created) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(store.created))
	}
	for _, n := range store.created {
		if n.TenantID != tenant || n.Category != categoryWarning {
			t.Fatalf("unexpected notification %+v", n)
		}
	}
}

func TestNotifyTenantKeepsGoingAfterMemberFailure(t *testing.T) {
	tenant := uuid.New()
	failing := uuid.New()
	store := &memStore{
		members: map[uuid.UUID][]uuid.UUID{tenant: {uuid.New(), failing, uuid.New()}},
		failFor: failing,
	}
	svc := inapp.NewService(store, logger.New("development"))

	created, err := svc.NotifyTenant(context.Background(), inapp.Notice{TenantID: tenant, Title: "Heads up"})
	if err == nil {
		t.Fatalf("expected joined error for failing member")
	}
	if created != 2 {
		t.Fatalf("expected 2 notifications persisted, got %d", created)
	}
}

func TestCleanMergeIsNotAnnounced(t *testing.T) {
	tenant := uuid.New()
	store := &memStore{members: map[uuid.UUID][]uuid.UUID{tenant: {uuid.New()}}}
	m := NewWithStore(store, logger.New("development"))

	_ = m.Handle(context.Background(), events.ContactsMerged{TenantID: tenant, TargetID: uuid.New(), SourcesDeleted: true})
	if len(store.created) != 0 {
		t.Fatalf("expected no notification for a completed merge, got %d", len(store.created))
	}

	_ = m.Handle(context.Background(), events.ContactsMerged{TenantID: tenant, TargetID: uuid.New(), SourceIDs: []uuid.UUID{uuid.New()}})
	if len(store.created) != 1 {
		t.Fatalf("expected one notification for a pending cleanup, got %d", len(store.created))
	}
}
