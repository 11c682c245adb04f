package merge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"crm_engine_backend/internal/contacts"
	contactrepo "crm_engine_backend/internal/contacts/repository"
	"crm_engine_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu         sync.Mutex
	contacts   map[uuid.UUID]contacts.Contact
	activities []contactrepo.CreateActivityParams
	writes     int
	deleteErr  error
	repointed  [][]uuid.UUID
}

func newFakeStore(items ...contacts.Contact) *fakeStore {
	s := &fakeStore{contacts: make(map[uuid.UUID]contacts.Contact)}
	for _, c := range items {
		s.contacts[c.ID] = c
	}
	return s
}

func (s *fakeStore) ListByIDs(_ context.Context, ids []uuid.UUID) ([]contacts.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]contacts.Contact, 0)
	for _, id := range ids {
		if c, ok := s.contacts[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) ListWithEmail(_ context.Context, tenantID uuid.UUID) ([]contacts.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]contacts.Contact, 0)
	for _, c := range s.contacts {
		if c.TenantID == tenantID && c.EmailAddress() != "" {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) Update(_ context.Context, c contacts.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.contacts[c.ID] = c
	return nil
}

func (s *fakeStore) RepointRelations(_ context.Context, _ uuid.UUID, _ uuid.UUID, ids []uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.repointed = append(s.repointed, ids)
	return int64(len(ids)), nil
}

func (s *fakeStore) CreateActivity(_ context.Context, p contactrepo.CreateActivityParams) (contacts.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.activities = append(s.activities, p)
	return contacts.Activity{Type: p.Type}, nil
}

func (s *fakeStore) MergedSourceIDs(_ context.Context, _ uuid.UUID, targetID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, 0)
	for _, a := range s.activities {
		if a.ContactID == targetID && a.Type == contacts.ActivityContactMerged {
			out = append(out, a.Metadata["sourceIds"].([]uuid.UUID)...)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteContacts(_ context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	s.writes++
	var n int64
	for _, id := range ids {
		if c, ok := s.contacts[id]; ok && c.TenantID == tenantID {
			delete(s.contacts, id)
			n++
		}
	}
	return n, nil
}

type recordingScheduler struct {
	calls [][]uuid.UUID
}

func (r *recordingScheduler) ScheduleMergeCleanup(_ context.Context, _, _ uuid.UUID, ids []uuid.UUID) error {
	r.calls = append(r.calls, ids)
	return nil
}

func contactFor(t *testing.T, tenantID uuid.UUID, email string) contacts.Contact {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	c := contacts.Contact{ID: id, TenantID: tenantID, Status: contacts.StatusNew}
	if email != "" {
		c.Email = &email
	}
	return c
}

func TestMergeHappyPath(t *testing.T) {
	tenant := uuid.New()
	target := contactFor(t, tenant, "a@example.com")
	s1 := contactFor(t, tenant, "")
	s1.Company = "Acme"
	s2 := contactFor(t, tenant, "")

	store := newFakeStore(target, s1, s2)
	svc := New(store, nil, nil)

	result, err := svc.Merge(context.Background(), tenant, target.ID, []uuid.UUID{s2.ID, s1.ID, s1.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, result.MergedCount)
	assert.Equal(t, "Acme", result.Contact.Company)

	_, stillThere := store.contacts[s1.ID]
	assert.False(t, stillThere)
	require.Len(t, store.activities, 1)
	assert.Equal(t, contacts.ActivityContactMerged, store.activities[0].Type)
	assert.Equal(t, []uuid.UUID{s1.ID, s2.ID}, store.activities[0].Metadata["sourceIds"])
}

func TestMergePreconditionsWriteNothing(t *testing.T) {
	tenant := uuid.New()
	target := contactFor(t, tenant, "a@example.com")
	foreign := contactFor(t, uuid.New(), "b@example.com")
	store := newFakeStore(target, foreign)
	svc := New(store, nil, nil)
	ctx := context.Background()

	_, err := svc.Merge(ctx, tenant, target.ID, nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Merge(ctx, tenant, target.ID, []uuid.UUID{target.ID})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Merge(ctx, tenant, target.ID, []uuid.UUID{uuid.New()})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = svc.Merge(ctx, tenant, target.ID, []uuid.UUID{foreign.ID})
	assert.True(t, apperr.Is(err, apperr.KindCrossTenant))

	_, err = svc.Merge(ctx, uuid.Nil, target.ID, []uuid.UUID{foreign.ID})
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	assert.Zero(t, store.writes)
	assert.Len(t, store.contacts, 2)
}

func TestMergeDeleteFailureIsPartialAndSchedulesCleanup(t *testing.T) {
	tenant := uuid.New()
	target := contactFor(t, tenant, "a@example.com")
	source := contactFor(t, tenant, "a@example.com")
	store := newFakeStore(target, source)
	store.deleteErr = errors.New("connection reset")

	scheduler := &recordingScheduler{}
	svc := New(store, nil, nil)
	svc.SetCleanupScheduler(scheduler)

	_, err := svc.Merge(context.Background(), tenant, target.ID, []uuid.UUID{source.ID})
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.KindPartialFailure))

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	details, ok := appErr.Details.(PartialDetails)
	require.True(t, ok)
	assert.True(t, details.CleanupRequired)
	assert.True(t, details.CleanupScheduled)
	assert.Equal(t, []uuid.UUID{source.ID}, details.PendingSourceIDs)
	assert.Len(t, scheduler.calls, 1)

	// The audit entry was written, so a later cleanup may delete the source.
	store.deleteErr = nil
	res, err := svc.CleanupSources(context.Background(), tenant, target.ID, []uuid.UUID{source.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Deleted)

	res, err = svc.CleanupSources(context.Background(), tenant, target.ID, []uuid.UUID{source.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 0, res.Deleted, "second cleanup is a no-op")
}

func TestCleanupSourcesRefusesUnrecordedIDs(t *testing.T) {
	tenant := uuid.New()
	target := contactFor(t, tenant, "a@example.com")
	bystander := contactFor(t, tenant, "b@example.com")
	store := newFakeStore(target, bystander)
	svc := New(store, nil, nil)

	res, err := svc.CleanupSources(context.Background(), tenant, target.ID, []uuid.UUID{bystander.ID})
	require.NoError(t, err)
	assert.Zero(t, res.Deleted)
	assert.Equal(t, []uuid.UUID{bystander.ID}, res.Skipped)
	assert.Contains(t, store.contacts, bystander.ID)
}

func TestFindDuplicateGroups(t *testing.T) {
	tenant := uuid.New()
	a := contactFor(t, tenant, "X@Y.com")
	b := contactFor(t, tenant, "x@y.com")
	c := contactFor(t, tenant, "X@y.COM")
	single := contactFor(t, tenant, "solo@y.com")
	skeletal := contactFor(t, tenant, "")
	foreign := contactFor(t, uuid.New(), "x@y.com")

	svc := New(newFakeStore(a, b, c, single, skeletal, foreign), nil, nil)
	groups, err := svc.FindDuplicateGroups(context.Background(), tenant)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "x@y.com", groups[0].Email)
	require.Len(t, groups[0].Contacts, 3)
	assert.Equal(t, a.ID, groups[0].Contacts[0].ID)
	for _, member := range groups[0].Contacts {
		assert.Equal(t, "x@y.com", strings.ToLower(member.EmailAddress()))
	}
}
