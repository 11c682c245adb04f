package lifecycle

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"crm_engine_backend/internal/contacts"
	"crm_engine_backend/internal/notification/inapp"
	"crm_engine_backend/internal/shared/batch"
	"crm_engine_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memContacts struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*contacts.Contact
}

func newMemContacts() *memContacts {
	return &memContacts{rows: make(map[uuid.UUID]*contacts.Contact)}
}

func (m *memContacts) add(tenant uuid.UUID, status contacts.Status, lastTouched time.Time) uuid.UUID {
	id, _ := uuid.NewV7()
	touched := lastTouched
	m.rows[id] = &contacts.Contact{
		ID:              id,
		TenantID:        tenant,
		FirstName:       "Test",
		LastName:        id.String()[:8],
		Status:          status,
		LastContactDate: &touched,
		CreatedAt:       lastTouched,
	}
	return id
}

func stale(c *contacts.Contact, cutoff time.Time) bool {
	return c.Status != contacts.StatusWithering && c.Status != contacts.StatusDead && c.LastTouched().Before(cutoff)
}

func (m *memContacts) ListStale(_ context.Context, tenantID *uuid.UUID, cutoff time.Time, limit int) ([]contacts.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []contacts.Contact
	for _, c := range m.rows {
		if tenantID != nil && c.TenantID != *tenantID {
			continue
		}
		if stale(c, cutoff) {
			out = append(out, *c)
		}
	}
	contacts.SortByID(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memContacts) MarkWithering(_ context.Context, id uuid.UUID, cutoff time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok || !stale(c, cutoff) {
		return false, nil
	}
	c.Status = contacts.StatusWithering
	return true, nil
}

func (m *memContacts) status(id uuid.UUID) contacts.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].Status
}

type recordingNotifier struct {
	mu      sync.Mutex
	members int
	sent    []uuid.UUID
	err     error
}

func (r *recordingNotifier) NotifyTenant(_ context.Context, n inapp.Notice) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	for i := 0; i < r.members; i++ {
		r.sent = append(r.sent, *n.ContactID)
	}
	return r.members, nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestSweepWitheringIsIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tenant := uuid.New()
	store := newMemContacts()
	staleIDs := []uuid.UUID{
		store.add(tenant, contacts.StatusNew, now.AddDate(0, 0, -30)),
		store.add(tenant, contacts.StatusHot, now.AddDate(0, 0, -15)),
		store.add(tenant, contacts.StatusRetouch, now.AddDate(0, 0, -90)),
	}
	fresh := store.add(tenant, contacts.StatusNew, now.AddDate(0, 0, -3))
	dead := store.add(tenant, contacts.StatusDead, now.AddDate(0, 0, -60))
	other := store.add(uuid.New(), contacts.StatusNew, now.AddDate(0, 0, -60))

	notifier := &recordingNotifier{members: 2}
	m := NewMonitor(store, notifier, logger.New("development"), 3, 14)

	flipped, err := m.SweepWithering(context.Background(), tenant, 14, now)
	require.NoError(t, err)
	assert.Equal(t, 3, flipped)
	for _, id := range staleIDs {
		assert.Equal(t, contacts.StatusWithering, store.status(id))
	}
	assert.Equal(t, contacts.StatusNew, store.status(fresh))
	assert.Equal(t, contacts.StatusDead, store.status(dead))
	assert.Equal(t, contacts.StatusNew, store.status(other), "other tenants are untouched")
	assert.Equal(t, 6, notifier.count())

	again, err := m.SweepWithering(context.Background(), tenant, 14, now)
	require.NoError(t, err)
	assert.Zero(t, again)
	assert.Equal(t, 6, notifier.count(), "a re-scan must not notify again")
}

func TestConcurrentSweepsNotifyOncePerMember(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tenant := uuid.New()
	store := newMemContacts()
	for i := 0; i < 8; i++ {
		store.add(tenant, contacts.StatusNew, now.AddDate(0, 0, -20-i))
	}

	notifier := &recordingNotifier{members: 3}
	m := NewMonitor(store, notifier, logger.New("development"), 4, 14)

	var wg sync.WaitGroup
	results := make([]batch.Result, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = m.SweepDue(context.Background(), now, 100)
		}()
	}
	wg.Wait()

	total := results[0]
	total.Add(results[1])
	assert.Equal(t, 8, total.Processed)
	assert.Zero(t, total.Errors)
	assert.Equal(t, 24, notifier.count())

	perContact := map[uuid.UUID]int{}
	for _, id := range notifier.sent {
		perContact[id]++
	}
	counts := make([]int, 0, len(perContact))
	for _, n := range perContact {
		counts = append(counts, n)
	}
	sort.Ints(counts)
	assert.Len(t, counts, 8)
	assert.Equal(t, 3, counts[0])
	assert.Equal(t, 3, counts[len(counts)-1])
}

func TestSweepWitheringRequiresTenant(t *testing.T) {
	m := NewMonitor(newMemContacts(), nil, logger.New("development"), 1, 14)
	_, err := m.SweepWithering(context.Background(), uuid.Nil, 14, time.Now())
	require.Error(t, err)
}

func TestSweepWitheringCountsFlipsWhenNotificationFails(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tenant := uuid.New()
	store := newMemContacts()
	const total = sweepPageSize + 50
	for i := 0; i < total; i++ {
		store.add(tenant, contacts.StatusNew, now.AddDate(0, 0, -40))
	}
	notifier := &recordingNotifier{err: errors.New("notifications table unavailable")}
	m := NewMonitor(store, notifier, logger.New("development"), 4, DefaultThresholdDays)

	flipped, err := m.SweepWithering(context.Background(), tenant, DefaultThresholdDays, now)
	require.NoError(t, err)
	assert.Equal(t, total, flipped)

	left, err := store.ListStale(context.Background(), &tenant, Cutoff(now, DefaultThresholdDays), total)
	require.NoError(t, err)
	assert.Empty(t, left)
}
