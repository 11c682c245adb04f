package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crm_engine_backend/internal/contacts"
	contactrepo "crm_engine_backend/internal/contacts/repository"
	"crm_engine_backend/internal/email"
	"crm_engine_backend/internal/notification/inapp"
	"crm_engine_backend/internal/shared/batch"
	"crm_engine_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memTasks struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*Task
	order []uuid.UUID
	// listBarrier, when set, holds every ListDue caller until all have listed.
	listBarrier *sync.WaitGroup
}

func newMemTasks() *memTasks {
	return &memTasks{rows: make(map[uuid.UUID]*Task)}
}

func (m *memTasks) add(t Task) uuid.UUID {
	t.ID, _ = uuid.NewV7()
	t.Status = StatusPending
	m.rows[t.ID] = &t
	m.order = append(m.order, t.ID)
	return t.ID
}

func (m *memTasks) ListDue(_ context.Context, now time.Time, limit int) ([]Task, error) {
	m.mu.Lock()
	var out []Task
	for _, id := range m.order {
		t := m.rows[id]
		if t.Status == StatusPending && !t.ScheduledFor.After(now) && len(out) < limit {
			out = append(out, *t)
		}
	}
	m.mu.Unlock()

	if m.listBarrier != nil {
		m.listBarrier.Done()
		m.listBarrier.Wait()
	}
	return out, nil
}

func (m *memTasks) Claim(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.rows[id]
	if t.Status != StatusPending || t.ScheduledFor.After(now) {
		return false, nil
	}
	t.Status = StatusProcessing
	t.Attempts++
	t.StartedAt = &now
	return true, nil
}

func (m *memTasks) Complete(_ context.Context, id uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.rows[id]
	if t.Status == StatusProcessing {
		t.Status = StatusCompleted
		t.CompletedAt = &now
	}
	return nil
}

func (m *memTasks) Fail(_ context.Context, id uuid.UUID, message string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.rows[id]
	if t.Status == StatusProcessing {
		t.Status = StatusFailed
		t.ErrorMessage = &message
		t.CompletedAt = &now
	}
	return nil
}

func (m *memTasks) Release(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.rows[id]
	if t.Status == StatusProcessing {
		t.Status = StatusPending
		t.StartedAt = nil
	}
	return nil
}

func (m *memTasks) get(id uuid.UUID) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

type memContacts struct {
	mu         sync.Mutex
	rows       map[uuid.UUID]contacts.Contact
	touched    map[uuid.UUID]time.Time
	activities []contactrepo.CreateActivityParams
}

func newMemContacts() *memContacts {
	return &memContacts{rows: map[uuid.UUID]contacts.Contact{}, touched: map[uuid.UUID]time.Time{}}
}

func (m *memContacts) add(tenant uuid.UUID, addr string) uuid.UUID {
	id := uuid.New()
	c := contacts.Contact{ID: id, TenantID: tenant, FirstName: "Grace", LastName: "Hopper"}
	if addr != "" {
		c.Email = &addr
	}
	m.rows[id] = c
	return id
}

func (m *memContacts) Get(_ context.Context, id uuid.UUID) (contacts.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return contacts.Contact{}, contacts.ErrNotFound
	}
	return c, nil
}

func (m *memContacts) TouchLastContact(_ context.Context, _, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched[id] = at
	return nil
}

func (m *memContacts) CreateActivity(_ context.Context, p contactrepo.CreateActivityParams) (contacts.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities = append(m.activities, p)
	return contacts.Activity{ID: uuid.New(), Type: p.Type}, nil
}

type countingSender struct {
	sent atomic.Int64
	err  error
	mu   sync.Mutex
	tags map[string]int
}

func (s *countingSender) Send(_ context.Context, msg email.Message) (email.Ack, error) {
	if s.err != nil {
		return email.Ack{}, s.err
	}
	s.sent.Add(1)
	s.mu.Lock()
	if s.tags == nil {
		s.tags = map[string]int{}
	}
	s.tags[msg.Tags["taskId"]]++
	s.mu.Unlock()
	return email.Ack{MessageID: uuid.NewString(), Provider: "test"}, nil
}

type memNotifier struct {
	mu      sync.Mutex
	notices []inapp.Notice
}

func (n *memNotifier) NotifyTenant(_ context.Context, notice inapp.Notice) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return 1, nil
}

var testNow = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func followUp(tenant, contact uuid.UUID) Task {
	return Task{
		TenantID:     tenant,
		ContactID:    contact,
		Type:         TypeFollowUpEmail,
		Payload:      []byte(`{"subject":"Checking in, {{.FirstName}}","body":"Hi {{.FirstName}}"}`),
		ScheduledFor: testNow.Add(-time.Hour),
	}
}

func TestConcurrentRunsClaimEachTaskOnce(t *testing.T) {
	tenant := uuid.New()
	store := newMemTasks()
	people := newMemContacts()
	var ids []uuid.UUID
	for i := 0; i < 10; i++ {
		ids = append(ids, store.add(followUp(tenant, people.add(tenant, "grace@example.com"))))
	}

	var barrier sync.WaitGroup
	barrier.Add(2)
	store.listBarrier = &barrier

	sender := &countingSender{}
	p := NewProcessor(store, people, sender, nil, logger.New("development"), 4, 5)

	results := make([]batch.Result, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p.RunDue(context.Background(), testNow, 100)
		}()
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, 10, r.Processed+r.Skipped)
		assert.Zero(t, r.Errors)
	}
	assert.Equal(t, 10, results[0].Processed+results[1].Processed)
	assert.EqualValues(t, 10, sender.sent.Load())
	for _, id := range ids {
		assert.Equal(t, 1, sender.tags[id.String()], "task %s sent more than once", id)
		got := store.get(id)
		assert.Equal(t, StatusCompleted, got.Status)
		assert.Equal(t, 1, got.Attempts)
	}
	assert.Len(t, people.activities, 10)
}

func TestContactWithoutEmailFailsPermanently(t *testing.T) {
	tenant := uuid.New()
	store := newMemTasks()
	people := newMemContacts()
	id := store.add(followUp(tenant, people.add(tenant, "")))

	p := NewProcessor(store, people, &countingSender{}, nil, logger.New("development"), 1, 5)
	res := p.RunDue(context.Background(), testNow, 10)

	assert.Equal(t, 1, res.Errors)
	got := store.get(id)
	assert.Equal(t, StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "recipient")
}

func TestSendFailureIsRetriedUntilMaxAttempts(t *testing.T) {
	tenant := uuid.New()
	store := newMemTasks()
	people := newMemContacts()
	id := store.add(followUp(tenant, people.add(tenant, "grace@example.com")))

	sender := &countingSender{err: errors.New("smtp: connection refused")}
	p := NewProcessor(store, people, sender, nil, logger.New("development"), 1, 2)

	p.RunDue(context.Background(), testNow, 10)
	got := store.get(id)
	assert.Equal(t, StatusPending, got.Status, "first transient failure releases the task")
	assert.Nil(t, got.ErrorMessage)

	p.RunDue(context.Background(), testNow, 10)
	got = store.get(id)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, 2, got.Attempts)
	require.NotNil(t, got.ErrorMessage)
}

func TestReminderNotifiesTenantAndSkipsFutureTasks(t *testing.T) {
	tenant := uuid.New()
	store := newMemTasks()
	people := newMemContacts()
	contactID := people.add(tenant, "")

	due := store.add(Task{TenantID: tenant, ContactID: contactID, Type: TypeFollowUpReminder, ScheduledFor: testNow})
	later := store.add(Task{TenantID: tenant, ContactID: contactID, Type: TypeFollowUpReminder, ScheduledFor: testNow.Add(time.Hour)})

	notifier := &memNotifier{}
	p := NewProcessor(store, people, &countingSender{}, notifier, logger.New("development"), 2, 5)
	res := p.RunDue(context.Background(), testNow, 10)

	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, StatusCompleted, store.get(due).Status)
	assert.Equal(t, StatusPending, store.get(later).Status)
	require.Len(t, notifier.notices, 1)
	assert.Equal(t, "Follow-up reminder: Grace Hopper", notifier.notices[0].Title)
}

func TestForeignTenantContactFailsTask(t *testing.T) {
	store := newMemTasks()
	people := newMemContacts()
	id := store.add(followUp(uuid.New(), people.add(uuid.New(), "grace@example.com")))

	p := NewProcessor(store, people, &countingSender{}, nil, logger.New("development"), 1, 5)
	p.RunDue(context.Background(), testNow, 10)

	assert.Equal(t, StatusFailed, store.get(id).Status)
}
