package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crm_engine_backend/internal/tasks"
	"crm_engine_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container test skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("crm"),
		postgres.WithUsername("crm"),
		postgres.WithPassword("crm"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.RunMigrations(ctx, pool))
	return pool
}

func TestRepositoryClaimIsExclusive(t *testing.T) {
	pool := newTestPool(t)
	repo := New(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	tenant := uuid.New()

	ids := make([]uuid.UUID, 10)
	for i := range ids {
		task, err := repo.Create(ctx, CreateParams{
			TenantID:     tenant,
			ContactID:    uuid.New(),
			Type:         tasks.TypeFollowUpEmail,
			Payload:      tasks.FollowUpPayload{Subject: "Hi", Body: "Checking in"},
			ScheduledFor: now.Add(-time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, tasks.StatusPending, task.Status)
		ids[i] = task.ID
	}

	due, err := repo.ListDue(ctx, now, 100)
	require.NoError(t, err)
	assert.Len(t, due, 10)

	var wins atomic.Int64
	var wg sync.WaitGroup
	for _, id := range ids {
		for range 2 {
			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				ok, err := repo.Claim(ctx, id, now)
				if assert.NoError(t, err) && ok {
					wins.Add(1)
				}
			}(id)
		}
	}
	wg.Wait()
	assert.EqualValues(t, 10, wins.Load())

	for _, id := range ids {
		task, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, tasks.StatusProcessing, task.Status)
		assert.Equal(t, 1, task.Attempts)
	}

	due, err = repo.ListDue(ctx, now, 100)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestRepositoryLifecycleTransitions(t *testing.T) {
	pool := newTestPool(t)
	repo := New(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	create := func(at time.Time) uuid.UUID {
		task, err := repo.Create(ctx, CreateParams{
			TenantID:     uuid.New(),
			ContactID:    uuid.New(),
			Type:         tasks.TypeFollowUpReminder,
			Payload:      tasks.FollowUpPayload{Note: "call back"},
			ScheduledFor: at,
		})
		require.NoError(t, err)
		return task.ID
	}

	future := create(now.Add(time.Hour))
	ok, err := repo.Claim(ctx, future, now)
	require.NoError(t, err)
	assert.False(t, ok, "future task must not be claimable")

	done := create(now.Add(-time.Minute))
	ok, err = repo.Claim(ctx, done, now)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.Complete(ctx, done, now))
	task, err := repo.Get(ctx, done)
	require.NoError(t, err)
	assert.Equal(t, tasks.StatusCompleted, task.Status)

	failed := create(now.Add(-time.Minute))
	ok, err = repo.Claim(ctx, failed, now)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.Fail(ctx, failed, "contact has no email", now))
	task, err = repo.Get(ctx, failed)
	require.NoError(t, err)
	assert.Equal(t, tasks.StatusFailed, task.Status)
	require.NotNil(t, task.ErrorMessage)
	assert.Equal(t, "contact has no email", *task.ErrorMessage)

	stuck := create(now.Add(-time.Minute))
	ok, err = repo.Claim(ctx, stuck, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "claim time before schedule must not win")
	ok, err = repo.Claim(ctx, stuck, now)
	require.NoError(t, err)
	require.True(t, ok)

	reclaimed, err := repo.ReclaimAbandoned(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 0, reclaimed)

	reclaimed, err = repo.ReclaimAbandoned(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, reclaimed)
	task, err = repo.Get(ctx, stuck)
	require.NoError(t, err)
	assert.Equal(t, tasks.StatusPending, task.Status)

	_, err = repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
