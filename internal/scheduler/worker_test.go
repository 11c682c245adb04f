package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"crm_engine_backend/internal/automation"
	"crm_engine_backend/internal/merge"
	"crm_engine_backend/internal/shared/batch"
	"crm_engine_backend/platform/apperr"
	"crm_engine_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct{ runs int }

func (r *countingRunner) Run(context.Context, time.Time) automation.Summary {
	r.runs++
	return automation.Summary{FollowUps: batch.Result{Processed: 1}}
}

type recordingCleaner struct {
	tenant  uuid.UUID
	target  uuid.UUID
	sources []uuid.UUID
	err     error
}

func (c *recordingCleaner) CleanupSources(_ context.Context, tenantID, targetID uuid.UUID, sourceIDs []uuid.UUID) (merge.CleanupResult, error) {
	c.tenant, c.target, c.sources = tenantID, targetID, sourceIDs
	if c.err != nil {
		return merge.CleanupResult{}, c.err
	}
	return merge.CleanupResult{TargetContactID: targetID, Deleted: int64(len(sourceIDs))}, nil
}

func TestAutomationRunSkipsWhileLockHeld(t *testing.T) {
	_, rdb := newTestRedis(t)
	lock := NewRunLock(rdb, "crm:automation:lock", time.Minute)
	runner := &countingRunner{}
	w := newWorker(runner, &recordingCleaner{}, lock, logger.New("development"))

	task, err := NewAutomationRunTask(AutomationRunPayload{Trigger: "test"})
	require.NoError(t, err)

	require.NoError(t, w.handleAutomationRun(context.Background(), task))
	assert.Equal(t, 1, runner.runs)

	release, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, w.handleAutomationRun(context.Background(), task))
	assert.Equal(t, 1, runner.runs, "held lock means no second run")

	require.NoError(t, release(context.Background()))
	require.NoError(t, w.handleAutomationRun(context.Background(), task))
	assert.Equal(t, 2, runner.runs)
}

func TestMergeCleanupTaskCallsCleaner(t *testing.T) {
	cleaner := &recordingCleaner{}
	w := newWorker(&countingRunner{}, cleaner, nil, logger.New("development"))

	tenant, target, source := uuid.New(), uuid.New(), uuid.New()
	task, err := NewMergeCleanupTask(MergeCleanupPayload{
		TenantID:        tenant.String(),
		TargetContactID: target.String(),
		SourceIDs:       []string{source.String()},
	})
	require.NoError(t, err)

	require.NoError(t, w.handleMergeCleanup(context.Background(), task))
	assert.Equal(t, tenant, cleaner.tenant)
	assert.Equal(t, target, cleaner.target)
	assert.Equal(t, []uuid.UUID{source}, cleaner.sources)
}

func TestMergeCleanupRetryPolicy(t *testing.T) {
	payload, _ := json.Marshal(MergeCleanupPayload{
		TenantID:        uuid.NewString(),
		TargetContactID: uuid.NewString(),
		SourceIDs:       []string{uuid.NewString()},
	})
	task := asynq.NewTask(TaskMergeCleanup, payload)

	transient := &recordingCleaner{err: apperr.Transient("delete failed", errors.New("conn reset"))}
	err := newWorker(nil, transient, nil, logger.New("development")).handleMergeCleanup(context.Background(), task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))

	missing := &recordingCleaner{err: apperr.NotFound("target not found")}
	err = newWorker(nil, missing, nil, logger.New("development")).handleMergeCleanup(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	bad := asynq.NewTask(TaskMergeCleanup, []byte(`{"tenantId":"nope"}`))
	err = newWorker(nil, &recordingCleaner{}, nil, logger.New("development")).handleMergeCleanup(context.Background(), bad)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

type fakeAbandoned struct {
	cutoffs []time.Time
}

func (f *fakeAbandoned) ReclaimAbandoned(_ context.Context, olderThan time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, olderThan)
	return 2, nil
}

func TestReclaimerUsesProcessingTimeout(t *testing.T) {
	repo := &fakeAbandoned{}
	r := NewReclaimer(repo, logger.New("development"), time.Minute, 15*time.Minute)
	fixed := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	assert.EqualValues(t, 2, r.reclaim(context.Background()))
	require.Len(t, repo.cutoffs, 1)
	assert.Equal(t, fixed.Add(-15*time.Minute), repo.cutoffs[0])
}
