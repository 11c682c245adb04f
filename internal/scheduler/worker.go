package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm_engine_backend/internal/automation"
	"crm_engine_backend/internal/merge"
	"crm_engine_backend/platform/apperr"
	"crm_engine_backend/platform/config"
	"crm_engine_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Runner executes one automation run.
type Runner interface {
	Run(ctx context.Context, now time.Time) automation.Summary
}

// SourceCleaner retries the delete step of a merge.
type SourceCleaner interface {
	CleanupSources(ctx context.Context, tenantID, targetID uuid.UUID, sourceIDs []uuid.UUID) (merge.CleanupResult, error)
}

// Locker hands out the cross-process run lease.
type Locker interface {
	Acquire(ctx context.Context) (func(context.Context) error, error)
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	runner  Runner
	cleaner SourceCleaner
	lock    Locker
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, runner Runner, cleaner SourceCleaner, lock Locker, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := newWorker(runner, cleaner, lock, log)
	w.server = server
	return w, nil
}

func newWorker(runner Runner, cleaner SourceCleaner, lock Locker, log *logger.Logger) *Worker {
	mux := asynq.NewServeMux()
	w := &Worker{
		mux:     mux,
		runner:  runner,
		cleaner: cleaner,
		lock:    lock,
		log:     log,
	}

	mux.HandleFunc(TaskAutomationRun, w.handleAutomationRun)
	mux.HandleFunc(TaskMergeCleanup, w.handleMergeCleanup)
	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleAutomationRun(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseAutomationRunPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if w.lock != nil {
		release, err := w.lock.Acquire(ctx)
		if errors.Is(err, ErrLockHeld) {
			w.log.Info("automation run skipped, another run holds the lock", "trigger", payload.Trigger)
			return nil
		}
		if err != nil {
			return err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				w.log.Warn("automation run lock release failed", "error", err)
			}
		}()
	}

	summary := w.runner.Run(ctx, time.Now().UTC())
	total := summary.Total()
	w.log.Info("automation run finished",
		"trigger", payload.Trigger,
		"processed", total.Processed,
		"skipped", total.Skipped,
		"errors", total.Errors,
	)
	return nil
}

func (w *Worker) handleMergeCleanup(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseMergeCleanupPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return fmt.Errorf("tenant id: %v: %w", err, asynq.SkipRetry)
	}
	targetID, err := uuid.Parse(payload.TargetContactID)
	if err != nil {
		return fmt.Errorf("target id: %v: %w", err, asynq.SkipRetry)
	}
	sourceIDs := make([]uuid.UUID, 0, len(payload.SourceIDs))
	for _, raw := range payload.SourceIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("source id: %v: %w", err, asynq.SkipRetry)
		}
		sourceIDs = append(sourceIDs, id)
	}

	result, err := w.cleaner.CleanupSources(ctx, tenantID, targetID, sourceIDs)
	if err != nil {
		switch apperr.GetKind(err) {
		case apperr.KindValidation, apperr.KindNotFound, apperr.KindCrossTenant, apperr.KindUnauthorized:
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	w.log.Info("merge cleanup finished", "targetContactId", targetID, "deleted", result.Deleted, "skipped", len(result.Skipped))
	return nil
}
