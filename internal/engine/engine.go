// Package engine is the shared composition root for the API, scheduler and
// operator CLI processes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm_engine_backend/internal/automation"
	contactrepo "crm_engine_backend/internal/contacts/repository"
	"crm_engine_backend/internal/email"
	"crm_engine_backend/internal/events"
	"crm_engine_backend/internal/intake"
	"crm_engine_backend/internal/lifecycle"
	"crm_engine_backend/internal/merge"
	"crm_engine_backend/internal/notification"
	"crm_engine_backend/internal/sequences"
	sequencerepo "crm_engine_backend/internal/sequences/repository"
	"crm_engine_backend/internal/tasks"
	taskrepo "crm_engine_backend/internal/tasks/repository"
	"crm_engine_backend/platform/config"
	"crm_engine_backend/platform/db"
	"crm_engine_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Engine holds every domain service built on one pool and one event bus.
type Engine struct {
	Contacts      *contactrepo.Repository
	Tasks         *taskrepo.Repository
	Notifications *notification.Module
	Merge         *merge.Service
	Sequences     *sequences.Engine
	FollowUps     *tasks.Processor
	Lifecycle     *lifecycle.Monitor
	Intake        *intake.Service
	Runner        *automation.Runner
}

// Build wires the services. The notification module is subscribed to bus.
func Build(pool *pgxpool.Pool, cfg config.AutomationConfig, sender email.Sender, bus events.Bus, log *logger.Logger) *Engine {
	runnerCfg := automation.ConfigFrom(cfg)

	contacts := contactrepo.New(pool)
	taskStore := taskrepo.New(pool)

	notifications := notification.New(pool, log)
	notifications.RegisterHandlers(bus)
	notifier := notifications.InAppService()

	seqEngine := sequences.NewEngine(sequencerepo.New(pool), contacts, sender, bus, log, runnerCfg.Workers)
	followUps := tasks.NewProcessor(taskStore, contacts, sender, notifier, log, runnerCfg.Workers, runnerCfg.MaxAttempts)
	monitor := lifecycle.NewMonitor(contacts, notifier, log, runnerCfg.Workers, runnerCfg.ThresholdDays)

	return &Engine{
		Contacts:      contacts,
		Tasks:         taskStore,
		Notifications: notifications,
		Merge:         merge.New(contacts, bus, log),
		Sequences:     seqEngine,
		FollowUps:     followUps,
		Lifecycle:     monitor,
		Intake:        intake.New(contacts, bus, log),
		Runner:        automation.NewRunner(runnerCfg, followUps, seqEngine, monitor, log),
	}
}

// ConnectDatabase opens the pool with retries and optionally applies the
// embedded migrations.
func ConnectDatabase(ctx context.Context, cfg config.DatabaseConfig, migrate bool, log *logger.Logger) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	if err := WithRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		return nil, err
	}
	log.Info("database connection established")

	if !migrate {
		return pool, nil
	}
	if err := WithRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool)
	}); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info("database migrations complete")
	return pool, nil
}

// WithRetry calls fn until it succeeds, backing off quadratically.
func WithRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
