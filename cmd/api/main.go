package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm_engine_backend/internal/automation"
	"crm_engine_backend/internal/email"
	"crm_engine_backend/internal/engine"
	"crm_engine_backend/internal/events"
	apphttp "crm_engine_backend/internal/http"
	"crm_engine_backend/internal/http/router"
	"crm_engine_backend/internal/intake"
	"crm_engine_backend/internal/merge"
	"crm_engine_backend/internal/scheduler"
	"crm_engine_backend/internal/sequences"
	"crm_engine_backend/platform/config"
	"crm_engine_backend/platform/db"
	"crm_engine_backend/platform/logger"
	"crm_engine_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	pool, err := engine.ConnectDatabase(ctx, cfg, cfg.MigrationsOnRun, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Close()

	sender, err := email.NewSender(cfg)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}

	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	eng := engine.Build(pool, cfg, sender, eventBus, log)

	if closeScheduler := initCleanupScheduler(cfg, eng.Merge, log); closeScheduler != nil {
		defer closeScheduler()
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewHealthChecker(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			merge.NewModule(eng.Merge, val),
			intake.NewModule(eng.Intake, val),
			sequences.NewModule(eng.Sequences, val),
			automation.NewModule(eng.Runner),
			eng.Notifications,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initCleanupScheduler hands merge a durable cleanup queue when Redis is
// configured. Without it, failed source deletions are only reported.
func initCleanupScheduler(cfg config.SchedulerConfig, svc *merge.Service, log *logger.Logger) func() {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; merge cleanup retries disabled")
		return nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		return nil
	}
	svc.SetCleanupScheduler(client)

	return func() {
		_ = client.Close()
	}
}
