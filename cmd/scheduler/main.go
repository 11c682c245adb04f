package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"crm_engine_backend/internal/email"
	"crm_engine_backend/internal/engine"
	"crm_engine_backend/internal/events"
	"crm_engine_backend/internal/scheduler"
	"crm_engine_backend/platform/config"
	"crm_engine_backend/platform/logger"
)

const automationLockKey = "crm:automation:lock"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "queue", cfg.GetAsynqQueueName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := engine.ConnectDatabase(ctx, cfg, false, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Close()

	sender, err := email.NewSender(cfg)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}

	eng := engine.Build(pool, cfg, sender, eventBus, log)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()
	eng.Merge.SetCleanupScheduler(client)

	rdb, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	defer func() { _ = rdb.Close() }()
	lock := scheduler.NewRunLock(rdb, automationLockKey, cfg.GetTaskProcessingTimeout())

	periodic, err := scheduler.NewPeriodic(cfg, log)
	if err != nil {
		log.Error("failed to initialize periodic scheduler", "error", err)
		panic("failed to initialize periodic scheduler: " + err.Error())
	}

	worker, err := scheduler.NewWorker(cfg, eng.Runner, eng.Merge, lock, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	reclaimer := scheduler.NewReclaimer(eng.Tasks, log, cfg.GetReclaimInterval(), cfg.GetTaskProcessingTimeout())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		reclaimer.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		periodic.Run(ctx)
	}()

	worker.Run(ctx)
	stop()
	wg.Wait()
	log.Info("scheduler stopped")
}
