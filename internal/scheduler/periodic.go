package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm_engine_backend/platform/config"
	"crm_engine_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic enqueues the automation run on the configured cron spec.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	spec := cfg.GetAutomationCronSpec()
	if spec == "" {
		spec = "@every 5m"
	}

	s := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Location: time.UTC,
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
				log.Warn("periodic automation enqueue failed", "error", err)
			}
		},
	})

	task, err := NewAutomationRunTask(AutomationRunPayload{Trigger: "cron"})
	if err != nil {
		return nil, err
	}
	entryID, err := s.Register(spec, task, automationRunOptions(queueName(cfg))...)
	if err != nil {
		return nil, fmt.Errorf("register automation cron %q: %w", spec, err)
	}
	log.Info("automation cron registered", "spec", spec, "entryId", entryID)

	return &Periodic{scheduler: s, log: log}, nil
}

func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}
	if err := p.scheduler.Start(); err != nil {
		p.log.Error("automation cron stopped", "error", err)
		return
	}
	<-ctx.Done()
	p.scheduler.Shutdown()
}
