package scheduler

import (
	"context"
	"time"

	"crm_engine_backend/platform/logger"
)

const (
	defaultReclaimInterval   = 5 * time.Minute
	defaultProcessingTimeout = 15 * time.Minute
)

// AbandonedTaskStore returns stuck processing tasks to pending.
type AbandonedTaskStore interface {
	ReclaimAbandoned(ctx context.Context, olderThan time.Time) (int64, error)
}

// Reclaimer periodically frees scheduled tasks whose worker died mid-way.
type Reclaimer struct {
	repo     AbandonedTaskStore
	log      *logger.Logger
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
}

func NewReclaimer(repo AbandonedTaskStore, log *logger.Logger, interval, timeout time.Duration) *Reclaimer {
	if interval <= 0 {
		interval = defaultReclaimInterval
	}
	if timeout <= 0 {
		timeout = defaultProcessingTimeout
	}

	return &Reclaimer{
		repo:     repo,
		log:      log,
		interval: interval,
		timeout:  timeout,
		now:      time.Now,
	}
}

func (r *Reclaimer) Run(ctx context.Context) {
	if r == nil || r.repo == nil {
		return
	}

	r.reclaim(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reclaim(ctx)
		}
	}
}

func (r *Reclaimer) reclaim(ctx context.Context) int64 {
	reclaimed, err := r.repo.ReclaimAbandoned(ctx, r.now().Add(-r.timeout))
	if err != nil {
		r.log.Warn("abandoned task reclaim failed", "error", err)
		return 0
	}

	if reclaimed > 0 {
		r.log.Info("reclaimed abandoned scheduled tasks", "reclaimed", reclaimed)
	}
	return reclaimed
}
