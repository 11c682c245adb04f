// Package automation runs the periodic lifecycle passes: follow-up tasks,
// drip sequences, withering detection and breakup sequences.
package automation

import (
	"context"
	"time"

	"crm_engine_backend/internal/sequences"
	"crm_engine_backend/internal/shared/batch"
	"crm_engine_backend/platform/config"
	"crm_engine_backend/platform/logger"
	"crm_engine_backend/platform/metrics"

	"golang.org/x/sync/errgroup"
)

const (
	PassFollowUps = "followUps"
	PassSequences = "sequences"
	PassWithering = "withering"
	PassBreakups  = "breakups"
)

// Config is the explicit runner configuration.
type Config struct {
	Secret            string
	FollowUpPageSize  int
	SequencePageSize  int
	WitheringPageSize int
	BreakupPageSize   int
	ThresholdDays     int
	Workers           int
	ConcurrentPasses  bool
	MaxAttempts       int
}

// ConfigFrom copies the automation settings out of the application config.
func ConfigFrom(cfg config.AutomationConfig) Config {
	return Config{
		Secret:            cfg.GetAutomationSecret(),
		FollowUpPageSize:  cfg.GetFollowUpPageSize(),
		SequencePageSize:  cfg.GetSequencePageSize(),
		WitheringPageSize: cfg.GetWitheringPageSize(),
		BreakupPageSize:   cfg.GetBreakupPageSize(),
		ThresholdDays:     cfg.GetWitheringThresholdDays(),
		Workers:           cfg.GetAutomationWorkers(),
		ConcurrentPasses:  cfg.GetAutomationConcurrentPasses(),
		MaxAttempts:       cfg.GetTaskMaxAttempts(),
	}
}

// FollowUpPass processes due scheduled tasks.
type FollowUpPass interface {
	RunDue(ctx context.Context, now time.Time, limit int) batch.Result
}

// SequencePass advances due enrollments of one sequence kind.
type SequencePass interface {
	RunDue(ctx context.Context, kind sequences.Kind, now time.Time, limit int) batch.Result
}

// WitheringPass flips stale contacts.
type WitheringPass interface {
	SweepDue(ctx context.Context, now time.Time, limit int) batch.Result
}

// Summary is the per-pass outcome of one run.
type Summary struct {
	FollowUps batch.Result `json:"followUps"`
	Sequences batch.Result `json:"sequences"`
	Withering batch.Result `json:"withering"`
	Breakups  batch.Result `json:"breakups"`
}

// Total sums every pass.
func (s Summary) Total() batch.Result {
	var total batch.Result
	total.Add(s.FollowUps)
	total.Add(s.Sequences)
	total.Add(s.Withering)
	total.Add(s.Breakups)
	return total
}

type Runner struct {
	cfg       Config
	followUps FollowUpPass
	sequences SequencePass
	withering WitheringPass
	log       *logger.Logger
}

func NewRunner(cfg Config, followUps FollowUpPass, seqs SequencePass, withering WitheringPass, log *logger.Logger) *Runner {
	return &Runner{
		cfg:       cfg,
		followUps: followUps,
		sequences: seqs,
		withering: withering,
		log:       log,
	}
}

// Config returns the runner configuration.
func (r *Runner) Config() Config { return r.cfg }

// Run executes all four passes once. Item failures are counted in the summary;
// Run itself never fails.
func (r *Runner) Run(ctx context.Context, now time.Time) Summary {
	start := time.Now()
	var s Summary

	passes := []struct {
		name string
		out  *batch.Result
		fn   func(context.Context) batch.Result
	}{
		{PassFollowUps, &s.FollowUps, func(ctx context.Context) batch.Result {
			return r.followUps.RunDue(ctx, now, r.cfg.FollowUpPageSize)
		}},
		{PassSequences, &s.Sequences, func(ctx context.Context) batch.Result {
			return r.sequences.RunDue(ctx, sequences.KindDrip, now, r.cfg.SequencePageSize)
		}},
		{PassWithering, &s.Withering, func(ctx context.Context) batch.Result {
			return r.withering.SweepDue(ctx, now, r.cfg.WitheringPageSize)
		}},
		{PassBreakups, &s.Breakups, func(ctx context.Context) batch.Result {
			return r.sequences.RunDue(ctx, sequences.KindBreakup, now, r.cfg.BreakupPageSize)
		}},
	}

	g := new(errgroup.Group)
	if !r.cfg.ConcurrentPasses {
		g.SetLimit(1)
	}
	for _, p := range passes {
		g.Go(func() error {
			passStart := time.Now()
			*p.out = p.fn(ctx)
			metrics.RecordPass(p.name, p.out.Processed, p.out.Skipped, p.out.Errors)
			r.log.AutomationPass(p.name, p.out.Processed, p.out.Skipped, p.out.Errors, time.Since(passStart).Milliseconds())
			return nil
		})
	}
	_ = g.Wait()

	metrics.ObserveRun(time.Since(start))
	return s
}
