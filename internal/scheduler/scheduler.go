// Package scheduler runs the ETL on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-co-op/gocron"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler triggers a job on a cron expression, one run at a time.
type Scheduler struct {
	scheduler *gocron.Scheduler
	expr      string
	job       Job
	logger    *slog.Logger
	cancel    context.CancelFunc
}

// New creates a scheduler in UTC. Five-field expressions are standard cron;
// six fields add a leading seconds field.
func New(expr string, job Job, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		expr:      strings.TrimSpace(expr),
		job:       job,
		logger:    logger,
	}
}

// Start registers the job and starts the scheduler in the background. Jobs
// receive a context derived from ctx that is cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	var sched *gocron.Scheduler
	if len(strings.Fields(s.expr)) == 6 {
		sched = s.scheduler.CronWithSeconds(s.expr)
	} else {
		sched = s.scheduler.Cron(s.expr)
	}
	if _, err := sched.Do(s.run, runCtx); err != nil {
		cancel()
		return fmt.Errorf("schedule %q: %w", s.expr, err)
	}

	s.scheduler.StartAsync()
	_, next := s.scheduler.NextRun()
	s.logger.Info("scheduler started", "cron", s.expr, "next_run", next)
	return nil
}

// Stop cancels in-flight jobs and stops the scheduler.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.scheduler.Stop()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	s.logger.Info("scheduled run starting")
	if err := s.job(ctx); err != nil {
		s.logger.Error("scheduled run failed", "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Info("scheduled run completed", "duration", time.Since(start))
}
