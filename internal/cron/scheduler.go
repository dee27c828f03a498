// Package cron runs configured maintenance jobs on 5-field cron schedules:
// pre-warming the stats summary and pruning old audit entries.
package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/basket/taskd/internal/config"
	"github.com/basket/taskd/internal/stats"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Actions supported in schedule config.
const (
	ActionRefreshStats = "refresh_stats"
	ActionPruneAudit   = "prune_audit"
)

// Refresher recomputes the stats summary. Satisfied by *stats.Engine.
type Refresher interface {
	Refresh(ctx context.Context) *stats.Summary
}

// Pruner removes audit entries older than the cutoff. Satisfied by *audit.Journal.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// job is a schedule with its next computed run time.
type job struct {
	name    string
	expr    string
	action  string
	nextRun time.Time
}

// Config holds the dependencies for the maintenance scheduler.
type Config struct {
	Schedules     []config.ScheduleConfig
	Refresher     Refresher
	Pruner        Pruner
	RetentionDays int
	Logger        *slog.Logger
	Interval      time.Duration // tick interval; defaults to 1 minute if zero
	Now           func() time.Time
}

// Scheduler periodically checks for due maintenance jobs and fires each one.
type Scheduler struct {
	jobs      []job
	refresher Refresher
	pruner    Pruner
	retention time.Duration
	logger    *slog.Logger
	interval  time.Duration
	now       func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler from the configured schedules. Schedules
// with unparseable cron expressions or unknown actions are skipped with a
// warning rather than failing startup.
func NewScheduler(cfg Config) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Scheduler{
		refresher: cfg.Refresher,
		pruner:    cfg.Pruner,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		logger:    logger,
		interval:  interval,
		now:       now,
	}

	start := now()
	for _, sc := range cfg.Schedules {
		if sc.Action != ActionRefreshStats && sc.Action != ActionPruneAudit {
			logger.Warn("cron: unknown action, skipping schedule",
				"schedule_name", sc.Name, "action", sc.Action)
			continue
		}
		next, err := NextRunTime(sc.CronExpr, start)
		if err != nil {
			logger.Warn("cron: invalid expression, skipping schedule",
				"schedule_name", sc.Name, "cron_expr", sc.CronExpr, "error", err)
			continue
		}
		s.jobs = append(s.jobs, job{name: sc.Name, expr: sc.CronExpr, action: sc.Action, nextRun: next})
	}
	return s
}

// JobCount returns the number of accepted schedules.
func (s *Scheduler) JobCount() int { return len(s.jobs) }

// Start begins the scheduler loop. It runs in a background goroutine
// and respects the provided context for shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("maintenance scheduler started", "jobs", len(s.jobs), "interval", s.interval)
}

// Stop cancels the scheduler loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("maintenance scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick fires every job whose next run time has passed and advances it.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	for i := range s.jobs {
		if s.jobs[i].nextRun.After(now) {
			continue
		}
		s.fire(ctx, &s.jobs[i], now)
	}
}

func (s *Scheduler) fire(ctx context.Context, j *job, now time.Time) {
	switch j.action {
	case ActionRefreshStats:
		if s.refresher != nil {
			s.refresher.Refresh(ctx)
			s.logger.Info("cron: stats summary refreshed", "schedule_name", j.name)
		}
	case ActionPruneAudit:
		if s.pruner != nil && s.retention > 0 {
			pruned, err := s.pruner.PruneBefore(ctx, now.Add(-s.retention))
			if err != nil {
				s.logger.Error("cron: audit prune failed", "schedule_name", j.name, "error", err)
			} else {
				s.logger.Info("cron: audit pruned", "schedule_name", j.name, "entries", pruned)
			}
		}
	}

	next, err := NextRunTime(j.expr, now)
	if err != nil {
		// Parsed at construction; should not happen.
		s.logger.Error("cron: failed to compute next run time",
			"schedule_name", j.name, "cron_expr", j.expr, "error", err)
		return
	}
	j.nextRun = next
}

// NextRunTime parses the cron expression and returns the next run time after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
