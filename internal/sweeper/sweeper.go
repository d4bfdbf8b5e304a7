// Package sweeper periodically removes expired API keys.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper deletes expired keys and reports how many were removed.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Scheduler runs a Sweeper on a cron schedule.
// Overlapping runs are skipped.
type Scheduler struct {
	sweeper  Sweeper
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewScheduler creates a new sweep scheduler.
// schedule accepts standard 5-field cron syntax and descriptors such as "@every 1m".
// timeout bounds each sweep; zero means no bound beyond the Start context.
func NewScheduler(sweeper Sweeper, schedule string, timeout time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sweeper")
	return &Scheduler{
		sweeper:  sweeper,
		schedule: schedule,
		timeout:  timeout,
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DiscardLogger),
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		logger: logger,
	}
}

// Start schedules sweeps until ctx is cancelled or Stop is called.
// An empty schedule disables the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if s.schedule == "" {
		s.logger.Info("sweep schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("sweep scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce executes a single sweep and returns the number of removed keys.
// Errors are logged.
func (s *Scheduler) RunOnce(ctx context.Context) int64 {
	if ctx.Err() != nil {
		return 0
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	removed, err := s.sweeper.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("scheduled sweep failed", "error", err)
		return 0
	}

	if removed > 0 {
		s.logger.Info("scheduled sweep completed", "removed", removed)
	} else {
		s.logger.Debug("scheduled sweep completed, nothing to remove")
	}
	return removed
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("sweep scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled sweep, or nil when not scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
