// Package scheduler periodically executes pending tasks that are due.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/browserflow/pkg/models"
	"github.com/dukex/browserflow/pkg/orchestrator"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

const DefaultInterval = 30 * time.Second

var ErrInvalidInterval = errors.New("scheduler interval must be at least one second")

type TaskLister interface {
	TasksByStatus(ctx context.Context, status models.TaskStatus) ([]*models.Task, error)
}

type Executor interface {
	Execute(ctx context.Context, taskID string) (*orchestrator.Report, error)
}

type Scheduler struct {
	tasks    TaskLister
	executor Executor
	clock    clockwork.Clock
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

type Option func(*Scheduler)

func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = interval
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

func New(tasks TaskLister, executor Executor, logger *slog.Logger, opts ...Option) *Scheduler {
	scheduler := &Scheduler{
		tasks:    tasks,
		executor: executor,
		clock:    clockwork.NewRealClock(),
		interval: DefaultInterval,
		logger:   logger.With("module", "scheduler"),
	}

	for _, opt := range opts {
		opt(scheduler)
	}

	return scheduler
}

// Start registers the scan job and starts the cron runner. Overlapping scans
// are skipped and a panicking scan is recovered.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval < time.Second {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, s.interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	logger := cronLogger{logger: s.logger}

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(logger),
		cron.Recover(logger),
	))

	id, err := s.cron.AddFunc("@every "+s.interval.String(), func() {
		if _, err := s.Tick(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Failed to scan due tasks", "error", err)
		}
	})
	if err != nil {
		s.cron = nil

		return fmt.Errorf("failed to add scan job: %w", err)
	}

	s.logger.InfoContext(ctx, "Starting scheduler", "interval", s.interval, "entry_id", id)
	s.cron.Start()

	return nil
}

// Stop stops the cron runner and waits for a running scan to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	runner := s.cron
	s.cron = nil
	s.mu.Unlock()

	if runner == nil {
		return nil
	}

	s.logger.InfoContext(ctx, "Stopping scheduler")

	select {
	case <-runner.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick executes every pending task that is due, one at a time, and returns
// how many were executed. A failing task does not stop the scan.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	pending, err := s.tasks.TasksByStatus(ctx, models.TaskStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending tasks: %w", err)
	}

	now := s.clock.Now()
	executed := 0

	for _, task := range pending {
		if ctx.Err() != nil {
			return executed, ctx.Err()
		}

		if !task.IsDue(now) {
			continue
		}

		executed++

		logger := s.logger.With("task_id", task.ID)
		logger.InfoContext(ctx, "Executing due task")

		report, err := s.executor.Execute(ctx, task.ID)
		if err != nil {
			if orchestrator.IsValidationError(err) {
				logger.WarnContext(ctx, "Due task is not runnable", "error", err)
			} else {
				logger.ErrorContext(ctx, "Due task failed", "error", err)
			}

			continue
		}

		logger.InfoContext(ctx, "Due task finished", "dispatches", len(report.Results), "duration", report.Duration)
	}

	return executed, nil
}

// cronLogger routes cron runner messages to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
