package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/siemhub/orchestrator/internal/domain"
	"github.com/siemhub/orchestrator/internal/logger"
	"github.com/siemhub/orchestrator/internal/repository"
)

// SchedulerConfig tunes the polling scheduler.
type SchedulerConfig struct {
	TickInterval time.Duration
	Workers      int
	QueueSize    int
}

// Scheduler polls enabled tasks on a fixed tick and dispatches the ones whose
// cron schedule has come due since their persisted watermark. Dispatch goes
// through a bounded worker pool; the single-flight lease in the sync service
// keeps concurrent fires of the same task down to one run.
type Scheduler struct {
	tasks  *repository.TaskRepository
	sync   *SyncService
	logger *logger.Logger
	cfg    SchedulerConfig

	parser cron.Parser
	now    func() time.Time

	queue chan string
	wg    sync.WaitGroup
}

func NewScheduler(tasks *repository.TaskRepository, syncSvc *SyncService, log *logger.Logger, cfg SchedulerConfig) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Scheduler{
		tasks:  tasks,
		sync:   syncSvc,
		logger: log,
		cfg:    cfg,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		now:    time.Now,
		queue:  make(chan string, cfg.QueueSize),
	}
}

// ValidateSchedule checks a cron expression with the scheduler's parser.
func (s *Scheduler) ValidateSchedule(expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := s.parser.Parse(expr); err != nil {
		return domain.Validationf("invalid cron expression %q: %v", expr, err)
	}
	return nil
}

// Start runs the scheduler until ctx is cancelled. It blocks.
func (s *Scheduler) Start(ctx context.Context) {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	s.logger.WithFields(logger.Fields{
		"tick":    s.cfg.TickInterval.String(),
		"workers": s.cfg.Workers,
	}).Info("Scheduler started")

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(s.queue)
			s.wg.Wait()
			s.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				// Tick failures are transient; the next tick retries.
				s.logger.WithError(err).Error("Scheduler tick failed")
			}
		}
	}
}

// Tick evaluates all enabled tasks once and enqueues the due ones.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now().UTC()
	tasks, err := s.tasks.ListEnabled(ctx)
	if err != nil {
		return err
	}

	for i := range tasks {
		task := &tasks[i]
		if task.Schedule == "" {
			continue
		}
		due, err := s.evaluate(ctx, task, now)
		if err != nil {
			s.logger.WithError(err).WithField("task", task.Name).Warn("Skipping task with bad schedule")
			continue
		}
		if !due {
			continue
		}
		if err := s.tasks.UpdateLastEvaluatedAt(ctx, task.ID, now); err != nil {
			s.logger.WithError(err).WithField("task", task.Name).Error("Failed to advance schedule watermark")
			continue
		}
		s.dispatch(task)
	}
	return nil
}

// evaluate reports whether the task's schedule has a fire time in
// (watermark, now]. A task never evaluated before anchors its watermark at
// now instead of firing retroactively.
func (s *Scheduler) evaluate(ctx context.Context, task *domain.Task, now time.Time) (bool, error) {
	sched, err := s.parser.Parse(task.Schedule)
	if err != nil {
		return false, err
	}
	if task.LastEvaluatedAt == nil {
		return false, s.tasks.UpdateLastEvaluatedAt(ctx, task.ID, now)
	}
	next := sched.Next(*task.LastEvaluatedAt)
	return !next.After(now), nil
}

func (s *Scheduler) dispatch(task *domain.Task) {
	select {
	case s.queue <- task.ID:
	default:
		// Queue full; the watermark already advanced, the next due fire
		// will be picked up by a later tick.
		s.logger.WithField("task", task.Name).Warn("Dispatch queue full, skipping fire")
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for taskID := range s.queue {
		run, err := s.sync.Run(ctx, taskID)
		switch {
		case errors.Is(err, domain.ErrTaskAlreadyRunning):
			s.logger.WithField(logger.FieldTaskID, taskID).Debug("Skipping fire, task already running")
		case err != nil:
			s.logger.WithError(err).WithField(logger.FieldTaskID, taskID).Error("Scheduled run failed to start")
		default:
			s.logger.WithFields(logger.Fields{
				logger.FieldTaskID: taskID,
				logger.FieldRunID:  run.ID,
				logger.FieldStatus: string(run.Status),
				logger.FieldRows:   run.RowCount,
			}).Info("Scheduled run completed")
		}
	}
}
