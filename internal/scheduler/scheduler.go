package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ghostarr/ghostarr/internal/models"
)

// cronParser accepts standard five-field cron expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextRun computes the next trigger time of a cron expression after the
// given instant.
func NextRun(expr string, after time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(after), nil
}

// ValidateCron rejects expressions the scheduler cannot run.
func ValidateCron(expr string) error {
	_, err := cronParser.Parse(expr)
	return err
}

// ScheduleStore is the persistence surface the scheduler polls.
type ScheduleStore interface {
	ListDue(now time.Time) ([]*models.Schedule, error)
	MarkRun(id string, ranAt, nextRun time.Time) error
}

// GenerationStarter kicks off a newsletter run. Satisfied by
// generator.Service.
type GenerationStarter interface {
	StartGeneration(cfg models.GenerationConfig, scheduleID string) (*models.History, error)
}

// Scheduler polls for due schedules every minute and triggers their
// generations. Schedules store their next due time, so a missed tick
// (restart, downtime) fires on the next poll instead of being lost.
type Scheduler struct {
	schedules     ScheduleStore
	generator     GenerationStarter
	logger        *slog.Logger
	stopChan      chan struct{}
	checkInterval time.Duration
}

func NewScheduler(schedules ScheduleStore, generator GenerationStarter, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		schedules:     schedules,
		generator:     generator,
		logger:        logger.With("component", "scheduler"),
		stopChan:      make(chan struct{}),
		checkInterval: 1 * time.Minute,
	}
}

// Start begins the scheduler loop. Blocks until Stop or ctx cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting schedule poller", "check_interval", s.checkInterval)
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	s.checkAndRun(ctx)

	for {
		select {
		case <-ticker.C:
			s.checkAndRun(ctx)
		case <-s.stopChan:
			s.logger.Info("schedule poller stopped")
			return
		case <-ctx.Done():
			s.logger.Info("schedule poller stopping, context cancelled")
			return
		}
	}
}

// Stop stops the scheduler loop.
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

func (s *Scheduler) checkAndRun(ctx context.Context) {
	now := time.Now()

	due, err := s.schedules.ListDue(now)
	if err != nil {
		s.logger.Error("failed to list due schedules", "error", err)
		return
	}

	for _, schedule := range due {
		next, err := NextRun(schedule.CronExpr, now)
		if err != nil {
			s.logger.Error("schedule has invalid cron expression, disabling until edited",
				"schedule_id", schedule.ID,
				"name", schedule.Name,
				"cron_expr", schedule.CronExpr,
				"error", err)
			// Push next_run_at far out so a broken expression does not
			// retrigger every minute.
			if markErr := s.schedules.MarkRun(schedule.ID, now, now.AddDate(1, 0, 0)); markErr != nil {
				s.logger.Error("failed to park broken schedule", "schedule_id", schedule.ID, "error", markErr)
			}
			continue
		}

		// Advance the schedule before starting the run, so a slow or
		// failing generation cannot retrigger on the next tick.
		if err := s.schedules.MarkRun(schedule.ID, now, next); err != nil {
			s.logger.Error("failed to mark schedule run", "schedule_id", schedule.ID, "error", err)
			continue
		}

		h, err := s.generator.StartGeneration(schedule.Config, schedule.ID)
		if err != nil {
			s.logger.Error("failed to start scheduled generation",
				"schedule_id", schedule.ID,
				"name", schedule.Name,
				"error", err)
			continue
		}

		s.logger.Info("started scheduled generation",
			"schedule_id", schedule.ID,
			"name", schedule.Name,
			"generation_id", h.ID,
			"next_run_at", next.Format(time.RFC3339))
	}
}
