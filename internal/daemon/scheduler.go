package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"git.home.luguber.info/inful/taxosync/internal/logfields"
)

// Scheduler wraps gocron scheduler for managing periodic refreshes.
type Scheduler struct {
	scheduler gocron.Scheduler
}

// NewScheduler creates a new scheduler instance.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start(_ context.Context) {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop(_ context.Context) error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// ScheduleCron schedules fn on a five-field cron expression and returns the
// job ID. A run still in progress when the next tick fires is not overlapped.
func (s *Scheduler) ScheduleCron(name, expr string, fn func()) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create cron job %s: %w", name, err)
	}
	slog.Info("Scheduled job", logfields.ScheduleID(job.ID().String()), slog.String("name", name), slog.String("cron", expr))
	return job.ID().String(), nil
}

// ScheduleEvery schedules fn at a fixed interval.
func (s *Scheduler) ScheduleEvery(name string, interval time.Duration, fn func()) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("interval must be positive, got %s", interval)
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create interval job %s: %w", name, err)
	}
	return job.ID().String(), nil
}

// RescheduleCron replaces the cron expression of an existing job.
func (s *Scheduler) RescheduleCron(id, name, expr string, fn func()) error {
	jobID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid job id %q: %w", id, err)
	}
	if _, err := s.scheduler.Update(jobID,
		gocron.CronJob(expr, false),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return fmt.Errorf("failed to reschedule job %s: %w", name, err)
	}
	slog.Info("Rescheduled job", logfields.ScheduleID(id), slog.String("cron", expr))
	return nil
}

// NextRun returns the next scheduled run of a job.
func (s *Scheduler) NextRun(id string) (time.Time, error) {
	jobID, err := uuid.Parse(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid job id %q: %w", id, err)
	}
	for _, j := range s.scheduler.Jobs() {
		if j.ID() == jobID {
			return j.NextRun()
		}
	}
	return time.Time{}, fmt.Errorf("job %s not found", id)
}

// Remove deletes a job.
func (s *Scheduler) Remove(id string) error {
	jobID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid job id %q: %w", id, err)
	}
	if err := s.scheduler.RemoveJob(jobID); err != nil {
		return fmt.Errorf("failed to remove job %s: %w", id, err)
	}
	slog.Info("Removed job", logfields.ScheduleID(id))
	return nil
}
