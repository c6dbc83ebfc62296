package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// ScheduleConfig holds the cron expressions of each job.
type ScheduleConfig struct {
	SlotCompletion     string
	SubscriptionExpiry string
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron      *cron.Cron
	jobs      *Jobs
	logger    *slog.Logger
	schedules ScheduleConfig
}

func NewScheduler(jobs *Jobs, logger *slog.Logger, schedules ScheduleConfig) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:      c,
		jobs:      jobs,
		logger:    logger,
		schedules: schedules,
	}
}

// Start registers the jobs and starts the cron scheduler. It returns the
// number of jobs registered.
func (s *Scheduler) Start() int {
	registered := 0
	register := func(name, schedule string, job func()) {
		if schedule == "" {
			s.logger.Info("job disabled", "job", name)
			return
		}
		if _, err := s.cron.AddFunc(schedule, job); err != nil {
			s.logger.Error("failed to schedule job", "job", name, "schedule", schedule, "error", err)
			return
		}
		registered++
		s.logger.Info("scheduled job", "job", name, "schedule", schedule)
	}

	register("slot_completion", s.schedules.SlotCompletion, s.jobs.CompletePastSlots)
	register("subscription_expiry", s.schedules.SubscriptionExpiry, s.jobs.ExpireSubscriptions)

	s.cron.Start()
	return registered
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
