/**
 * @description
 * Cron scheduler setup for scheduled jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/HeartyTjan/bukafresh-store/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.BillingJobSchedule, s.jobs.RunDailyBilling); err != nil {
		s.logger.Error("failed to schedule daily billing job", "error", err)
	} else {
		s.logger.Info("scheduled daily billing job", "schedule", s.config.BillingJobSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.CounterResetJobSchedule, s.jobs.RunMonthlyCounterReset); err != nil {
		s.logger.Error("failed to schedule monthly counter reset job", "error", err)
	} else {
		s.logger.Info("scheduled monthly counter reset job", "schedule", s.config.CounterResetJobSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
