/**
 * @description
 * Cron scheduler for the nightly payment run and the hourly stuck-charge
 * reclaim. External schedulers can also trigger runs over HTTP; both paths
 * share the same orchestrator and stay safe under overlap through the
 * store's atomic claims.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	logger  *slog.Logger

	runSchedule     string
	reclaimSchedule string
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(service *Service, logger *slog.Logger, runSchedule, reclaimSchedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:            c,
		service:         service,
		logger:          logger,
		runSchedule:     runSchedule,
		reclaimSchedule: reclaimSchedule,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.runSchedule, s.runPaymentProcessing); err != nil {
		s.logger.Error("failed to schedule payment processing job", "error", err)
	} else {
		s.logger.Info("scheduled payment processing job", "schedule", s.runSchedule)
	}

	if _, err := s.cron.AddFunc(s.reclaimSchedule, s.reclaimStuckCharges); err != nil {
		s.logger.Error("failed to schedule stuck charge reclaim job", "error", err)
	} else {
		s.logger.Info("scheduled stuck charge reclaim job", "schedule", s.reclaimSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runPaymentProcessing() {
	result := s.service.RunScheduledPaymentProcessing(context.Background())
	if !result.Success {
		s.logger.Error("scheduled payment run completed with errors", "run_id", result.RunID, "errors", result.Errors)
	}
}

func (s *Scheduler) reclaimStuckCharges() {
	count, err := s.service.ReclaimStuckCharges(context.Background(), time.Now().UTC())
	if err != nil {
		s.logger.Error("stuck charge reclaim job failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Warn("reclaim job reset stuck charges", "count", count)
	}
}
