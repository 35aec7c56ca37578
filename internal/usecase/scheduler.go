package usecase

import (
	"context"
	"log/slog"
	"time"

	"TrackPublisher/internal/domain"
	"TrackPublisher/internal/ports"
)

// Scheduler wires the cron-like driver with the cycle pipeline.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger
	onResult func(domain.CycleResult)
}

// NewScheduler returns a helper to start/stop recurring cycles. onResult may be nil.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger, onResult func(domain.CycleResult)) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, logger: logger, onResult: onResult}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		s.logger.Debug("scheduled cycle triggered", "at", trigger)
		result := s.pipeline.RunCycle(ctx)
		if result.Status == domain.CycleFatal {
			s.logger.Error("scheduled cycle failed", "cycle_id", result.CycleID, "error", result.Err)
		}
		if s.onResult != nil {
			s.onResult(result)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
