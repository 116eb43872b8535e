// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package services

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/casesync/internal/logging"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// SchedulerService runs a Job at a fixed interval.
//
// Job errors are logged and never returned: a failed scheduled pass is
// retried at the next tick rather than by restarting the service. Runs do
// not overlap; a tick that fires while a run is in progress is dropped.
type SchedulerService struct {
	name       string
	interval   time.Duration
	job        Job
	runOnStart bool
}

// NewSchedulerService creates a scheduler. runOnStart runs the job
// immediately instead of waiting for the first tick.
func NewSchedulerService(name string, interval time.Duration, runOnStart bool, job Job) *SchedulerService {
	return &SchedulerService{name: name, interval: interval, job: job, runOnStart: runOnStart}
}

// Serve implements suture.Service.
func (s *SchedulerService) Serve(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("scheduler interval must be positive")
	}
	logger := logging.WithComponent(s.name)
	logger.Info().Dur("interval", s.interval).Msg("Scheduler started")

	if s.runOnStart {
		s.run(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *SchedulerService) run(ctx context.Context) {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	start := time.Now()
	err := s.job(ctx)
	switch {
	case err == nil:
		logging.CtxInfo(ctx).Str("job", s.name).Dur("duration", time.Since(start)).Msg("Scheduled run finished")
	case ctx.Err() != nil:
		// Shutting down.
	default:
		logging.CtxErr(ctx, err).Str("job", s.name).Msg("Scheduled run failed")
	}
}

// String names the service in supervisor logs.
func (s *SchedulerService) String() string {
	return s.name
}
