// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/scuttle/internal/jobqueue"
	"github.com/tomtom215/scuttle/internal/logging"
)

// JobQueue is the part of *jobqueue.Queue the service drives.
type JobQueue interface {
	Start() bool
	WaitStop(ctx context.Context) error
	Stop() bool
	Done() <-chan struct{}
	Len() int
}

var _ JobQueue = (*jobqueue.Queue)(nil)

// JobQueueService owns the worker of a job queue. A queue cannot be
// restarted, so the service asks suture not to restart it once the worker
// has exited.
type JobQueueService struct {
	queue        JobQueue
	drainTimeout time.Duration
	logger       zerolog.Logger
}

// NewJobQueueService wraps q. drainTimeout bounds the shutdown drain and
// defaults to 30s.
func NewJobQueueService(q JobQueue, drainTimeout time.Duration) *JobQueueService {
	if drainTimeout <= 0 {
		drainTimeout = 30 * time.Second
	}
	return &JobQueueService{
		queue:        q,
		drainTimeout: drainTimeout,
		logger:       logging.WithComponent("jobqueue-service"),
	}
}

// Serve implements suture.Service.
func (s *JobQueueService) Serve(ctx context.Context) error {
	s.queue.Start()

	select {
	case <-s.queue.Done():
		return suture.ErrDoNotRestart

	case <-ctx.Done():
		drainCtx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
		defer cancel()

		s.logger.Info().Int("pending", s.queue.Len()).Dur("timeout", s.drainTimeout).Msg("Draining job queue")
		if err := s.queue.WaitStop(drainCtx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				s.logger.Warn().Int("abandoned", s.queue.Len()).Msg("Job queue drain timed out, cancelling remaining jobs")
				s.queue.Stop()
			} else {
				s.logger.Error().Err(err).Msg("Job queue drain failed")
			}
		}
		return suture.ErrDoNotRestart
	}
}

func (s *JobQueueService) String() string {
	return "job-queue"
}
