// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package jobqueue

import (
	"context"
	"time"
)

// Job is a unit of background work.
//
// The queue identifies jobs by interface equality when cancelling, so
// implementations should be pointer types.
type Job interface {
	// Execute runs the job on the queue's worker goroutine. ctx is
	// cancelled when the queue is stopped.
	//
	// A job that calls WaitStop on its own queue must pass ctx, or a
	// context derived from it, so the call is refused with
	// ErrWaitStopFromWorker. The guard cannot recognise the worker from
	// any other context, and WaitStop would then wait for the job that
	// is calling it forever.
	Execute(ctx context.Context) error

	// OnCancel is called exactly once when the job is removed from the
	// queue without having run.
	OnCancel()

	// Comment is a human readable description used in logs and listings.
	Comment() string
}

// FuncJob adapts a function to the Job interface.
type FuncJob struct {
	comment  string
	fn       func(ctx context.Context) error
	onCancel func()
}

// NewFunc returns a job that runs fn.
func NewFunc(comment string, fn func(ctx context.Context) error) *FuncJob {
	return &FuncJob{comment: comment, fn: fn}
}

// WithCancel sets the callback invoked when the job is cancelled.
func (j *FuncJob) WithCancel(fn func()) *FuncJob {
	j.onCancel = fn
	return j
}

func (j *FuncJob) Execute(ctx context.Context) error {
	if j.fn == nil {
		return nil
	}
	return j.fn(ctx)
}

func (j *FuncJob) OnCancel() {
	if j.onCancel != nil {
		j.onCancel()
	}
}

func (j *FuncJob) Comment() string { return j.comment }

// Scheduled is a snapshot of a queued job.
type Scheduled struct {
	Job    Job
	RunAt  time.Time
	Repeat time.Duration
}

// Delay returns how long until the job is due. Negative values mean the job
// is overdue.
func (s Scheduled) Delay() time.Duration {
	return time.Until(s.RunAt)
}

// Comment returns the job's description.
func (s Scheduled) Comment() string {
	return s.Job.Comment()
}
