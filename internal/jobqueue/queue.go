// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

// Package jobqueue runs background jobs on a single worker goroutine.
//
// Jobs may run immediately, after a delay, at a point in time, or repeatedly
// at a fixed interval. The queue never runs two jobs at once. A job that
// fails or panics is logged and the worker moves on; repeating jobs are
// rescheduled even after a failure unless the queue has been stopped.
//
// Lifecycle:
//
//	q := jobqueue.New()
//	q.Start()
//	q.Repeat(vacuum, time.Hour)
//	...
//	q.Pause()    // finish the current job, then hold
//	q.Resume()
//	q.Stop()     // cancel everything still queued, do not wait
//
// A queue cannot be restarted after it has been stopped.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scuttle/internal/logging"
	"github.com/tomtom215/scuttle/internal/metrics"
)

// ErrWaitStopFromWorker is returned by WaitStop when it is invoked from a
// job running on the queue it would wait for.
var ErrWaitStopFromWorker = errors.New("jobqueue: WaitStop called from the queue's own worker would deadlock")

type workerKey struct{}

// Queue is a delay-ordered job queue with exactly one worker.
type Queue struct {
	mu      sync.Mutex
	jobs    delayHeap
	seq     uint64
	current Job

	started bool
	stopped bool // no new submissions, no rescheduling
	aborted bool // queue cleared, worker exits after the current job
	paused  bool

	wake chan struct{}
	done chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
}

// New creates a queue in the not-started state. Jobs may be submitted
// before Start; they run once the worker is running.
func New() *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		logger: logging.WithComponent("jobqueue"),
	}
}

// Start launches the worker. It returns true iff the queue had neither been
// started nor stopped.
func (q *Queue) Start() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return false
	}
	q.started = true
	go q.run()
	q.logger.Debug().Msg("Job queue started")
	return true
}

// Pause stops the worker from taking new jobs. A job that is executing
// runs to completion. It returns true iff the queue was running and not
// already paused.
func (q *Queue) Pause() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started || q.stopped || q.paused {
		return false
	}
	q.paused = true
	return true
}

// Resume reverses Pause. It returns true iff the queue was running and
// paused.
func (q *Queue) Resume() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started || q.stopped || !q.paused {
		return false
	}
	q.paused = false
	q.signal()
	return true
}

// Stop stops the queue permanently and cancels every queued job, invoking
// its OnCancel. It does not wait for an executing job to return. Stop
// returns true iff the queue was started and not already stopped; it also
// aborts a drain begun by WaitStop.
func (q *Queue) Stop() bool {
	return q.stop(true)
}

// StopSilently is Stop without OnCancel notifications.
func (q *Queue) StopSilently() bool {
	return q.stop(false)
}

func (q *Queue) stop(notify bool) bool {
	q.mu.Lock()
	if !q.started || q.aborted {
		q.mu.Unlock()
		return false
	}
	q.stopped = true
	q.aborted = true
	dropped := q.jobs.drain()
	metrics.JobQueueDepth.Set(0)
	q.signal()
	q.mu.Unlock()

	q.cancel()
	if notify {
		q.notifyCancelled(dropped)
	}
	q.logger.Info().Int("cancelled", len(dropped)).Bool("notified", notify).Msg("Job queue stopped")
	return true
}

// WaitStop stops accepting submissions and blocks until the worker has run
// every job still queued and exited. Repeating jobs are not rescheduled
// once WaitStop has been called, and a paused queue is resumed so that it
// can drain.
//
// ctx bounds the wait; on expiry ctx.Err() is returned and the drain keeps
// going in the background (call Stop to abandon it). Calling WaitStop from
// inside a job with the context the job received, or one derived from it,
// returns ErrWaitStopFromWorker. The worker is recognised only through that
// context: a job calling WaitStop with an unrelated context deadlocks.
func (q *Queue) WaitStop(ctx context.Context) error {
	if owner, ok := ctx.Value(workerKey{}).(*Queue); ok && owner == q {
		return ErrWaitStopFromWorker
	}

	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return nil
	}
	if !q.stopped {
		q.stopped = true
		q.paused = false
		q.signal()
		q.logger.Info().Int("pending", q.jobs.Len()).Msg("Job queue draining")
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the worker has exited.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Submit schedules job to run as soon as possible. It returns false if the
// queue no longer accepts jobs.
func (q *Queue) Submit(job Job) bool {
	return q.add(job, time.Now(), 0)
}

// SubmitAfter schedules job to run once delay has elapsed.
func (q *Queue) SubmitAfter(job Job, delay time.Duration) bool {
	return q.add(job, time.Now().Add(delay), 0)
}

// SubmitAt schedules job to run at t. Times in the past run immediately.
func (q *Queue) SubmitAt(job Job, t time.Time) bool {
	return q.add(job, t, 0)
}

// Repeat schedules job to run every interval, the first time after one
// interval has elapsed. The next run is scheduled when the previous one
// returns, so runs never overlap and the spacing is at least interval.
func (q *Queue) Repeat(job Job, interval time.Duration) bool {
	if interval <= 0 {
		q.logger.Warn().Str("job", job.Comment()).Dur("interval", interval).Msg("Refusing repeating job with non-positive interval")
		return false
	}
	return q.add(job, time.Now().Add(interval), interval)
}

func (q *Queue) add(job Job, runAt time.Time, repeat time.Duration) bool {
	if job == nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return false
	}
	q.push(&entry{job: job, runAt: runAt, repeat: repeat})
	return true
}

// push must be called with mu held.
func (q *Queue) push(e *entry) {
	q.seq++
	e.seq = q.seq
	q.jobs.push(e)
	metrics.JobQueueDepth.Set(float64(q.jobs.Len()))
	q.signal()
}

// Cancel removes the first queued occurrence of job and invokes its
// OnCancel. It returns false if job was not queued; a job that is already
// executing cannot be cancelled.
func (q *Queue) Cancel(job Job) bool {
	q.mu.Lock()
	e := q.jobs.removeJob(job)
	if e != nil {
		metrics.JobQueueDepth.Set(float64(q.jobs.Len()))
		q.signal()
	}
	q.mu.Unlock()

	if e == nil {
		return false
	}
	q.notifyCancelled([]*entry{e})
	return true
}

// Clear cancels every queued job and returns how many were removed.
func (q *Queue) Clear() int {
	q.mu.Lock()
	dropped := q.jobs.drain()
	metrics.JobQueueDepth.Set(0)
	q.signal()
	q.mu.Unlock()

	q.notifyCancelled(dropped)
	return len(dropped)
}

// List returns the queued jobs ordered by due time.
func (q *Queue) List() []Scheduled {
	q.mu.Lock()
	entries := q.jobs.sorted()
	q.mu.Unlock()

	out := make([]Scheduled, len(entries))
	for i, e := range entries {
		out[i] = Scheduled{Job: e.job, RunAt: e.runAt, Repeat: e.repeat}
	}
	return out
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobs.Len()
}

// Current returns the job that is executing, or nil.
func (q *Queue) Current() Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

func (q *Queue) IsStarted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.started
}

func (q *Queue) IsStopped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopped
}

func (q *Queue) IsPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// signal wakes the worker without blocking.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) notifyCancelled(entries []*entry) {
	for _, e := range entries {
		func() {
			defer func() {
				if r := recover(); r != nil {
					q.logger.Error().Str("job", e.job.Comment()).Interface("panic", r).Msg("Job cancel callback panicked")
				}
			}()
			e.job.OnCancel()
		}()
		metrics.JobsCancelled.Inc()
	}
}

func (q *Queue) run() {
	defer close(q.done)
	ctx := context.WithValue(q.ctx, workerKey{}, q)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		e := q.next(timer)
		if e == nil {
			q.logger.Debug().Msg("Job queue worker exited")
			return
		}
		q.execute(ctx, e)
	}
}

// next blocks until a job is due and the queue is not paused. It returns
// nil when the worker should exit.
func (q *Queue) next(timer *time.Timer) *entry {
	for {
		q.mu.Lock()
		if q.aborted || (q.stopped && q.jobs.Len() == 0) {
			q.mu.Unlock()
			return nil
		}

		var due <-chan time.Time
		if !q.paused {
			head := q.jobs.peek()
			if head != nil {
				wait := time.Until(head.runAt)
				if wait <= 0 {
					e := q.jobs.pop()
					q.current = e.job
					metrics.JobQueueDepth.Set(float64(q.jobs.Len()))
					q.mu.Unlock()
					return e
				}
				timer.Reset(wait)
				due = timer.C
			}
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
			timer.Stop()
		case <-due:
		}
	}
}

func (q *Queue) execute(ctx context.Context, e *entry) {
	start := time.Now()
	err := q.safeExecute(ctx, e.job)
	elapsed := time.Since(start)

	result := "success"
	var panicErr *panicError
	switch {
	case errors.As(err, &panicErr):
		result = "panic"
		q.logger.Error().Str("job", e.job.Comment()).Interface("panic", panicErr.value).
			Str("stack", panicErr.stack).Msg("Job panicked")
	case err != nil:
		result = "error"
		q.logger.Error().Err(err).Str("job", e.job.Comment()).Dur("elapsed", elapsed).Msg("Job failed")
	default:
		q.logger.Debug().Str("job", e.job.Comment()).Dur("elapsed", elapsed).Msg("Job finished")
	}
	metrics.RecordJob(result, elapsed)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.current = nil
	if e.repeat > 0 && !q.stopped {
		e.runAt = time.Now().Add(e.repeat)
		q.push(e)
	}
}

type panicError struct {
	value interface{}
	stack string
}

func (p *panicError) Error() string {
	return fmt.Sprintf("job panicked: %v", p.value)
}

func (q *Queue) safeExecute(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: string(debug.Stack())}
		}
	}()
	return job.Execute(ctx)
}
