// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package modules

import (
	"errors"

	"github.com/tomtom215/scuttle/internal/jobqueue"
	"github.com/tomtom215/scuttle/internal/module"
)

// ErrNoJobQueue is returned by NewJobs when the host has no job queue.
var ErrNoJobQueue = errors.New("modules: job queue not available")

// JobEntry is one scheduled job in the jobs module's output.
type JobEntry struct {
	Comment  string `json:"comment"`
	DueInMs  int64  `json:"due_in_ms"`
	RepeatMs int64  `json:"repeat_ms,omitempty"`
}

// JobList is the body served by the jobs module.
type JobList struct {
	Paused  bool       `json:"paused"`
	Running string     `json:"running,omitempty"`
	Jobs    []JobEntry `json:"jobs"`
}

// Jobs lists the job queue's schedule to users holding jobs.view.
type Jobs struct {
	module.Base
	queue *jobqueue.Queue
}

// NewJobs returns the jobs module. It fails without a job queue.
func NewJobs(host module.Host) (*Jobs, error) {
	if host.Jobs == nil {
		return nil, ErrNoJobQueue
	}
	return &Jobs{queue: host.Jobs}, nil
}

func (j *Jobs) Handle(r *module.Request) (module.Response, error) {
	if err := r.Check(PrivilegeJobsView); err != nil {
		return nil, err
	}
	out := JobList{Paused: j.queue.IsPaused(), Jobs: []JobEntry{}}
	if cur := j.queue.Current(); cur != nil {
		out.Running = cur.Comment()
	}
	limit := r.ParamInt("limit", 0)
	for _, s := range j.queue.List() {
		if limit > 0 && len(out.Jobs) == limit {
			break
		}
		out.Jobs = append(out.Jobs, JobEntry{
			Comment:  s.Comment(),
			DueInMs:  s.Delay().Milliseconds(),
			RepeatMs: s.Repeat.Milliseconds(),
		})
	}
	return module.JSON(out), nil
}
