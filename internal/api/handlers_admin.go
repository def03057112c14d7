// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/scuttle/internal/logging"
	"github.com/tomtom215/scuttle/internal/module"
	"github.com/tomtom215/scuttle/internal/validation"
)

const maxAdminBody = 64 << 10

var errNotMounted = errors.New("module not mounted")

// ModuleInfo describes one mounted module.
type ModuleInfo struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

// ListModules lists the mounted modules in path order.
func (h *Handler) ListModules(w http.ResponseWriter, r *http.Request) {
	entries := h.Dispatcher.Registry().Snapshot()
	out := make([]ModuleInfo, len(entries))
	for i, e := range entries {
		out[i] = ModuleInfo{Path: e.Path, Type: fmt.Sprintf("%T", e.Module)}
	}
	NewResponseWriter(w, r).Success(out)
}

// UnmountModule removes a module from the running module set. The change
// is applied through the dispatcher's update path, which also starts a
// fresh response cache.
func (h *Handler) UnmountModule(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	target := EvictRequest{Module: chi.URLParam(r, "module")}
	if verr := validation.ValidateStruct(&target); verr != nil || target.Module == "" {
		rw.BadRequest("Invalid module path")
		return
	}

	err := <-h.Dispatcher.Update(func(mods map[string]module.Module) error {
		if _, ok := mods[target.Module]; !ok {
			return errNotMounted
		}
		delete(mods, target.Module)
		return nil
	})
	switch {
	case errors.Is(err, errNotMounted):
		rw.NotFound("No module mounted at " + target.Module)
	case err != nil:
		logging.Ctx(r.Context()).Error().Err(err).Str("target", target.Module).Msg("Unmount failed")
		rw.InternalError("Failed to update module set")
	default:
		logging.Ctx(r.Context()).Info().Str("target", target.Module).Msg("Module unmounted")
		rw.Success(map[string]interface{}{
			"unmounted": target.Module,
			"modules":   h.Dispatcher.Registry().Paths(),
		})
	}
}

// CacheStats reports response cache counters.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats, ok := h.Dispatcher.CacheStats()
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"enabled": ok,
		"stats":   stats,
	})
}

// EvictRequest is the body of POST /admin/cache/evict. An empty Module
// evicts every module.
type EvictRequest struct {
	Module string `json:"module" validate:"omitempty,mountpath"`
}

// CacheEvict drops cached responses.
func (h *Handler) CacheEvict(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req EvictRequest
	if err := decodeBody(r, &req); err != nil {
		rw.BadRequest("Invalid request body: " + err.Error())
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError("Invalid evict request", verr.Violations())
		return
	}

	var n int
	if req.Module == "" {
		n = h.Dispatcher.EvictAll()
	} else {
		if _, ok := h.Dispatcher.Registry().Lookup(req.Module); !ok {
			rw.NotFound("No module mounted at " + req.Module)
			return
		}
		n = h.Dispatcher.Evict(req.Module)
	}
	logging.Ctx(r.Context()).Info().Str("target", req.Module).Int("evicted", n).Msg("Response cache evicted")
	rw.Success(map[string]interface{}{"module": req.Module, "evicted": n})
}

// ScheduledJob describes one queued job.
type ScheduledJob struct {
	Comment  string    `json:"comment"`
	RunAt    time.Time `json:"run_at"`
	DelayMs  int64     `json:"delay_ms"`
	RepeatMs int64     `json:"repeat_ms,omitempty"`
}

// JobsStatus is the body of GET /admin/jobs.
type JobsStatus struct {
	Started bool           `json:"started"`
	Paused  bool           `json:"paused"`
	Stopped bool           `json:"stopped"`
	Current string         `json:"current,omitempty"`
	Pending []ScheduledJob `json:"pending"`
}

// ListJobs reports the job queue state and schedule.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.Jobs == nil {
		rw.ServiceUnavailable("Job queue not configured")
		return
	}
	q := h.Jobs

	st := JobsStatus{
		Started: q.IsStarted(),
		Paused:  q.IsPaused(),
		Stopped: q.IsStopped(),
		Pending: []ScheduledJob{},
	}
	if cur := q.Current(); cur != nil {
		st.Current = cur.Comment()
	}
	for _, s := range q.List() {
		st.Pending = append(st.Pending, ScheduledJob{
			Comment:  s.Comment(),
			RunAt:    s.RunAt,
			DelayMs:  s.Delay().Milliseconds(),
			RepeatMs: s.Repeat.Milliseconds(),
		})
	}
	rw.Success(st)
}

// PauseJobs pauses the worker after its current job.
func (h *Handler) PauseJobs(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

// ResumeJobs resumes a paused worker.
func (h *Handler) ResumeJobs(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *Handler) setPaused(w http.ResponseWriter, r *http.Request, pause bool) {
	rw := NewResponseWriter(w, r)
	if h.Jobs == nil {
		rw.ServiceUnavailable("Job queue not configured")
		return
	}
	var changed bool
	if pause {
		changed = h.Jobs.Pause()
	} else {
		changed = h.Jobs.Resume()
	}
	logging.Ctx(r.Context()).Info().Bool("pause", pause).Bool("changed", changed).Msg("Job queue state change requested")
	rw.Success(map[string]interface{}{
		"changed": changed,
		"paused":  h.Jobs.IsPaused(),
	})
}

// decodeBody decodes a JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxAdminBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
