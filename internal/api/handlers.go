// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/scuttle/internal/database"
	"github.com/tomtom215/scuttle/internal/dispatch"
	"github.com/tomtom215/scuttle/internal/jobqueue"
	"github.com/tomtom215/scuttle/internal/logging"
	"github.com/tomtom215/scuttle/internal/module"
)

// BreakerState reports the state of the user store circuit breaker.
type BreakerState interface {
	State() string
}

// Deps are the components the handlers read from. Only Dispatcher is
// required.
type Deps struct {
	Dispatcher *dispatch.Dispatcher
	Jobs       *jobqueue.Queue
	DB         *database.DB
	Sessions   dispatch.SessionStore
	Authz      module.Authorizer
	Breaker    BreakerState
}

// Handler serves the health and admin routes.
type Handler struct {
	Deps
	startTime time.Time
}

// NewHandler creates the handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{Deps: deps, startTime: time.Now()}
}

// HealthLive always answers 200 while the process is serving.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	})
}

// HealthStatus is the body of /healthz/ready.
type HealthStatus struct {
	Status        string `json:"status"`
	Database      string `json:"database"`
	JobQueue      string `json:"job_queue"`
	Modules       int    `json:"modules"`
	Broken        bool   `json:"broken_config"`
	UserStore     string `json:"user_store,omitempty"`
	UptimeSecs    int64  `json:"uptime_seconds"`
	SchemaVersion int    `json:"schema_version,omitempty"`
}

// HealthReady answers 503 when requests cannot be served: the module set
// is broken, the database does not answer or the job worker has exited.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	st := HealthStatus{
		Status:     "ready",
		Database:   "disabled",
		JobQueue:   "disabled",
		Modules:    h.Dispatcher.Registry().Len(),
		Broken:     h.Dispatcher.Broken(),
		UptimeSecs: int64(time.Since(h.startTime).Seconds()),
	}
	ready := !st.Broken

	if h.DB != nil {
		st.Database = "ok"
		if err := h.DB.Ping(ctx); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Readiness: database ping failed")
			st.Database = "unreachable"
			ready = false
		} else if v, err := h.DB.SchemaVersion(ctx); err == nil {
			st.SchemaVersion = v
		}
	}

	if h.Jobs != nil {
		switch {
		case h.Jobs.IsStopped():
			st.JobQueue = "stopped"
			ready = false
		case h.Jobs.IsPaused():
			st.JobQueue = "paused"
		case h.Jobs.IsStarted():
			st.JobQueue = "running"
		default:
			st.JobQueue = "not_started"
		}
	}

	if h.Breaker != nil {
		st.UserStore = h.Breaker.State()
	}

	rw := NewResponseWriter(w, r)
	if !ready {
		st.Status = "not_ready"
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Service not ready", st)
		return
	}
	rw.Success(st)
}

// RequirePrivilege admits the request only if the session user holds
// privilege. Missing sessions get 401, denials 403.
func (h *Handler) RequirePrivilege(privilege string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := h.check(r, privilege); err != nil {
				rw := NewResponseWriter(w, r)
				var pe *module.PermissionError
				switch {
				case errors.As(err, &pe) && pe.Reason == module.NoSession:
					rw.Unauthorized("Login required")
				case errors.As(err, &pe):
					logging.Ctx(r.Context()).Info().Str("user", pe.User).Str("privilege", privilege).
						Str("reason", string(pe.Reason)).Msg("Admin request denied")
					rw.Forbidden("Missing privilege " + privilege)
				default:
					logging.Ctx(r.Context()).Error().Err(err).Str("privilege", privilege).Msg("Privilege check failed")
					rw.ServiceUnavailable("Privilege check unavailable")
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *Handler) check(r *http.Request, privilege string) error {
	var scope *database.Scope
	if h.DB != nil {
		scope = h.DB.Scope()
		defer scope.Release(r.Context())
	}
	var sess module.Session
	if h.Sessions != nil {
		sess = h.Sessions.Load(r)
	}
	return module.NewRequest(r, "", sess, scope, h.Authz).Check(privilege)
}
