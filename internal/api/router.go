// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/scuttle/internal/middleware"
)

// Router wires the handlers into a chi router.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	prefix        string
}

// NewRouter creates a router serving the dispatcher under prefix.
func NewRouter(handler *Handler, mw *ChiMiddleware, prefix string) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	prefix = "/" + strings.Trim(prefix, "/")
	return &Router{handler: handler, chiMiddleware: mw, prefix: prefix}
}

// Setup builds the route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(middleware.PrometheusMetrics)

	r.Route("/healthz", func(r chi.Router) {
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// the dispatcher maps every method itself
	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Handle(router.prefix, router.handler.Dispatcher)
		r.Handle(router.prefix+"/*", router.handler.Dispatcher)
	})

	h := router.handler
	r.Route("/admin", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(middleware.Compression)

		r.With(h.RequirePrivilege("modules.view")).Get("/modules", h.ListModules)
		r.With(h.RequirePrivilege("modules.manage")).Delete("/modules/{module}", h.UnmountModule)
		r.With(h.RequirePrivilege("cache.view")).Get("/cache", h.CacheStats)
		r.With(h.RequirePrivilege("cache.evict")).Post("/cache/evict", h.CacheEvict)
		r.With(h.RequirePrivilege("jobs.view")).Get("/jobs", h.ListJobs)
		r.With(h.RequirePrivilege("jobs.manage")).Post("/jobs/pause", h.PauseJobs)
		r.With(h.RequirePrivilege("jobs.manage")).Post("/jobs/resume", h.ResumeJobs)
	})

	return r
}
