// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

/*
Package middleware provides the HTTP middleware Scuttle mounts in front of
its routes. Every function has the chi signature func(http.Handler)
http.Handler.

  - RequestID: accepts or generates X-Request-ID and stores it for logging
  - PrometheusMetrics: request counts, latency and in-flight gauge per route
  - Compression: gzip for the admin JSON routes. The dispatcher encodes
    backend responses itself and must not be wrapped.

Typical stack:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.Route("/admin", func(r chi.Router) {
	    r.Use(middleware.Compression)
	    ...
	})
*/
package middleware
