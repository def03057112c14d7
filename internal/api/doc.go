// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

/*
Package api builds Scuttle's chi router.

Routes:

	/backend, /backend/*     dispatcher (prefix from config)
	/healthz/live            process is up
	/healthz/ready           database, job queue and module set are usable
	/metrics                 Prometheus exposition
	/admin/modules           GET   mounted modules            modules.view
	/admin/modules/{module}  DELETE  unmount a module         modules.manage
	/admin/cache             GET   response cache counters    cache.view
	/admin/cache/evict       POST  drop cached responses      cache.evict
	/admin/jobs              GET   queue state and schedule   jobs.view
	/admin/jobs/pause        POST                             jobs.manage
	/admin/jobs/resume       POST                             jobs.manage

Admin routes authenticate with the same session cookie as the dispatcher
and check privileges through the same module.Authorizer, so a user's role
grants the same rights in both places. Admin responses use the APIResponse
envelope; dispatcher responses are whatever the module wrote.
*/
package api
