// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

/*
Package main is the entry point for the Scuttle server.

Scuttle serves a set of modules under a URL prefix (default /backend). Each
request is routed to the module mounted at the first path segment, which may
answer from the response cache; background work runs on a single-worker job
queue.

# Application Architecture

The server runs under a Suture v4 supervisor tree:

	RootSupervisor ("scuttle")
	├── JobsSupervisor ("jobs-layer")
	│   └── Job queue (maintenance, deferred module loads)
	└── APISupervisor ("api-layer")
	    └── HTTP Server (dispatcher, health, admin, metrics)

Component initialization order:

 1. Configuration: Koanf v2 with environment variables and config files
 2. Logging: zerolog with JSON/console output modes
 3. Database: SQLite (modernc.org/sqlite) with migrations
 4. Job queue: created stopped; the supervisor starts it
 5. Authorization: Casbin enforcer, embedded or file policy
 6. Authentication: bcrypt users behind a circuit breaker, cookie sessions
 7. Modules: static table filtered by MODULES_ENABLED
 8. Dispatcher: response cache over the mounted modules
 9. HTTP Server: Chi router with middleware stack
 10. Supervisor Tree: Suture v4 process supervision

# Configuration

See package config for every setting. The most common:

	HTTP_PORT=8080
	BACKEND_PREFIX=/backend
	DATABASE_PATH=/data/scuttle.db
	SESSION_SECRET=<32+ bytes>
	ADMIN_USERNAME=admin
	ADMIN_PASSWORD=<8+ chars>
	MODULES_ENABLED=meta,session,ping
	LOG_LEVEL=info

# Broken Configuration

If a crucial module fails to construct or load, or two modules claim the
same mount point, the server still starts but every backend request is
answered with 500 and the list of problems. Health checks report not ready.
With MODULES_WATCH_CONFIG on, fixing the config file reloads the module set
and, once it loads without problems, the server leaves broken mode without a
restart.

# Signal Handling

SIGINT and SIGTERM cancel the supervisor tree: the HTTP server stops
accepting connections and drains in-flight requests within SHUTDOWN_TIMEOUT,
and the job queue runs the jobs already due within JOBS_DRAIN_TIMEOUT.
*/
package main
