// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

/*
Package config loads Scuttle's configuration.

Settings are layered with Koanf v2, later layers overriding earlier ones:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file: $CONFIG_PATH, else the first of DefaultConfigPaths
 3. Environment variables listed in envMappings

# Environment Variables

Server:
  - HTTP_HOST, HTTP_PORT: listen address (default 0.0.0.0:8080)
  - BACKEND_PREFIX: URL prefix served by the dispatcher (default /backend)
  - HTTP_READ_TIMEOUT, HTTP_WRITE_TIMEOUT, HTTP_IDLE_TIMEOUT, SHUTDOWN_TIMEOUT
  - RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW: per-IP limit, 0 disables

Database:
  - DATABASE_PATH (default /data/scuttle.db), DATABASE_MAX_CONNS, DATABASE_BUSY_TIMEOUT

Security:
  - SESSION_SECRET: cookie signing key, at least 32 bytes; empty means a
    random key per process
  - SESSION_COOKIE_NAME, SESSION_COOKIE_SECURE, SESSION_MAX_AGE
  - LOGIN_DELAY, LOGIN_MAX_ATTEMPTS, LOGIN_ATTEMPT_WINDOW
  - CASBIN_MODEL_PATH, CASBIN_POLICY_PATH: empty uses the embedded policy
  - CORS_ORIGINS: comma separated
  - ADMIN_USERNAME, ADMIN_PASSWORD: bootstrap admin account, created once

Cache:
  - RESPONSE_CACHE_ENABLED (default true), RESPONSE_CACHE_SINGLE_FLIGHT

Jobs:
  - JOBS_DRAIN_TIMEOUT, DB_MAINTENANCE_INTERVAL, LOGIN_PRUNE_INTERVAL, AUTHZ_SWEEP_INTERVAL

Modules:
  - MODULES_ENABLED: comma separated mount points; empty enables all
  - MODULES_WATCH_CONFIG: reload the module set when the config file changes

Logging:
  - LOG_LEVEL, LOG_FORMAT (json or console), LOG_CALLER

# Thread Safety

A loaded Config is never mutated and may be shared freely.
*/
package config
