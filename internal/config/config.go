// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Security SecurityConfig `koanf:"security"`
	Cache    CacheConfig    `koanf:"cache"`
	Jobs     JobsConfig     `koanf:"jobs"`
	Modules  ModulesConfig  `koanf:"modules"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Prefix          string        `koanf:"prefix" validate:"required,startswith=/"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// RateLimitRequests per RateLimitWindow per client IP. 0 disables.
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path        string        `koanf:"path" validate:"required"`
	MaxConns    int           `koanf:"max_conns" validate:"gte=1"`
	BusyTimeout time.Duration `koanf:"busy_timeout" validate:"gte=0"`
}

// SecurityConfig holds session, login and authorization settings.
type SecurityConfig struct {
	SessionSecret string        `koanf:"session_secret" validate:"omitempty,min=32"`
	CookieName    string        `koanf:"cookie_name" validate:"required"`
	CookieSecure  bool          `koanf:"cookie_secure"`
	SessionMaxAge time.Duration `koanf:"session_max_age" validate:"gte=0"`

	LoginDelay    time.Duration `koanf:"login_delay" validate:"gte=0"`
	LoginAttempts int           `koanf:"login_attempts" validate:"gte=0"`
	LoginWindow   time.Duration `koanf:"login_window" validate:"gte=0"`

	CasbinModel  string `koanf:"casbin_model"`
	CasbinPolicy string `koanf:"casbin_policy"`

	CORSOrigins []string `koanf:"cors_origins"`

	// AdminUsername and AdminPassword create an admin account at startup
	// when no user of that name exists yet.
	AdminUsername string `koanf:"admin_username" validate:"omitempty,max=64"`
	AdminPassword string `koanf:"admin_password" validate:"omitempty,min=8"`

	BreakerMinRequests  uint32        `koanf:"breaker_min_requests" validate:"gte=1"`
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio" validate:"gt=0,lte=1"`
	BreakerTimeout      time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled      bool `koanf:"enabled"`
	SingleFlight bool `koanf:"single_flight"`
}

// JobsConfig controls the background job queue and its repeating jobs.
// An interval of 0 disables that job.
type JobsConfig struct {
	DrainTimeout         time.Duration `koanf:"drain_timeout" validate:"gt=0"`
	MaintenanceInterval  time.Duration `koanf:"maintenance_interval" validate:"gte=0"`
	LimiterPruneInterval time.Duration `koanf:"limiter_prune_interval" validate:"gte=0"`
	AuthzSweepInterval   time.Duration `koanf:"authz_sweep_interval" validate:"gte=0"`
}

// ModulesConfig selects which built-in modules are mounted.
type ModulesConfig struct {
	// Enabled lists mount points. Empty mounts every module.
	Enabled []string `koanf:"enabled" validate:"dive,mountpath"`

	// WatchConfig reloads the module set when the config file changes.
	WatchConfig bool `koanf:"watch_config"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal disabled off"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}
