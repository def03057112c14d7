// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file locations tried in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/scuttle/config.yaml",
	"/etc/scuttle/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			Prefix:            "/backend",
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       2 * time.Minute,
			ShutdownTimeout:   15 * time.Second,
			RateLimitRequests: 0,
			RateLimitWindow:   time.Minute,
		},
		Database: DatabaseConfig{
			Path:        "/data/scuttle.db",
			MaxConns:    8,
			BusyTimeout: 5 * time.Second,
		},
		Security: SecurityConfig{
			CookieName:          "scuttle_session",
			CookieSecure:        false,
			SessionMaxAge:       24 * time.Hour,
			LoginDelay:          time.Second,
			LoginAttempts:       5,
			LoginWindow:         time.Minute,
			BreakerMinRequests:  10,
			BreakerFailureRatio: 0.6,
			BreakerTimeout:      30 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:      true,
			SingleFlight: false,
		},
		Jobs: JobsConfig{
			DrainTimeout:         30 * time.Second,
			MaintenanceInterval:  6 * time.Hour,
			LimiterPruneInterval: 10 * time.Minute,
			AuthzSweepInterval:   5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads defaults, the config file and the environment, then
// validates the result.
func Load() (*Config, error) {
	cfg, _, err := LoadWithPath()
	return cfg, err
}

// LoadWithPath is Load that also returns the config file that was read, or
// "" when none was found.
func LoadWithPath() (*Config, string, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load defaults: %w", err)
	}

	path := findConfigFile()
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, "", fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// HTTP_PORT -> server.port, LOG_LEVEL -> logging.level, ...
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, "", fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, path, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths are split on commas when they arrive as strings.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"modules.enabled",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"http_host":           "server.host",
	"http_port":           "server.port",
	"backend_prefix":      "server.prefix",
	"http_read_timeout":   "server.read_timeout",
	"http_write_timeout":  "server.write_timeout",
	"http_idle_timeout":   "server.idle_timeout",
	"shutdown_timeout":    "server.shutdown_timeout",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",

	"database_path":         "database.path",
	"database_max_conns":    "database.max_conns",
	"database_busy_timeout": "database.busy_timeout",

	"session_secret":        "security.session_secret",
	"session_cookie_name":   "security.cookie_name",
	"session_cookie_secure": "security.cookie_secure",
	"session_max_age":       "security.session_max_age",
	"login_delay":           "security.login_delay",
	"login_max_attempts":    "security.login_attempts",
	"login_attempt_window":  "security.login_window",
	"casbin_model_path":     "security.casbin_model",
	"casbin_policy_path":    "security.casbin_policy",
	"cors_origins":          "security.cors_origins",
	"admin_username":        "security.admin_username",
	"admin_password":        "security.admin_password",
	"breaker_min_requests":  "security.breaker_min_requests",
	"breaker_failure_ratio": "security.breaker_failure_ratio",
	"breaker_timeout":       "security.breaker_timeout",

	"response_cache_enabled":       "cache.enabled",
	"response_cache_single_flight": "cache.single_flight",

	"jobs_drain_timeout":      "jobs.drain_timeout",
	"db_maintenance_interval": "jobs.maintenance_interval",
	"login_prune_interval":    "jobs.limiter_prune_interval",
	"authz_sweep_interval":    "jobs.authz_sweep_interval",

	"modules_enabled":      "modules.enabled",
	"modules_watch_config": "modules.watch_config",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable to its config path. Unknown
// variables map to "" and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// WatchConfigFile calls callback whenever the file at path changes. The
// callback runs on the watcher's goroutine.
func WatchConfigFile(path string, callback func()) error {
	return file.Provider(path).Watch(func(_ interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
