// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/scuttle/internal/auth"
	"github.com/tomtom215/scuttle/internal/authz"
	"github.com/tomtom215/scuttle/internal/config"
	"github.com/tomtom215/scuttle/internal/database"
	"github.com/tomtom215/scuttle/internal/dispatch"
	"github.com/tomtom215/scuttle/internal/jobqueue"
	"github.com/tomtom215/scuttle/internal/logging"
	"github.com/tomtom215/scuttle/internal/module"
	"github.com/tomtom215/scuttle/internal/registry"
)

// userStore is the part of database.Users the admin bootstrap needs.
type userStore interface {
	Exists(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, name, password, role string, privileges ...string) error
}

// bootstrapAdmin creates the configured admin account if it does not exist.
// An existing account is left untouched, including its password.
func bootstrapAdmin(ctx context.Context, users userStore, sec config.SecurityConfig) error {
	if sec.AdminUsername == "" {
		return nil
	}
	exists, err := users.Exists(ctx, sec.AdminUsername)
	if err != nil {
		return fmt.Errorf("check admin user: %w", err)
	}
	if exists {
		logging.Debug().Str("user", sec.AdminUsername).Msg("Admin user already exists")
		return nil
	}
	if err := users.Create(ctx, sec.AdminUsername, sec.AdminPassword, "admin"); err != nil {
		return err
	}
	logging.Info().Str("user", sec.AdminUsername).Msg("Created admin user")
	return nil
}

func enforcerConfig(sec config.SecurityConfig) *authz.EnforcerConfig {
	c := authz.DefaultEnforcerConfig()
	c.ModelPath = sec.CasbinModel
	c.PolicyPath = sec.CasbinPolicy
	c.AutoReload = sec.CasbinPolicy != ""
	return c
}

// maintenance holds the components with periodic housekeeping. Nil fields
// are skipped.
type maintenance struct {
	db       *database.DB
	limiter  *auth.Limiter
	enforcer *authz.Enforcer
}

// scheduleMaintenance queues the repeating housekeeping jobs and returns
// how many were scheduled. A zero interval disables a job.
func scheduleMaintenance(q *jobqueue.Queue, cfg *config.Config, m maintenance) int {
	n := 0
	if m.db != nil && cfg.Jobs.MaintenanceInterval > 0 {
		if q.Repeat(jobqueue.NewFunc("optimize database", m.db.Optimize), cfg.Jobs.MaintenanceInterval) {
			n++
		}
	}
	if m.limiter != nil && cfg.Jobs.LimiterPruneInterval > 0 {
		// a limiter idle this long has refilled its whole burst
		maxIdle := cfg.Security.LoginWindow * time.Duration(cfg.Security.LoginAttempts)
		if q.Repeat(m.limiter.PruneJob(maxIdle), cfg.Jobs.LimiterPruneInterval) {
			n++
		}
	}
	if m.enforcer != nil && cfg.Jobs.AuthzSweepInterval > 0 {
		sweep := jobqueue.NewFunc("sweep authorization cache", func(context.Context) error {
			if removed := m.enforcer.Sweep(); removed > 0 {
				logging.Debug().Int("removed", removed).Msg("Swept expired authorization decisions")
			}
			return nil
		})
		if q.Repeat(sweep, cfg.Jobs.AuthzSweepInterval) {
			n++
		}
	}
	return n
}

// applyModules loads the definitions listed in enabled and swaps them into
// d. A module set with problems is rejected and d keeps serving the
// current one.
func applyModules(ctx context.Context, host module.Host, defs []registry.Definition, enabled []string, d *dispatch.Dispatcher) error {
	reg, report := registry.NewLoader(host).Load(ctx, registry.Filter(defs, enabled))
	if !report.OK() {
		return fmt.Errorf("module reload rejected: %s", strings.Join(report.Problems, "; "))
	}
	mods := make(map[string]module.Module, reg.Len())
	for _, e := range reg.Snapshot() {
		mods[e.Path] = e.Module
	}
	return d.Replace(mods)
}

// reloadModules re-reads the configuration and applies its module list. It
// runs on the config file watcher's goroutine.
func reloadModules(ctx context.Context, host module.Host, defs []registry.Definition, d *dispatch.Dispatcher) {
	cfg, err := config.Load()
	if err != nil {
		logging.Warn().Err(err).Msg("Ignoring invalid configuration change")
		return
	}
	if err := applyModules(ctx, host, defs, cfg.Modules.Enabled, d); err != nil {
		logging.Error().Err(err).Msg("Keeping current modules")
		return
	}
	logging.Info().Strs("modules", d.Registry().Paths()).Msg("Modules reloaded")
}
