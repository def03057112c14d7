// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/scuttle/internal/api"
	"github.com/tomtom215/scuttle/internal/auth"
	"github.com/tomtom215/scuttle/internal/authz"
	"github.com/tomtom215/scuttle/internal/config"
	"github.com/tomtom215/scuttle/internal/database"
	"github.com/tomtom215/scuttle/internal/dispatch"
	"github.com/tomtom215/scuttle/internal/jobqueue"
	"github.com/tomtom215/scuttle/internal/logging"
	"github.com/tomtom215/scuttle/internal/module"
	"github.com/tomtom215/scuttle/internal/modules"
	"github.com/tomtom215/scuttle/internal/registry"
	"github.com/tomtom215/scuttle/internal/supervisor"
	"github.com/tomtom215/scuttle/internal/supervisor/services"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	cfg, cfgPath, err := config.LoadWithPath()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("config_file", cfgPath).
		Str("prefix", cfg.Server.Prefix).
		Msg("Starting Scuttle with supervisor tree")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Open(ctx, database.Config{
		Path:         cfg.Database.Path,
		MaxOpenConns: cfg.Database.MaxConns,
		BusyTimeout:  cfg.Database.BusyTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Str("path", cfg.Database.Path).Msg("Database initialized successfully")

	if err := bootstrapAdmin(ctx, db.Users(), cfg.Security); err != nil {
		logging.Error().Err(err).Msg("Failed to create admin user")
		return
	}

	// Created stopped; the jobs layer of the supervisor starts it.
	queue := jobqueue.New()

	enforcer, err := authz.NewEnforcer(enforcerConfig(cfg.Security))
	if err != nil {
		logging.Error().Err(err).Msg("Failed to initialize authorization")
		return
	}
	defer enforcer.Close()

	directory := auth.NewDirectory(db.Users(), auth.BreakerConfig{
		MinRequests:  cfg.Security.BreakerMinRequests,
		FailureRatio: cfg.Security.BreakerFailureRatio,
		Interval:     auth.DefaultBreakerConfig().Interval,
		Timeout:      cfg.Security.BreakerTimeout,
	})
	authenticator := auth.NewAuthenticator(directory, auth.LoginConfig{
		Delay:    cfg.Security.LoginDelay,
		Attempts: cfg.Security.LoginAttempts,
		Window:   cfg.Security.LoginWindow,
	})
	authorizer := auth.NewAuthorizer(directory, enforcer)
	sessions, err := auth.NewSessionStore(auth.SessionConfig{
		CookieName: cfg.Security.CookieName,
		Secret:     cfg.Security.SessionSecret,
		MaxAge:     cfg.Security.SessionMaxAge,
		Secure:     cfg.Security.CookieSecure,
	})
	if err != nil {
		logging.Error().Err(err).Msg("Failed to initialize session store")
		return
	}

	scheduled := scheduleMaintenance(queue, cfg, maintenance{
		db:       db,
		limiter:  authenticator.Limiter(),
		enforcer: enforcer,
	})
	logging.Info().Int("jobs", scheduled).Msg("Maintenance jobs scheduled")

	// Mounts is read per request, after dispatcher has been assigned.
	var dispatcher *dispatch.Dispatcher
	defs := modules.Definitions(modules.Info{
		Name:      "scuttle",
		Version:   version,
		StartedAt: time.Now(),
		Mounts:    func() []string { return dispatcher.Registry().Paths() },
	})
	host := module.Host{DB: db, Jobs: queue}

	reg, report := registry.NewLoader(host).Load(ctx, registry.Filter(defs, cfg.Modules.Enabled))
	if !report.OK() {
		logging.Error().Strs("problems", report.Problems).Msg("Configuration is broken, backend requests will fail")
	}

	dispatcher = dispatch.New(reg, dispatch.Config{
		Prefix:       cfg.Server.Prefix,
		CacheEnabled: cfg.Cache.Enabled,
		SingleFlight: cfg.Cache.SingleFlight,
	}, dispatch.Options{
		Auth:     authenticator,
		Authz:    authorizer,
		Sessions: sessions,
		DB:       db,
		Problems: report.Problems,
	})

	if cfg.Modules.WatchConfig {
		if cfgPath == "" {
			logging.Warn().Msg("MODULES_WATCH_CONFIG set but no config file is in use")
		} else if err := config.WatchConfigFile(cfgPath, func() {
			reloadModules(context.Background(), host, defs, dispatcher)
		}); err != nil {
			logging.Warn().Err(err).Str("path", cfgPath).Msg("Failed to watch config file")
		} else {
			logging.Info().Str("path", cfgPath).Msg("Watching config file for module changes")
		}
	}

	handler := api.NewHandler(api.Deps{
		Dispatcher: dispatcher,
		Jobs:       queue,
		DB:         db,
		Sessions:   sessions,
		Authz:      authorizer,
		Breaker:    directory,
	})
	mwConfig := api.DefaultChiMiddlewareConfig()
	mwConfig.CORSAllowedOrigins = cfg.Security.CORSOrigins
	mwConfig.RateLimitRequests = cfg.Server.RateLimitRequests
	mwConfig.RateLimitWindow = cfg.Server.RateLimitWindow
	router := api.NewRouter(handler, api.NewChiMiddleware(mwConfig), cfg.Server.Prefix)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.Setup(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// The supervisor's own timeout must cover the longer of the two drains.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if cfg.Jobs.DrainTimeout > shutdownTimeout {
		shutdownTimeout = cfg.Jobs.DrainTimeout
	}
	tree := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  shutdownTimeout + 5*time.Second,
	})
	tree.AddJobService(services.NewJobQueueService(queue, cfg.Jobs.DrainTimeout))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Int("modules", reg.Len()).
		Bool("cache", cfg.Cache.Enabled).
		Msg("HTTP server configured")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	var treeErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
		treeErr = <-errCh
	case treeErr = <-errCh:
	}
	if treeErr != nil && !errors.Is(treeErr, context.Canceled) {
		logging.Error().Err(treeErr).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	// a queue left running by a failed supervisor still owes OnCancel calls
	queue.Stop()

	logging.Info().Msg("Application stopped gracefully")
}
