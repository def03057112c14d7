// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package auth

import (
	"errors"
	"time"

	"github.com/tomtom215/scuttle/internal/database"
	"github.com/tomtom215/scuttle/internal/logging"
	"github.com/tomtom215/scuttle/internal/metrics"
	"github.com/tomtom215/scuttle/internal/module"
)

// Request parameters read by Login.
const (
	ParamLogout   = "logout"
	ParamName     = "loginName"
	ParamPassword = "loginPassword"
)

// LoginConfig configures the Authenticator.
type LoginConfig struct {
	// Delay is waited before every password check.
	Delay time.Duration
	// Attempts and Window configure per-name throttling; Attempts <= 0
	// disables it.
	Attempts int
	Window   time.Duration
}

// Authenticator runs the login/logout step of every backend request.
type Authenticator struct {
	dir     *Directory
	limiter *Limiter
	delay   time.Duration
}

// NewAuthenticator creates an authenticator that checks passwords against
// dir.
func NewAuthenticator(dir *Directory, cfg LoginConfig) *Authenticator {
	return &Authenticator{
		dir:     dir,
		limiter: NewLimiter(cfg.Attempts, cfg.Window),
		delay:   cfg.Delay,
	}
}

// Limiter returns the per-name attempt limiter, nil when disabled.
func (a *Authenticator) Limiter() *Limiter {
	return a.limiter
}

// Login handles the logout and login parameters of r. It returns nil when r
// is not a login attempt or the attempt succeeded, and a *module.LoginError
// otherwise.
func (a *Authenticator) Login(r *module.Request) error {
	log := logging.Ctx(r.Context())

	if r.HasParam(ParamLogout) {
		if user := r.Username(); user != "" {
			r.Session().Delete(module.SessionUserKey)
			log.Info().Str("user", user).Msg("Logged out")
		}
	}

	name := r.Param(ParamName)
	if name == "" {
		return nil
	}
	password := r.Param(ParamPassword)
	if password == "" {
		return a.fail(r, name, module.NoPasswordGiven, nil)
	}
	if !a.limiter.Allow(name) {
		return a.fail(r, name, module.TooManyAttempts, nil)
	}

	if a.delay > 0 {
		t := time.NewTimer(a.delay)
		select {
		case <-t.C:
		case <-r.Context().Done():
			t.Stop()
			return a.fail(r, name, module.LoginUnavailable, r.Context().Err())
		}
	}

	user, err := a.dir.Lookup(r.Context(), r.DB(), name)
	switch {
	case errors.Is(err, database.ErrUserNotFound):
		return a.fail(r, name, module.UnknownUser, nil)
	case err != nil:
		return a.fail(r, name, module.LoginUnavailable, err)
	}
	if !user.CheckPassword(password) {
		return a.fail(r, name, module.PasswordsDoNotMatch, nil)
	}

	a.limiter.Reset(name)
	r.Session().Set(module.SessionUserKey, user.Name)
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	log.Info().Str("user", user.Name).Msg("Logged in")
	return nil
}

func (a *Authenticator) fail(r *module.Request, name string, reason module.LoginReason, cause error) error {
	metrics.LoginAttempts.WithLabelValues(string(reason)).Inc()
	ev := logging.Ctx(r.Context()).Warn().Str("user", name).Str("reason", string(reason))
	if cause != nil {
		ev = ev.Err(cause)
	}
	ev.Msg("Login failed")
	return &module.LoginError{Reason: reason, Err: cause}
}
