// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/scuttle/internal/database"
	"github.com/tomtom215/scuttle/internal/logging"
	"github.com/tomtom215/scuttle/internal/metrics"
)

// ErrDirectoryUnavailable is returned while the user store circuit is open.
var ErrDirectoryUnavailable = errors.New("auth: user directory unavailable")

// UserStore is the subset of database.Users the directory needs.
type UserStore interface {
	Lookup(ctx context.Context, q database.Querier, name string) (*database.User, error)
}

// BreakerConfig tunes the user store circuit breaker.
type BreakerConfig struct {
	// MinRequests is the number of calls in Interval before the failure
	// ratio is considered.
	MinRequests  uint32
	FailureRatio float64
	Interval     time.Duration
	// Timeout is how long the circuit stays open before probing again.
	Timeout time.Duration
}

// DefaultBreakerConfig opens after 60% failures with at least 10 calls.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MinRequests:  10,
		FailureRatio: 0.6,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
	}
}

// Directory looks users up through a circuit breaker.
type Directory struct {
	users UserStore
	cb    *gobreaker.CircuitBreaker[*database.User]
	name  string
}

// NewDirectory wraps users with a circuit breaker.
// A missing user is a successful lookup as far as the breaker is concerned.
func NewDirectory(users UserStore, cfg BreakerConfig) *Directory {
	name := "user-store"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[*database.User](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= cfg.FailureRatio {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", ratio*100).Msg("[CIRCUIT BREAKER] Opening user store circuit")
				return true
			}
			return false
		},

		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, database.ErrUserNotFound)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &Directory{users: users, cb: cb, name: name}
}

// Lookup finds a user through scope, or through the pool when scope is nil.
func (d *Directory) Lookup(ctx context.Context, scope *database.Scope, name string) (*database.User, error) {
	user, err := d.cb.Execute(func() (*database.User, error) {
		var q database.Querier
		if scope != nil {
			var err error
			if q, err = scope.Querier(ctx); err != nil {
				return nil, err
			}
		}
		return d.users.Lookup(ctx, q, name)
	})

	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(d.name, "success").Inc()
		return user, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(d.name, "rejected").Inc()
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	case errors.Is(err, database.ErrUserNotFound):
		metrics.CircuitBreakerRequests.WithLabelValues(d.name, "success").Inc()
		return nil, err
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(d.name, "failure").Inc()
		return nil, err
	}
}

// State returns the breaker state as a string.
func (d *Directory) State() string {
	return stateToString(d.cb.State())
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
