// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/scuttle/internal/jobqueue"
	"github.com/tomtom215/scuttle/internal/logging"
)

// Limiter throttles login attempts per user name with a token bucket.
// A nil *Limiter allows everything.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewLimiter allows attempts tries in a burst, refilling one try per
// window. It returns nil, disabling throttling, when attempts <= 0.
func NewLimiter(attempts int, window time.Duration) *Limiter {
	if attempts <= 0 || window <= 0 {
		return nil
	}
	return &Limiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Every(window),
		burst:    attempts,
	}
}

// Allow consumes one attempt for key.
func (l *Limiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastAccess = time.Now()
	limiter := entry.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

// Reset forgets key, restoring its full burst.
func (l *Limiter) Reset(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.limiters, key)
	l.mu.Unlock()
}

// Prune removes limiters not used within maxIdle and returns how many
// were removed.
func (l *Limiter) Prune(maxIdle time.Duration) int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	threshold := time.Now().Add(-maxIdle)
	removed := 0
	for key, entry := range l.limiters {
		if entry.lastAccess.Before(threshold) {
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// PruneJob returns a job that calls Prune, for use with jobqueue.Repeat.
func (l *Limiter) PruneJob(maxIdle time.Duration) jobqueue.Job {
	return jobqueue.NewFunc("prune login limiters", func(context.Context) error {
		if n := l.Prune(maxIdle); n > 0 {
			logging.Debug().Int("removed", n).Msg("Pruned idle login limiters")
		}
		return nil
	})
}
