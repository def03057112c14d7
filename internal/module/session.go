// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package module

import "sync"

// SessionUserKey is the session key holding the logged in user name.
const SessionUserKey = "username"

// Session is the per-client key/value store a request can read and modify.
type Session interface {
	Get(key string) string
	Set(key, value string)
	Delete(key string)
}

// MemorySession is a Session backed by a map. It is used where no cookie
// store is configured and in tests.
type MemorySession struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemorySession returns an empty session.
func NewMemorySession() *MemorySession {
	return &MemorySession{values: make(map[string]string)}
}

func (s *MemorySession) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

func (s *MemorySession) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *MemorySession) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}
