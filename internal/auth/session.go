// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"github.com/tomtom215/scuttle/internal/logging"
	"github.com/tomtom215/scuttle/internal/module"
)

// SessionConfig configures the cookie session store.
type SessionConfig struct {
	CookieName string
	// Secret signs the cookie. At least 32 bytes; when empty a random key is
	// generated and sessions do not survive a restart.
	Secret string
	MaxAge time.Duration
	Secure bool
}

// ErrWeakSecret is returned for session secrets shorter than 32 bytes.
var ErrWeakSecret = errors.New("auth: session secret must be at least 32 bytes")

// SessionStore loads and saves sessions kept in a signed cookie.
type SessionStore struct {
	store *sessions.CookieStore
	name  string
}

// NewSessionStore creates a store from cfg.
func NewSessionStore(cfg SessionConfig) (*SessionStore, error) {
	key := []byte(cfg.Secret)
	switch {
	case len(key) == 0:
		key = securecookie.GenerateRandomKey(32)
		logging.Warn().Msg("No session secret configured, sessions will not survive a restart")
	case len(key) < 32:
		return nil, ErrWeakSecret
	}

	name := cfg.CookieName
	if name == "" {
		name = "scuttle_session"
	}

	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	// also bounds the signed timestamp inside the cookie; 0 means no limit
	store.MaxAge(int(cfg.MaxAge / time.Second))
	return &SessionStore{store: store, name: name}, nil
}

// Load returns the session carried by r, or a new empty session when r has
// no valid cookie.
func (s *SessionStore) Load(r *http.Request) module.Session {
	raw, err := s.store.New(r, s.name)
	if err != nil {
		// tampered or expired cookie; start over
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Discarding invalid session cookie")
	}
	return &Session{raw: raw}
}

// Save writes the session cookie if the session changed. Sessions not
// created by Load are ignored.
func (s *SessionStore) Save(w http.ResponseWriter, r *http.Request, ms module.Session) error {
	sess, ok := ms.(*Session)
	if !ok || sess == nil || !sess.Dirty() {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := s.store.Save(r, w, sess.raw); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	sess.dirty = false
	return nil
}

// Session is a cookie-backed module.Session.
type Session struct {
	mu    sync.Mutex
	raw   *sessions.Session
	dirty bool
}

func (s *Session) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _ := s.raw.Values[key].(string)
	return v
}

func (s *Session) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.raw.Values[key].(string); ok && cur == value {
		return
	}
	s.raw.Values[key] = value
	s.dirty = true
}

func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.raw.Values[key]; !ok {
		return
	}
	delete(s.raw.Values, key)
	s.dirty = true
}

// Dirty reports whether the session changed since it was loaded or saved.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}
