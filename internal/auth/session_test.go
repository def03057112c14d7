// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/scuttle/internal/module"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setupSessionStore(t *testing.T) *SessionStore {
	t.Helper()
	s, err := NewSessionStore(SessionConfig{CookieName: "sid", Secret: testSecret, MaxAge: time.Hour})
	if err != nil {
		t.Fatalf("NewSessionStore() error = %v", err)
	}
	return s
}

func TestSessionStore_RoundTrip(t *testing.T) {
	store := setupSessionStore(t)

	r := httptest.NewRequest("GET", "/backend/x", nil)
	sess := store.Load(r)
	if sess.Get(module.SessionUserKey) != "" {
		t.Fatal("new session is not empty")
	}
	sess.Set(module.SessionUserKey, "alice")

	w := httptest.NewRecorder()
	if err := store.Save(w, r, sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "sid" {
		t.Fatalf("cookies = %v, want one named sid", cookies)
	}
	if !cookies[0].HttpOnly {
		t.Error("session cookie is not HttpOnly")
	}
	if sess.(*Session).Dirty() {
		t.Error("session still dirty after Save")
	}

	next := httptest.NewRequest("GET", "/backend/x", nil)
	next.AddCookie(cookies[0])
	if got := store.Load(next).Get(module.SessionUserKey); got != "alice" {
		t.Errorf("reloaded user = %q, want alice", got)
	}
}

func TestSessionStore_UnchangedSessionNotWritten(t *testing.T) {
	store := setupSessionStore(t)
	r := httptest.NewRequest("GET", "/", nil)
	sess := store.Load(r)

	sess.Delete("absent")
	w := httptest.NewRecorder()
	if err := store.Save(w, r, sess); err != nil {
		t.Fatal(err)
	}
	if h := w.Header().Get("Set-Cookie"); h != "" {
		t.Errorf("Set-Cookie = %q, want none", h)
	}
}

func TestSessionStore_TamperedCookie(t *testing.T) {
	store := setupSessionStore(t)
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: "sid", Value: "not-a-valid-cookie"})

	sess := store.Load(r)
	if sess.Get(module.SessionUserKey) != "" {
		t.Error("tampered cookie produced a user")
	}
}

func TestSessionStore_ForeignKeyRejected(t *testing.T) {
	store := setupSessionStore(t)
	other, err := NewSessionStore(SessionConfig{CookieName: "sid", Secret: strings.Repeat("z", 32)})
	if err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest("GET", "/", nil)
	sess := other.Load(r)
	sess.Set(module.SessionUserKey, "root")
	w := httptest.NewRecorder()
	_ = other.Save(w, r, sess)

	forged := httptest.NewRequest("GET", "/", nil)
	forged.AddCookie(w.Result().Cookies()[0])
	if got := store.Load(forged).Get(module.SessionUserKey); got != "" {
		t.Errorf("cookie signed with another key accepted: user %q", got)
	}
}

func TestNewSessionStore_Secrets(t *testing.T) {
	if _, err := NewSessionStore(SessionConfig{Secret: "short"}); !errors.Is(err, ErrWeakSecret) {
		t.Errorf("short secret error = %v, want ErrWeakSecret", err)
	}
	s, err := NewSessionStore(SessionConfig{})
	if err != nil {
		t.Fatalf("empty secret error = %v", err)
	}
	if s.name != "scuttle_session" {
		t.Errorf("default cookie name = %q", s.name)
	}
}
