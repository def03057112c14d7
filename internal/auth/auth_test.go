// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/scuttle/internal/authz"
	"github.com/tomtom215/scuttle/internal/database"
	"github.com/tomtom215/scuttle/internal/module"
)

// fakeUsers is an in-memory UserStore.
type fakeUsers struct {
	users map[string]*database.User
	err   error
	calls atomic.Int32
}

func (f *fakeUsers) Lookup(_ context.Context, _ database.Querier, name string) (*database.User, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[name]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	return u, nil
}

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(h)
}

func newFakeUsers(t *testing.T) *fakeUsers {
	return &fakeUsers{users: map[string]*database.User{
		"alice": {Name: "alice", PasswordHash: hash(t, "wonderland"), Role: "user"},
		"root":  {Name: "root", PasswordHash: hash(t, "toor"), Role: AdminRole},
		"ed":    {Name: "ed", PasswordHash: hash(t, "x"), Role: "editor", Privileges: []string{"reports.export"}},
	}}
}

func newRequest(params url.Values, sess module.Session, authz module.Authorizer) *module.Request {
	hr := httptest.NewRequest("GET", "/backend/x?"+params.Encode(), nil)
	return module.NewRequest(hr, "/x", sess, nil, authz)
}

func loginReason(t *testing.T, err error) module.LoginReason {
	t.Helper()
	var le *module.LoginError
	if !errors.As(err, &le) {
		t.Fatalf("error = %v, want *module.LoginError", err)
	}
	return le.Reason
}

func TestAuthenticator_Login(t *testing.T) {
	a := NewAuthenticator(NewDirectory(newFakeUsers(t), DefaultBreakerConfig()), LoginConfig{})

	tests := []struct {
		name   string
		params url.Values
		want   module.LoginReason
	}{
		{"no password", url.Values{"loginName": {"alice"}}, module.NoPasswordGiven},
		{"unknown user", url.Values{"loginName": {"mallory"}, "loginPassword": {"x"}}, module.UnknownUser},
		{"wrong password", url.Values{"loginName": {"alice"}, "loginPassword": {"nope"}}, module.PasswordsDoNotMatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRequest(tt.params, nil, nil)
			if got := loginReason(t, a.Login(r)); got != tt.want {
				t.Errorf("reason = %s, want %s", got, tt.want)
			}
			if r.Username() != "" {
				t.Error("failed login stored a user")
			}
		})
	}

	t.Run("success", func(t *testing.T) {
		r := newRequest(url.Values{"loginName": {"alice"}, "loginPassword": {"wonderland"}}, nil, nil)
		if err := a.Login(r); err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if r.Username() != "alice" {
			t.Errorf("Username() = %q, want alice", r.Username())
		}
	})

	t.Run("not a login attempt", func(t *testing.T) {
		sess := module.NewMemorySession()
		sess.Set(module.SessionUserKey, "alice")
		r := newRequest(url.Values{"page": {"1"}}, sess, nil)
		if err := a.Login(r); err != nil {
			t.Errorf("Login() error = %v", err)
		}
		if r.Username() != "alice" {
			t.Error("plain request changed the session")
		}
	})
}

func TestAuthenticator_Logout(t *testing.T) {
	a := NewAuthenticator(NewDirectory(newFakeUsers(t), DefaultBreakerConfig()), LoginConfig{})
	sess := module.NewMemorySession()
	sess.Set(module.SessionUserKey, "alice")

	r := newRequest(url.Values{"logout": {""}}, sess, nil)
	if err := a.Login(r); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if r.Username() != "" {
		t.Errorf("Username() after logout = %q", r.Username())
	}
}

func TestAuthenticator_Throttle(t *testing.T) {
	a := NewAuthenticator(NewDirectory(newFakeUsers(t), DefaultBreakerConfig()),
		LoginConfig{Attempts: 2, Window: time.Hour})
	bad := url.Values{"loginName": {"alice"}, "loginPassword": {"nope"}}

	for i := 0; i < 2; i++ {
		if got := loginReason(t, a.Login(newRequest(bad, nil, nil))); got != module.PasswordsDoNotMatch {
			t.Fatalf("attempt %d reason = %s", i+1, got)
		}
	}
	if got := loginReason(t, a.Login(newRequest(bad, nil, nil))); got != module.TooManyAttempts {
		t.Errorf("third attempt reason = %s, want TOO_MANY_ATTEMPTS", got)
	}

	// other names are unaffected
	other := url.Values{"loginName": {"root"}, "loginPassword": {"toor"}}
	if err := a.Login(newRequest(other, nil, nil)); err != nil {
		t.Errorf("Login(root) error = %v", err)
	}
}

func TestAuthenticator_StoreFailure(t *testing.T) {
	down := errors.New("disk I/O error")
	users := &fakeUsers{err: down}
	a := NewAuthenticator(NewDirectory(users, DefaultBreakerConfig()), LoginConfig{})

	err := a.Login(newRequest(url.Values{"loginName": {"alice"}, "loginPassword": {"x"}}, nil, nil))
	if got := loginReason(t, err); got != module.LoginUnavailable {
		t.Errorf("reason = %s, want LOGIN_UNAVAILABLE", got)
	}
	if !errors.Is(err, down) {
		t.Error("LoginError does not wrap the store error")
	}
}

func TestAuthenticator_DelayHonoursContext(t *testing.T) {
	a := NewAuthenticator(NewDirectory(newFakeUsers(t), DefaultBreakerConfig()), LoginConfig{Delay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hr := httptest.NewRequest("GET", "/backend/x?loginName=alice&loginPassword=wonderland", nil).WithContext(ctx)
	r := module.NewRequest(hr, "/x", nil, nil, nil)

	start := time.Now()
	err := a.Login(r)
	if got := loginReason(t, err); got != module.LoginUnavailable {
		t.Errorf("reason = %s, want LOGIN_UNAVAILABLE", got)
	}
	if time.Since(start) > time.Second {
		t.Error("Login ignored context cancellation")
	}
}

func TestAuthenticator_Delay(t *testing.T) {
	a := NewAuthenticator(NewDirectory(newFakeUsers(t), DefaultBreakerConfig()), LoginConfig{Delay: 50 * time.Millisecond})

	start := time.Now()
	_ = a.Login(newRequest(url.Values{"loginName": {"alice"}, "loginPassword": {"wonderland"}}, nil, nil))
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Login returned after %v, want >= 50ms", elapsed)
	}
}

func TestAuthorizer_Check(t *testing.T) {
	enforcer, err := authz.NewEnforcer(nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(enforcer.Close)
	az := NewAuthorizer(NewDirectory(newFakeUsers(t), DefaultBreakerConfig()), enforcer)

	tests := []struct {
		name      string
		user      string
		privilege string
		want      module.PermissionReason // "" means allowed
	}{
		{"no session", "", "session.view", module.NoSession},
		{"deleted user", "ghost", "session.view", module.SessionUserNotInDatabase},
		{"admin bypass", "root", "anything.at.all", ""},
		{"direct privilege", "ed", "reports.export", ""},
		{"role policy", "ed", "jobs.view", ""},
		{"inherited role policy", "ed", "session.view", ""},
		{"lacks privilege", "alice", "jobs.view", module.UserLacksPrivilege},
		{"user role policy", "alice", "session.view", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := module.NewMemorySession()
			if tt.user != "" {
				sess.Set(module.SessionUserKey, tt.user)
			}
			r := newRequest(nil, sess, az)
			err := r.Check(tt.privilege)

			if tt.want == "" {
				if err != nil {
					t.Errorf("Check(%s) = %v, want nil", tt.privilege, err)
				}
				return
			}
			var pe *module.PermissionError
			if !errors.As(err, &pe) {
				t.Fatalf("Check(%s) = %v, want PermissionError", tt.privilege, err)
			}
			if pe.Reason != tt.want {
				t.Errorf("reason = %s, want %s", pe.Reason, tt.want)
			}
		})
	}
}

func TestAuthorizer_StoreErrorIsNotDenial(t *testing.T) {
	az := NewAuthorizer(NewDirectory(&fakeUsers{err: errors.New("locked")}, DefaultBreakerConfig()), nil)
	sess := module.NewMemorySession()
	sess.Set(module.SessionUserKey, "alice")

	err := newRequest(nil, sess, az).Check("session.view")
	if err == nil || module.IsPermissionError(err) {
		t.Errorf("Check() = %v, want a non-permission error", err)
	}
}

func TestDirectory_BreakerOpens(t *testing.T) {
	users := &fakeUsers{err: errors.New("database is locked")}
	dir := NewDirectory(users, BreakerConfig{MinRequests: 3, FailureRatio: 0.5, Interval: time.Minute, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := dir.Lookup(ctx, nil, "alice"); errors.Is(err, ErrDirectoryUnavailable) {
			t.Fatalf("call %d rejected before the breaker tripped", i+1)
		}
	}
	if dir.State() != "open" {
		t.Fatalf("State() = %s, want open", dir.State())
	}

	_, err := dir.Lookup(ctx, nil, "alice")
	if !errors.Is(err, ErrDirectoryUnavailable) {
		t.Errorf("Lookup() with open breaker = %v, want ErrDirectoryUnavailable", err)
	}
	if users.calls.Load() != 3 {
		t.Errorf("store calls = %d, want 3", users.calls.Load())
	}
}

func TestDirectory_NotFoundDoesNotTrip(t *testing.T) {
	users := &fakeUsers{users: map[string]*database.User{}}
	dir := NewDirectory(users, BreakerConfig{MinRequests: 2, FailureRatio: 0.5, Interval: time.Minute, Timeout: time.Minute})

	for i := 0; i < 5; i++ {
		if _, err := dir.Lookup(context.Background(), nil, "nobody"); !errors.Is(err, database.ErrUserNotFound) {
			t.Fatalf("Lookup() error = %v", err)
		}
	}
	if dir.State() != "closed" {
		t.Errorf("State() = %s, want closed", dir.State())
	}
}
