// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/tomtom215/scuttle/internal/dispatch"
	"github.com/tomtom215/scuttle/internal/jobqueue"
	"github.com/tomtom215/scuttle/internal/module"
	"github.com/tomtom215/scuttle/internal/registry"
)

const testUserHeader = "X-Test-User"

// headerSessions puts the user named in X-Test-User into the session.
type headerSessions struct{}

func (headerSessions) Load(r *http.Request) module.Session {
	s := module.NewMemorySession()
	if u := r.Header.Get(testUserHeader); u != "" {
		s.Set(module.SessionUserKey, u)
	}
	return s
}

func (headerSessions) Save(http.ResponseWriter, *http.Request, module.Session) error { return nil }

// grantAuthorizer grants privileges per user.
type grantAuthorizer map[string][]string

func (g grantAuthorizer) Check(r *module.Request, privilege string) error {
	user := r.Username()
	if user == "" {
		return &module.PermissionError{Reason: module.NoSession, Privilege: privilege}
	}
	for _, p := range g[user] {
		if p == privilege {
			return nil
		}
	}
	return &module.PermissionError{Reason: module.UserLacksPrivilege, Privilege: privilege, User: user}
}

type pingModule struct {
	module.Base
}

func (pingModule) CacheTag(*module.Request) int64 { return 1 }

func (pingModule) Handle(r *module.Request) (module.Response, error) {
	return module.Text("pong " + r.Tail), nil
}

type fixture struct {
	handler http.Handler
	d       *dispatch.Dispatcher
	jobs    *jobqueue.Queue
}

func newFixture(t *testing.T, mw *ChiMiddlewareConfig, problems ...string) *fixture {
	t.Helper()
	reg := registry.New()
	if err := reg.Register("ping", pingModule{}); err != nil {
		t.Fatal(err)
	}
	sessions := headerSessions{}
	authz := grantAuthorizer{
		"viewer":   {"modules.view", "cache.view", "jobs.view"},
		"operator": {"modules.view", "modules.manage", "cache.view", "cache.evict", "jobs.view", "jobs.manage"},
	}
	d := dispatch.New(reg, dispatch.Config{Prefix: "/backend", CacheEnabled: true},
		dispatch.Options{Sessions: sessions, Authz: authz, Problems: problems})

	q := jobqueue.New()
	q.Start()
	t.Cleanup(func() { q.Stop() })

	h := NewHandler(Deps{Dispatcher: d, Jobs: q, Sessions: sessions, Authz: authz})
	return &fixture{
		handler: NewRouter(h, NewChiMiddleware(mw), "backend/").Setup(),
		d:       d,
		jobs:    q,
	}
}

func (f *fixture) do(method, target, user, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if user != "" {
		req.Header.Set(testUserHeader, user)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (APIResponse, map[string]interface{}) {
	t.Helper()
	var env APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid envelope %q: %v", rec.Body, err)
	}
	data, _ := env.Data.(map[string]interface{})
	return env, data
}

func TestRouter_Backend(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/backend/ping/a", "", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "pong a" {
		t.Errorf("GET /backend/ping/a = %d %q", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID missing")
	}
	if rec := f.do(http.MethodGet, "/backend/nope", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown module status = %d, want 404", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/backend/ping", "", ""); rec.Code != http.StatusOK {
		t.Errorf("POST status = %d, want 200", rec.Code)
	}
}

func TestRouter_Health(t *testing.T) {
	f := newFixture(t, nil)

	if rec := f.do(http.MethodGet, "/healthz/live", "", ""); rec.Code != http.StatusOK {
		t.Errorf("live = %d", rec.Code)
	}
	rec := f.do(http.MethodGet, "/healthz/ready", "", "")
	env, data := decodeEnvelope(t, rec)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("ready = %d %s", rec.Code, rec.Body)
	}
	if data["job_queue"] != "running" || data["database"] != "disabled" {
		t.Errorf("ready data = %v", data)
	}

	f.jobs.Stop()
	if rec := f.do(http.MethodGet, "/healthz/ready", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready with stopped queue = %d, want 503", rec.Code)
	}
}

func TestRouter_HealthBroken(t *testing.T) {
	f := newFixture(t, nil, "module x: no constructor")
	if rec := f.do(http.MethodGet, "/healthz/ready", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready in broken mode = %d, want 503", rec.Code)
	}
}

func TestRouter_Metrics(t *testing.T) {
	f := newFixture(t, nil)
	f.do(http.MethodGet, "/backend/ping", "", "")

	rec := f.do(http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "scuttle_http_requests_total") {
		t.Error("metrics output lacks scuttle_http_requests_total")
	}
}

func TestRouter_AdminAuthorization(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		want   int
	}{
		{"no session", http.MethodGet, "/admin/modules", "", http.StatusUnauthorized},
		{"unknown grant", http.MethodGet, "/admin/modules", "nobody", http.StatusForbidden},
		{"viewer lists modules", http.MethodGet, "/admin/modules", "viewer", http.StatusOK},
		{"viewer cannot evict", http.MethodPost, "/admin/cache/evict", "viewer", http.StatusForbidden},
		{"viewer cannot pause", http.MethodPost, "/admin/jobs/pause", "viewer", http.StatusForbidden},
		{"operator pauses", http.MethodPost, "/admin/jobs/pause", "operator", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.method, tt.path, tt.user, "")
			if rec.Code != tt.want {
				t.Errorf("%s %s as %q = %d, want %d: %s", tt.method, tt.path, tt.user, rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestRouter_AdminModules(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/admin/modules", "viewer", "")

	var env struct {
		Data []ModuleInfo `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if len(env.Data) != 1 || env.Data[0].Path != "ping" || env.Data[0].Type != "api.pingModule" {
		t.Errorf("modules = %+v", env.Data)
	}
}

func TestRouter_UnmountModule(t *testing.T) {
	f := newFixture(t, nil)

	if rec := f.do(http.MethodDelete, "/admin/modules/ping", "viewer", ""); rec.Code != http.StatusForbidden {
		t.Errorf("viewer unmount = %d, want 403", rec.Code)
	}
	if rec := f.do(http.MethodDelete, "/admin/modules/nope", "operator", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unmount unknown = %d, want 404", rec.Code)
	}

	rec := f.do(http.MethodDelete, "/admin/modules/ping", "operator", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unmount = %d, want 200: %s", rec.Code, rec.Body)
	}
	_, data := decodeEnvelope(t, rec)
	if data["unmounted"] != "ping" {
		t.Errorf("unmounted = %v, want ping", data["unmounted"])
	}
	if rec := f.do(http.MethodGet, "/backend/ping", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET unmounted module = %d, want 404", rec.Code)
	}
}

func TestRouter_CacheEvict(t *testing.T) {
	f := newFixture(t, nil)
	f.do(http.MethodGet, "/backend/ping", "", "")

	rec := f.do(http.MethodGet, "/admin/cache", "viewer", "")
	_, data := decodeEnvelope(t, rec)
	if data["enabled"] != true {
		t.Errorf("cache data = %v", data)
	}

	tests := []struct {
		name    string
		body    string
		want    int
		evicted float64
	}{
		{"bad mount path", `{"module":"a/b"}`, http.StatusBadRequest, 0},
		{"unknown field", `{"modul":"ping"}`, http.StatusBadRequest, 0},
		{"unknown module", `{"module":"nope"}`, http.StatusNotFound, 0},
		{"one module", `{"module":"ping"}`, http.StatusOK, 1},
		{"everything", ``, http.StatusOK, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/admin/cache/evict", "operator", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
			if tt.want != http.StatusOK {
				return
			}
			_, data := decodeEnvelope(t, rec)
			if data["evicted"] != tt.evicted {
				t.Errorf("evicted = %v, want %v", data["evicted"], tt.evicted)
			}
		})
	}
}

func TestRouter_Jobs(t *testing.T) {
	f := newFixture(t, nil)
	f.jobs.Repeat(jobqueue.NewFunc("prune login attempts", func(context.Context) error { return nil }), time.Hour)

	rec := f.do(http.MethodGet, "/admin/jobs", "viewer", "")
	var env struct {
		Data JobsStatus `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	st := env.Data
	if !st.Started || st.Paused || len(st.Pending) != 1 {
		t.Fatalf("jobs = %+v", st)
	}
	if st.Pending[0].Comment != "prune login attempts" || st.Pending[0].RepeatMs != time.Hour.Milliseconds() {
		t.Errorf("pending = %+v", st.Pending[0])
	}

	_, data := decodeEnvelope(t, f.do(http.MethodPost, "/admin/jobs/pause", "operator", ""))
	if data["changed"] != true || data["paused"] != true {
		t.Errorf("pause = %v", data)
	}
	_, data = decodeEnvelope(t, f.do(http.MethodPost, "/admin/jobs/pause", "operator", ""))
	if data["changed"] != false {
		t.Errorf("second pause = %v", data)
	}
	_, data = decodeEnvelope(t, f.do(http.MethodPost, "/admin/jobs/resume", "operator", ""))
	if data["changed"] != true || data["paused"] != false {
		t.Errorf("resume = %v", data)
	}
}

func TestRouter_AdminCompression(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/admin/modules", nil)
	req.Header.Set(testUserHeader, "viewer")
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q", rec.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(zr)
	if !strings.Contains(string(body), `"path":"ping"`) {
		t.Errorf("inflated body = %s", body)
	}
}

func TestRouter_RateLimit(t *testing.T) {
	f := newFixture(t, &ChiMiddlewareConfig{RateLimitRequests: 2, RateLimitWindow: time.Minute})

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = f.do(http.MethodGet, "/backend/ping", "", "").Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}
	// health checks are not limited
	if rec := f.do(http.MethodGet, "/healthz/live", "", ""); rec.Code != http.StatusOK {
		t.Errorf("live after limit = %d", rec.Code)
	}
}

func TestRouter_CORS(t *testing.T) {
	f := newFixture(t, &ChiMiddlewareConfig{
		CORSAllowedOrigins: []string{"https://app.example"},
		CORSAllowedMethods: []string{"GET", "POST"},
		RateLimitWindow:    time.Minute,
	})
	req := httptest.NewRequest(http.MethodOptions, "/backend/ping", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("credentials not allowed")
	}
}
