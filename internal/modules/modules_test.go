// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package modules

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/scuttle/internal/cache"
	"github.com/tomtom215/scuttle/internal/database"
	"github.com/tomtom215/scuttle/internal/jobqueue"
	"github.com/tomtom215/scuttle/internal/module"
	"github.com/tomtom215/scuttle/internal/registry"
)

// privileges is an Authorizer granting a fixed set of privileges to any
// logged in user.
type privileges map[string]bool

func (p privileges) Check(r *module.Request, privilege string) error {
	if r.Username() == "" {
		return &module.PermissionError{Reason: module.NoSession, Privilege: privilege}
	}
	if !p[privilege] {
		return &module.PermissionError{Reason: module.UserLacksPrivilege, Privilege: privilege, User: r.Username()}
	}
	return nil
}

func newRequest(method, target, user string, authz module.Authorizer) *module.Request {
	sess := module.NewMemorySession()
	if user != "" {
		sess.Set(module.SessionUserKey, user)
	}
	r := httptest.NewRequest(method, target, nil)
	return module.NewRequest(r, r.URL.Path, sess, nil, authz)
}

func decode(t *testing.T, resp module.Response, v interface{}) {
	t.Helper()
	if resp == nil {
		t.Fatal("response is nil")
	}
	buf := cache.NewBuffer()
	if err := resp.Write(false, buf); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	buf.Done()
	if err := json.Unmarshal(buf.Body(), v); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.Body(), err)
	}
}

func TestDefinitions(t *testing.T) {
	defs := Definitions(Info{})
	want := map[string]registry.InitPolicy{
		"meta":    registry.Deferred,
		"session": registry.Crucial,
		"jobs":    registry.Normal,
		"ping":    registry.Normal,
	}
	if len(defs) != len(want) {
		t.Fatalf("len(Definitions) = %d, want %d", len(defs), len(want))
	}
	for _, d := range defs {
		policy, ok := want[d.Path]
		if !ok {
			t.Errorf("unexpected definition %q", d.Path)
			continue
		}
		if d.Policy != policy {
			t.Errorf("%s policy = %v, want %v", d.Path, d.Policy, policy)
		}
		if d.New == nil {
			t.Errorf("%s has no constructor", d.Path)
		}
	}
}

func TestDefinitions_LoadWithoutQueue(t *testing.T) {
	reg, report := registry.NewLoader(module.Host{}).Load(context.Background(), Definitions(Info{}))

	if !report.OK() {
		t.Fatalf("Problems = %v", report.Problems)
	}
	if len(report.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one for the jobs module", report.Warnings)
	}
	if _, ok := reg.Lookup("jobs"); ok {
		t.Error("jobs module mounted without a queue")
	}
	for _, p := range []string{"meta", "session", "ping"} {
		if _, ok := reg.Lookup(p); !ok {
			t.Errorf("module %q not mounted", p)
		}
	}
}

func TestLanguage(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		known bool
	}{
		{"de", "de", true},
		{"FR", "fr", true},
		{"de-AT", "de", true},
		{" es_MX ", "es", true},
		{"", "en", false},
		{"xx", "en", false},
	}
	for _, tt := range tests {
		idx, known := language(tt.in)
		if languages[idx].code != tt.want || known != tt.known {
			t.Errorf("language(%q) = %s, %v, want %s, %v", tt.in, languages[idx].code, known, tt.want, tt.known)
		}
	}
}

func TestMeta_CacheTag(t *testing.T) {
	m := NewMeta(module.Host{}, Info{})

	if tag := m.CacheTag(newRequest("GET", "/meta?lang=de", "", nil)); tag != 0 {
		t.Errorf("CacheTag before Loaded = %d, want 0", tag)
	}
	if err := m.Loaded(context.Background()); err != nil {
		t.Fatalf("Loaded() error = %v", err)
	}

	en := m.CacheTag(newRequest("GET", "/meta", "", nil))
	de := m.CacheTag(newRequest("GET", "/meta?lang=de", "", nil))
	deAT := m.CacheTag(newRequest("GET", "/meta?lang=de-AT", "", nil))
	if en == 0 || de == 0 {
		t.Fatalf("CacheTag = %d, %d, want non-zero", en, de)
	}
	if en == de {
		t.Error("en and de share a cache tag")
	}
	if de != deAT {
		t.Errorf("CacheTag(de-AT) = %d, want %d", deAT, de)
	}
	if tag := m.CacheTag(newRequest("POST", "/meta", "", nil)); tag != 0 {
		t.Errorf("CacheTag(POST) = %d, want 0", tag)
	}
}

func TestMeta_Handle(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := NewMeta(module.Host{}, Info{
		Version:   "1.2.3",
		StartedAt: started,
		Mounts:    func() []string { return []string{"meta", "ping"} },
	})

	resp, err := m.Handle(newRequest("GET", "/meta?lang=fr", "", nil))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	var got MetaInfo
	decode(t, resp, &got)

	if got.Name != "scuttle" || got.Version != "1.2.3" {
		t.Errorf("name/version = %s/%s, want scuttle/1.2.3", got.Name, got.Version)
	}
	if got.Lang != "fr" || got.Greeting != "Bienvenue" {
		t.Errorf("lang/greeting = %s/%s, want fr/Bienvenue", got.Lang, got.Greeting)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if len(got.Modules) != 2 || got.Modules[1] != "ping" {
		t.Errorf("Modules = %v, want [meta ping]", got.Modules)
	}

	resp, err = m.Handle(newRequest("DELETE", "/meta", "", nil))
	if err != nil || resp != nil {
		t.Errorf("Handle(DELETE) = %v, %v, want nil, nil", resp, err)
	}
}

func TestMeta_LoadedReadsSchemaVersion(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "meta.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	want, err := db.SchemaVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}

	m := NewMeta(module.Host{DB: db}, Info{})
	if err := m.Loaded(ctx); err != nil {
		t.Fatalf("Loaded() error = %v", err)
	}
	resp, _ := m.Handle(newRequest("GET", "/meta", "", nil))
	var got MetaInfo
	decode(t, resp, &got)
	if got.SchemaVersion != want {
		t.Errorf("SchemaVersion = %d, want %d", got.SchemaVersion, want)
	}
}

func TestSession(t *testing.T) {
	s := NewSession(module.Host{})
	authz := privileges{PrivilegeSessionView: true}

	_, err := s.Handle(newRequest("GET", "/session", "", authz))
	var perm *module.PermissionError
	if !errors.As(err, &perm) || perm.Reason != module.NoSession {
		t.Fatalf("Handle() without login error = %v, want NO_SESSION", err)
	}

	resp, err := s.Handle(newRequest("GET", "/session", "alice", authz))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	var got SessionInfo
	decode(t, resp, &got)
	if got.Username != "alice" || !got.LoggedIn {
		t.Errorf("SessionInfo = %+v, want alice logged in", got)
	}
	if s.CacheTag(newRequest("GET", "/session", "alice", authz)) != 0 {
		t.Error("session responses must not be cached")
	}
}

func TestJobs(t *testing.T) {
	q := jobqueue.New()
	t.Cleanup(func() { q.StopSilently() })
	noop := func(context.Context) error { return nil }
	q.SubmitAfter(jobqueue.NewFunc("optimize database", noop), time.Hour)
	q.Repeat(jobqueue.NewFunc("prune login limiter", noop), 10*time.Minute)
	q.SubmitAfter(jobqueue.NewFunc("send digest", noop), 2*time.Hour)

	j, err := NewJobs(module.Host{Jobs: q})
	if err != nil {
		t.Fatalf("NewJobs() error = %v", err)
	}

	tests := []struct {
		name     string
		target   string
		user     string
		authz    privileges
		wantErr  module.PermissionReason
		wantJobs []string
	}{
		{
			name:    "anonymous",
			target:  "/jobs",
			authz:   privileges{PrivilegeJobsView: true},
			wantErr: module.NoSession,
		},
		{
			name:    "lacks privilege",
			target:  "/jobs",
			user:    "bob",
			authz:   privileges{},
			wantErr: module.UserLacksPrivilege,
		},
		{
			name:     "full schedule",
			target:   "/jobs",
			user:     "alice",
			authz:    privileges{PrivilegeJobsView: true},
			wantJobs: []string{"prune login limiter", "optimize database", "send digest"},
		},
		{
			name:     "limited",
			target:   "/jobs?limit=1",
			user:     "alice",
			authz:    privileges{PrivilegeJobsView: true},
			wantJobs: []string{"prune login limiter"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := j.Handle(newRequest("GET", tt.target, tt.user, tt.authz))
			if tt.wantErr != "" {
				var perm *module.PermissionError
				if !errors.As(err, &perm) || perm.Reason != tt.wantErr {
					t.Fatalf("Handle() error = %v, want %s", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			var got JobList
			decode(t, resp, &got)
			if len(got.Jobs) != len(tt.wantJobs) {
				t.Fatalf("len(Jobs) = %d, want %d", len(got.Jobs), len(tt.wantJobs))
			}
			for i, c := range tt.wantJobs {
				if got.Jobs[i].Comment != c {
					t.Errorf("Jobs[%d] = %q, want %q", i, got.Jobs[i].Comment, c)
				}
			}
			if got.Jobs[0].RepeatMs != (10 * time.Minute).Milliseconds() {
				t.Errorf("RepeatMs = %d, want %d", got.Jobs[0].RepeatMs, (10 * time.Minute).Milliseconds())
			}
		})
	}
}

func TestNewJobs_RequiresQueue(t *testing.T) {
	if _, err := NewJobs(module.Host{}); !errors.Is(err, ErrNoJobQueue) {
		t.Errorf("NewJobs() error = %v, want ErrNoJobQueue", err)
	}
}

func TestPing(t *testing.T) {
	fixed := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	p := NewPing(module.Host{})
	p.now = func() time.Time { return fixed }

	resp, err := p.Handle(newRequest("POST", "/ping/a/b", "", nil))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	var got Pong
	decode(t, resp, &got)
	if !got.Pong || got.Method != "POST" || got.Path != "a/b" || !got.Time.Equal(fixed) {
		t.Errorf("Pong = %+v", got)
	}
	if p.CacheTag(newRequest("GET", "/ping", "", nil)) != 0 {
		t.Error("ping must not be cached")
	}
}
