// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package registry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/scuttle/internal/jobqueue"
	"github.com/tomtom215/scuttle/internal/module"
)

func define(path string, policy InitPolicy, m *stubModule, err error) Definition {
	return Definition{
		Path:   path,
		Policy: policy,
		New: func(module.Host) (module.Module, error) {
			if err != nil {
				return nil, err
			}
			return m, nil
		},
	}
}

func TestLoader_Policies(t *testing.T) {
	ctx := context.Background()
	normal := &stubModule{}
	crucial := &stubModule{}
	failingLoad := &stubModule{loadErr: errors.New("no templates")}
	crucialLoad := &stubModule{loadErr: errors.New("no schema")}

	defs := []Definition{
		define("normal", Normal, normal, nil),
		define("crucial", Crucial, crucial, nil),
		define("broken", Normal, nil, errors.New("bad config")),
		define("vital", Crucial, nil, errors.New("missing key")),
		define("soft", Normal, failingLoad, nil),
		define("hard", Crucial, crucialLoad, nil),
		define("normal", Normal, &stubModule{}, nil),
	}

	reg, report := NewLoader(module.Host{}).Load(ctx, defs)

	if normal.loads.Load() != 1 || crucial.loads.Load() != 1 {
		t.Error("Loaded not called once on healthy modules")
	}
	if _, ok := reg.Lookup("broken"); ok {
		t.Error("module with failed constructor was mounted")
	}
	if _, ok := reg.Lookup("soft"); !ok {
		t.Error("module with failed normal load should stay mounted")
	}

	if len(report.Problems) != 3 {
		t.Errorf("Problems = %v, want 3 (vital, hard, duplicate)", report.Problems)
	}
	if len(report.Warnings) != 2 {
		t.Errorf("Warnings = %v, want 2 (broken, soft)", report.Warnings)
	}
	if report.OK() {
		t.Error("OK() = true with problems")
	}
	joined := strings.Join(report.Problems, "\n")
	for _, want := range []string{"vital", "hard", "already registered"} {
		if !strings.Contains(joined, want) {
			t.Errorf("problems missing %q: %v", want, report.Problems)
		}
	}
}

func TestLoader_ConstructorPanic(t *testing.T) {
	defs := []Definition{{
		Path:   "panicky",
		Policy: Crucial,
		New:    func(module.Host) (module.Module, error) { panic("nil map") },
	}}
	_, report := NewLoader(module.Host{}).Load(context.Background(), defs)
	if len(report.Problems) != 1 || !strings.Contains(report.Problems[0], "panicked") {
		t.Errorf("Problems = %v", report.Problems)
	}
}

func TestLoader_DeferredRunsOnQueue(t *testing.T) {
	q := jobqueue.New()
	m := &stubModule{}

	reg, report := NewLoader(module.Host{Jobs: q}).Load(context.Background(),
		[]Definition{define("lazy", Deferred, m, nil)})

	if !report.OK() {
		t.Fatalf("Problems = %v", report.Problems)
	}
	if _, ok := reg.Lookup("lazy"); !ok {
		t.Fatal("deferred module not mounted")
	}
	if m.loads.Load() != 0 {
		t.Fatal("deferred Loaded ran before the queue started")
	}
	if q.Len() != 1 {
		t.Fatalf("queue Len() = %d, want 1", q.Len())
	}

	q.Start()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.WaitStop(ctx); err != nil {
		t.Fatalf("WaitStop() error = %v", err)
	}
	if m.loads.Load() != 1 {
		t.Errorf("deferred Loaded calls = %d, want 1", m.loads.Load())
	}
}

func TestLoader_DeferredFailureIsNotAProblem(t *testing.T) {
	m := &stubModule{loadErr: errors.New("slow backend")}
	_, report := NewLoader(module.Host{}).Load(context.Background(),
		[]Definition{define("lazy", Deferred, m, nil)})

	if m.loads.Load() != 1 {
		t.Errorf("Loaded calls without queue = %d, want 1", m.loads.Load())
	}
	if !report.OK() || len(report.Warnings) != 0 {
		t.Errorf("report = %+v, want clean", report)
	}
}

func TestFilter(t *testing.T) {
	defs := []Definition{{Path: "a"}, {Path: "b"}, {Path: "c"}}

	if got := Filter(defs, nil); len(got) != 3 {
		t.Errorf("Filter(nil) len = %d, want 3", len(got))
	}
	got := Filter(defs, []string{"c", "a", "zzz"})
	if len(got) != 2 || got[0].Path != "a" || got[1].Path != "c" {
		t.Errorf("Filter() = %+v", got)
	}
}

func TestInitPolicy_String(t *testing.T) {
	if Crucial.String() != "crucial" || Deferred.String() != "deferred" || Normal.String() != "normal" {
		t.Error("InitPolicy.String() mismatch")
	}
}
