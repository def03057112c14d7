// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scuttle/internal/jobqueue"
	"github.com/tomtom215/scuttle/internal/logging"
	"github.com/tomtom215/scuttle/internal/metrics"
	"github.com/tomtom215/scuttle/internal/module"
)

// InitPolicy controls how a module's construction and Loaded hook are
// treated by the Loader.
type InitPolicy int

const (
	// Normal modules are constructed and loaded during startup. Failures
	// are reported as warnings and the module is skipped.
	Normal InitPolicy = iota

	// Crucial modules must construct and load; any failure is a problem
	// that puts the server into broken-configuration mode.
	Crucial

	// Deferred modules are constructed during startup but their Loaded hook
	// runs later on the job queue. Load failures are logged only.
	Deferred
)

func (p InitPolicy) String() string {
	switch p {
	case Crucial:
		return "crucial"
	case Deferred:
		return "deferred"
	default:
		return "normal"
	}
}

// Definition is one row of the static module table.
type Definition struct {
	Path   string
	Name   string
	New    func(host module.Host) (module.Module, error)
	Policy InitPolicy
}

// Report lists what went wrong while loading. Problems are fatal to normal
// operation, warnings are not.
type Report struct {
	Problems []string
	Warnings []string
}

// OK reports whether loading produced no problems.
func (r *Report) OK() bool {
	return len(r.Problems) == 0
}

func (r *Report) problem(format string, args ...interface{}) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
	metrics.ModuleLoadProblems.WithLabelValues("problem").Inc()
}

func (r *Report) warning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
	metrics.ModuleLoadProblems.WithLabelValues("warning").Inc()
}

// Filter keeps the definitions whose path is listed in enabled, in table
// order. An empty list keeps everything.
func Filter(defs []Definition, enabled []string) []Definition {
	if len(enabled) == 0 {
		return defs
	}
	want := make(map[string]bool, len(enabled))
	for _, p := range enabled {
		want[p] = true
	}
	out := make([]Definition, 0, len(enabled))
	for _, d := range defs {
		if want[d.Path] {
			out = append(out, d)
		}
	}
	return out
}

// Loader builds a Registry from definitions.
type Loader struct {
	host   module.Host
	logger zerolog.Logger
}

// NewLoader returns a loader that hands host to every constructor.
// Deferred Loaded hooks are submitted to host.Jobs; without a queue they run
// synchronously.
func NewLoader(host module.Host) *Loader {
	return &Loader{host: host, logger: logging.WithComponent("loader")}
}

// Load constructs every module, mounts it and runs its Loaded hook
// according to its policy. The returned registry contains every module that
// constructed successfully, plus those whose Loaded hook was deferred.
func (l *Loader) Load(ctx context.Context, defs []Definition) (*Registry, *Report) {
	reg := New()
	report := &Report{}
	var deferred []Entry

	for _, def := range defs {
		name := def.Name
		if name == "" {
			name = def.Path
		}

		m, err := construct(def, l.host)
		if err != nil {
			if def.Policy == Crucial {
				report.problem("module %s: construction failed: %v", name, err)
			} else {
				report.warning("module %s: construction failed: %v", name, err)
			}
			continue
		}

		if err := reg.Register(def.Path, m); err != nil {
			report.problem("module %s: %v", name, err)
			continue
		}

		if def.Policy == Deferred {
			deferred = append(deferred, Entry{Path: def.Path, Module: m})
			continue
		}

		if err := loaded(ctx, m); err != nil {
			if def.Policy == Crucial {
				report.problem("module %s: load failed: %v", name, err)
			} else {
				report.warning("module %s: load failed: %v", name, err)
			}
		}
	}

	for _, e := range deferred {
		l.deferLoad(ctx, e)
	}

	for _, p := range report.Problems {
		l.logger.Error().Msg(p)
	}
	for _, w := range report.Warnings {
		l.logger.Warn().Msg(w)
	}
	l.logger.Info().
		Int("modules", reg.Len()).
		Int("deferred", len(deferred)).
		Int("problems", len(report.Problems)).
		Int("warnings", len(report.Warnings)).
		Msg("Modules loaded")

	return reg, report
}

func (l *Loader) deferLoad(ctx context.Context, e Entry) {
	path := e.Path
	m := e.Module
	run := func(ctx context.Context) error {
		if err := loaded(ctx, m); err != nil {
			l.logger.Warn().Err(err).Str("module", path).Msg("Deferred module load failed")
			return err
		}
		l.logger.Debug().Str("module", path).Msg("Deferred module loaded")
		return nil
	}

	job := jobqueue.NewFunc("load module "+path, run).WithCancel(func() {
		l.logger.Warn().Str("module", path).Msg("Deferred module load cancelled")
	})
	if l.host.Jobs != nil && l.host.Jobs.Submit(job) {
		return
	}
	_ = run(ctx)
}

func construct(def Definition, host module.Host) (m module.Module, err error) {
	if def.New == nil {
		return nil, errors.New("no constructor")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("constructor panicked: %v", r)
		}
	}()
	host.Logger = logging.WithComponent("module").With().Str("module", def.Path).Logger()
	return def.New(host)
}

func loaded(ctx context.Context, m module.Module) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loaded hook panicked: %v", r)
		}
	}()
	return m.Loaded(ctx)
}
