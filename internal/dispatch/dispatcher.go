// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

// Package dispatch routes backend requests to modules and caches their
// responses.
//
// Each request goes through these steps:
//
//	resolve module    no module mounted at the first path segment: 404
//	login/logout      a failed login answers {"loginError": ..., "success": false}
//	cache tag         0: run the module and stream its response
//	                  otherwise: replay a cached response or run the module,
//	                  record the response, cache it and replay the recording
//
// A module error wrapping *module.PermissionError answers 403 and any other
// error answers 500 with a structured payload. Neither is cached. A nil
// response or module.ErrNotFound answers 404, also uncached. Module.Done runs after every Handle call.
//
// Cached responses are keyed by module instance, not by mount path. Replace
// and Update start a new cache generation that only knows the modules
// mounted afterwards; a request still holding a replaced module runs it
// uncached and can never seed the new generation.
//
// Concurrent misses for the same module and tag each run the module and the
// last one to finish stays cached. With Config.SingleFlight only one of them
// runs and the others replay its result.
package dispatch

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/scuttle/internal/cache"
	"github.com/tomtom215/scuttle/internal/database"
	"github.com/tomtom215/scuttle/internal/logging"
	"github.com/tomtom215/scuttle/internal/metrics"
	"github.com/tomtom215/scuttle/internal/module"
	"github.com/tomtom215/scuttle/internal/registry"
)

// Outcomes reported to metrics and logs.
const (
	OutcomeOK         = "ok"
	OutcomeCached     = "cached"
	OutcomeNotFound   = "not_found"
	OutcomeLoginError = "login_error"
	OutcomeForbidden  = "forbidden"
	OutcomeFailure    = "failure"
	OutcomeBroken     = "broken_config"
)

// Authenticator handles the login step of a request.
type Authenticator interface {
	Login(r *module.Request) error
}

// SessionStore loads a client's session and persists changes to it.
type SessionStore interface {
	Load(r *http.Request) module.Session
	Save(w http.ResponseWriter, r *http.Request, s module.Session) error
}

// Config holds dispatcher settings.
type Config struct {
	// Prefix is stripped from the URL path before the mount point is
	// resolved, e.g. "/backend".
	Prefix string
	// CacheEnabled turns response caching on. When off, cache tags are
	// ignored.
	CacheEnabled bool
	// SingleFlight collapses concurrent cache misses for the same module
	// and tag into one module invocation.
	SingleFlight bool
}

// Options carries the dispatcher's collaborators. All of them are optional.
type Options struct {
	Auth     Authenticator
	Authz    module.Authorizer
	Sessions SessionStore
	DB       *database.DB
	// Problems puts the dispatcher in broken-configuration mode: every
	// request is answered with 500 and this list until Replace installs a
	// new module set.
	Problems []string
}

// Dispatcher is the http.Handler for the backend path.
type Dispatcher struct {
	cfg      Config
	registry *registry.Registry
	gen      atomic.Pointer[generation]

	auth     Authenticator
	authz    module.Authorizer
	sessions SessionStore
	db       *database.DB
	problems atomic.Pointer[[]string]

	logger zerolog.Logger
}

// generation is the response cache for one module set. Single-flight keys
// are only unique within a generation, so each carries its own group.
type generation struct {
	cache *cache.Cache[module.Module]
	group singleflight.Group
}

// New creates a dispatcher serving the modules in reg. The response cache
// is sized to the modules mounted at this point; use Replace or Update to
// change the module set afterwards.
func New(reg *registry.Registry, cfg Config, opts Options) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		registry: reg,
		auth:     opts.Auth,
		authz:    opts.Authz,
		sessions: opts.Sessions,
		db:       opts.DB,
		logger:   logging.WithComponent("dispatch"),
	}
	if len(opts.Problems) > 0 {
		problems := append([]string(nil), opts.Problems...)
		d.problems.Store(&problems)
	}
	d.resetCache()
	return d
}

func (d *Dispatcher) resetCache() {
	if !d.cfg.CacheEnabled {
		return
	}
	entries := d.registry.Snapshot()
	mods := make([]module.Module, len(entries))
	for i, e := range entries {
		mods[i] = e.Module
	}
	d.gen.Store(&generation{cache: cache.New(mods)})
	metrics.ResponseCacheEntries.Set(0)
}

// Registry returns the module registry.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.registry
}

// Broken reports whether the dispatcher is in broken-configuration mode.
func (d *Dispatcher) Broken() bool {
	return len(d.Problems()) > 0
}

// Problems returns the configuration problems that put the dispatcher in
// broken mode, or nil.
func (d *Dispatcher) Problems() []string {
	if p := d.problems.Load(); p != nil {
		return *p
	}
	return nil
}

// Evict drops the cached responses of the module currently mounted at path
// and returns how many were removed.
func (d *Dispatcher) Evict(path string) int {
	g := d.gen.Load()
	if g == nil {
		return 0
	}
	m, ok := d.registry.Lookup(path)
	if !ok {
		return 0
	}
	return g.cache.Evict(m)
}

// EvictAll drops every cached response.
func (d *Dispatcher) EvictAll() int {
	if g := d.gen.Load(); g != nil {
		return g.cache.EvictAll()
	}
	return 0
}

// CacheStats returns response cache counters. ok is false when caching is
// disabled.
func (d *Dispatcher) CacheStats() (stats cache.Stats, ok bool) {
	if g := d.gen.Load(); g != nil {
		return g.cache.Stats(), true
	}
	return cache.Stats{}, false
}

// Replace swaps the whole module set and starts over with an empty cache.
// A complete module set also ends broken-configuration mode.
func (d *Dispatcher) Replace(modules map[string]module.Module) error {
	if err := d.registry.ReplaceAll(modules); err != nil {
		return err
	}
	d.resetCache()
	if old := d.problems.Swap(nil); old != nil {
		d.logger.Info().Int("problems", len(*old)).Msg("Module set replaced, leaving broken-configuration mode")
	}
	return nil
}

// Update runs fn against the module set on its own goroutine, off the
// request path, and starts over with an empty cache if fn succeeds. The
// returned channel receives the result.
func (d *Dispatcher) Update(fn func(modules map[string]module.Module) error) <-chan error {
	result := make(chan error, 1)
	go func() {
		err := d.registry.Update(fn)
		if err == nil {
			d.resetCache()
			d.logger.Info().Int("modules", d.registry.Len()).Msg("Module set updated")
		} else {
			d.logger.Warn().Err(err).Msg("Module update rejected")
		}
		result <- err
	}()
	return result
}

// ServeHTTP dispatches one backend request.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if d.Broken() {
		d.serveBroken(w)
		metrics.RecordDispatch("", OutcomeBroken, time.Since(start))
		return
	}

	path := strings.TrimPrefix(r.URL.Path, d.cfg.Prefix)
	head, _ := module.SplitPath(path)

	m, ok := d.registry.Lookup(head)
	if !ok {
		logging.Ctx(r.Context()).Debug().Err(module.ErrNotFound).Str("mount", head).Msg("No module mounted")
		sink := newHTTPSink(w, nil)
		d.emit(r, sink, module.NotFound())
		metrics.RecordDispatch("", OutcomeNotFound, time.Since(start))
		return
	}

	ctx := logging.ContextWithModule(r.Context(), head)
	r = r.WithContext(ctx)

	var scope *database.Scope
	if d.db != nil {
		scope = d.db.Scope()
	}
	defer scope.Release(ctx)

	var sess module.Session
	if d.sessions != nil {
		sess = d.sessions.Load(r)
	}
	req := module.NewRequest(r, path, sess, scope, d.authz)

	sink := newHTTPSink(w, func() {
		if d.sessions == nil {
			return
		}
		if err := d.sessions.Save(w, r, req.Session()); err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("Failed to save session")
		}
	})

	outcome := d.serve(req, m, head, sink)
	sink.finish()

	elapsed := time.Since(start)
	metrics.RecordDispatch(head, outcome, elapsed)
	logging.Ctx(ctx).Debug().
		Str("method", r.Method).
		Str("path", path).
		Str("outcome", outcome).
		Dur("elapsed", elapsed).
		Msg("Dispatched")
}

// serve runs the login step and the cache decision. It returns the outcome.
func (d *Dispatcher) serve(req *module.Request, m module.Module, head string, sink *httpSink) (outcome string) {
	defer func() {
		if p := recover(); p != nil {
			err := &PanicError{Value: p, Stack: string(debug.Stack())}
			outcome = d.fail(req, sink, err)
		}
	}()

	if d.auth != nil {
		if err := d.auth.Login(req); err != nil {
			var le *module.LoginError
			if errors.As(err, &le) {
				d.emit(req.HTTP(), sink, module.LoginFailure(le))
				return OutcomeLoginError
			}
			return d.fail(req, sink, err)
		}
	}

	g := d.gen.Load()
	var tag int64
	if g != nil && g.cache.Known(m) {
		tag = m.CacheTag(req)
	}
	if tag == 0 {
		return d.invokeDirect(req, m, sink)
	}
	c := g.cache

	if buf, ok := c.Get(m, tag); ok {
		metrics.ResponseCacheHits.WithLabelValues(head).Inc()
		d.replay(req, buf, sink)
		return OutcomeCached
	}
	metrics.ResponseCacheMisses.WithLabelValues(head).Inc()

	if !d.cfg.SingleFlight {
		res := d.produce(req, m, c, tag)
		return d.deliver(req, res, sink)
	}

	key := fmt.Sprintf("%s\x00%d", head, tag)
	v, _, _ := g.group.Do(key, func() (interface{}, error) {
		// another flight may have populated the entry since our miss
		if buf, ok := c.Get(m, tag); ok {
			return &result{buf: buf, owner: req, outcome: OutcomeCached}, nil
		}
		return d.produce(req, m, c, tag), nil
	})
	res := v.(*result)
	if res.buf == nil && res.owner != req {
		// uncacheable results belong to the caller that produced them
		res = d.produce(req, m, c, tag)
	}
	if res.owner != req && res.outcome == OutcomeOK {
		res = &result{buf: res.buf, outcome: OutcomeCached}
	}
	return d.deliver(req, res, sink)
}

// result is what a module invocation produced: either a frozen buffer
// ready for replay or an uncacheable response.
type result struct {
	buf     *cache.Buffer
	resp    module.Response
	outcome string
	owner   *module.Request
}

// invokeDirect runs the module and streams its response.
func (d *Dispatcher) invokeDirect(req *module.Request, m module.Module, sink *httpSink) string {
	resp, outcome := d.invoke(req, m)
	if outcome != OutcomeOK {
		d.emit(req.HTTP(), sink, resp)
		return outcome
	}
	if err := resp.Write(req.AcceptsGzip(), sink); err != nil {
		if sink.Committed() {
			logging.Ctx(req.Context()).Error().Err(err).Msg("Response write failed after commit")
			return OutcomeFailure
		}
		sink.reset()
		return d.fail(req, sink, fmt.Errorf("write response: %w", err))
	}
	return OutcomeOK
}

// produce runs the module, records a successful response into a frozen
// buffer and caches it under (m, tag). The recording is always made for
// a gzip-capable client; Replay inflates it for clients that are not.
func (d *Dispatcher) produce(req *module.Request, m module.Module, c *cache.Cache[module.Module], tag int64) *result {
	resp, outcome := d.invoke(req, m)
	if outcome != OutcomeOK {
		return &result{resp: resp, outcome: outcome, owner: req}
	}

	buf := cache.NewBuffer()
	if err := resp.Write(true, buf); err != nil {
		return &result{resp: d.failure(req, fmt.Errorf("record response: %w", err)), outcome: OutcomeFailure, owner: req}
	}
	buf.Done()
	if err := c.Populate(m, tag, buf); err != nil {
		logging.Ctx(req.Context()).Warn().Err(err).Int64("tag", tag).Msg("Response not cached")
	}
	return &result{buf: buf, outcome: OutcomeOK, owner: req}
}

func (d *Dispatcher) deliver(req *module.Request, res *result, sink *httpSink) string {
	if res.buf != nil {
		d.replay(req, res.buf, sink)
		return res.outcome
	}
	d.emit(req.HTTP(), sink, res.resp)
	return res.outcome
}

func (d *Dispatcher) replay(req *module.Request, buf *cache.Buffer, sink *httpSink) {
	if err := buf.Replay(req.AcceptsGzip(), sink); err != nil {
		logging.Ctx(req.Context()).Error().Err(err).Msg("Cached response replay failed")
	}
}

// invoke calls Handle and then Done, and classifies the result. For any
// outcome other than OutcomeOK the returned response is the error answer.
func (d *Dispatcher) invoke(req *module.Request, m module.Module) (resp module.Response, outcome string) {
	defer func() {
		if p := recover(); p != nil {
			resp = d.failure(req, &PanicError{Value: p, Stack: string(debug.Stack())})
			outcome = OutcomeFailure
		}
	}()

	resp, err := d.handle(req, m)

	var pe *module.PermissionError
	var le *module.LoginError
	switch {
	case errors.As(err, &pe):
		logging.Ctx(req.Context()).Info().
			Str("reason", string(pe.Reason)).
			Str("privilege", pe.Privilege).
			Str("user", pe.User).
			Msg("Permission denied")
		return module.Forbidden(), OutcomeForbidden
	case errors.As(err, &le):
		return module.LoginFailure(le), OutcomeLoginError
	case errors.Is(err, module.ErrNotFound):
		return module.NotFound(), OutcomeNotFound
	case err != nil:
		return d.failure(req, err), OutcomeFailure
	case resp == nil:
		return module.NotFound(), OutcomeNotFound
	default:
		return resp, OutcomeOK
	}
}

// handle calls Handle followed by Done, also when Handle panics.
func (d *Dispatcher) handle(req *module.Request, m module.Module) (module.Response, error) {
	defer func() {
		defer func() {
			if p := recover(); p != nil {
				logging.Ctx(req.Context()).Error().Interface("panic", p).Msg("Module Done panicked")
			}
		}()
		m.Done(req)
	}()
	return m.Handle(req)
}

func (d *Dispatcher) fail(req *module.Request, sink *httpSink, err error) string {
	if sink.Committed() {
		logging.Ctx(req.Context()).Error().Err(err).Msg("Request failed after response was committed")
		return OutcomeFailure
	}
	d.emit(req.HTTP(), sink, d.failure(req, err))
	return OutcomeFailure
}

// failure logs err and builds the 500 answer for it.
func (d *Dispatcher) failure(req *module.Request, err error) module.Response {
	ev := logging.Ctx(req.Context()).Error().Err(err)
	var pe *PanicError
	if errors.As(err, &pe) {
		ev = ev.Str("stack", pe.Stack)
	}
	ev.Msg("Module failed")
	return module.Failure(err)
}

func (d *Dispatcher) emit(r *http.Request, sink *httpSink, resp module.Response) {
	if err := resp.Write(acceptsGzip(r), sink); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to write error response")
	}
}

func (d *Dispatcher) serveBroken(w http.ResponseWriter) {
	var b strings.Builder
	b.WriteString("500 Internal Server Error\n\nThe backend is misconfigured:\n\n")
	for _, p := range d.Problems() {
		b.WriteString("  - ")
		b.WriteString(p)
		b.WriteByte('\n')
	}
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(b.String()))
}

func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

// PanicError is a recovered panic from module code.
type PanicError struct {
	Value interface{}
	Stack string
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("module panicked: %v", p.Value)
}
