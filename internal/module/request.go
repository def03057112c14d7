// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package module

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/scuttle/internal/database"
)

// Method is the declared HTTP method of a request.
type Method int

const (
	MethodUnknown Method = iota
	MethodGet
	MethodPost
	MethodPut
	MethodDelete
)

func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	case MethodPut:
		return "PUT"
	case MethodDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// ParseMethod maps an HTTP method name to a Method.
func ParseMethod(s string) Method {
	switch strings.ToUpper(s) {
	case http.MethodGet, http.MethodHead:
		return MethodGet
	case http.MethodPost:
		return MethodPost
	case http.MethodPut:
		return MethodPut
	case http.MethodDelete:
		return MethodDelete
	default:
		return MethodUnknown
	}
}

// Authorizer decides whether the user behind a request holds a privilege.
type Authorizer interface {
	Check(r *Request, privilege string) error
}

// Request is the dispatcher's view of an inbound request.
type Request struct {
	// Head is the mount point, Tail the rest of the path.
	Head string
	Tail string

	Method Method

	http        *http.Request
	session     Session
	scope       *database.Scope
	authz       Authorizer
	acceptsGzip bool
}

var slashes = regexp.MustCompile(`/+`)

// SplitPath strips leading slashes and splits path at the first run of
// slashes into the mount point and the remainder.
//
//	SplitPath("/pages//about/team") // "pages", "about/team"
func SplitPath(path string) (head, tail string) {
	path = strings.TrimLeft(path, "/")
	parts := slashes.Split(path, 2)
	head = parts[0]
	if len(parts) > 1 {
		tail = parts[1]
	}
	return head, tail
}

// NewRequest builds a Request for path, which is the request path with the
// backend prefix already removed. Any of session, scope and authz may be nil.
func NewRequest(r *http.Request, path string, session Session, scope *database.Scope, authz Authorizer) *Request {
	head, tail := SplitPath(path)
	if session == nil {
		session = NewMemorySession()
	}
	return &Request{
		Head:        head,
		Tail:        tail,
		Method:      ParseMethod(r.Method),
		http:        r,
		session:     session,
		scope:       scope,
		authz:       authz,
		acceptsGzip: strings.Contains(r.Header.Get("Accept-Encoding"), "gzip"),
	}
}

// Context returns the inbound request's context.
func (r *Request) Context() context.Context {
	return r.http.Context()
}

// HTTP returns the underlying request for raw body or form access.
func (r *Request) HTTP() *http.Request {
	return r.http
}

// Header returns a request header value.
func (r *Request) Header(name string) string {
	return r.http.Header.Get(name)
}

// AcceptsGzip reports whether Accept-Encoding mentions gzip.
func (r *Request) AcceptsGzip() bool {
	return r.acceptsGzip
}

// Session returns the client's session.
func (r *Request) Session() Session {
	return r.session
}

// Username returns the logged in user, or "".
func (r *Request) Username() string {
	return r.session.Get(SessionUserKey)
}

// DB returns the request-scoped database handle. It is nil when the server
// runs without a database.
func (r *Request) DB() *database.Scope {
	return r.scope
}

// Check verifies that the current user holds privilege. It returns a
// *PermissionError on denial.
func (r *Request) Check(privilege string) error {
	if r.authz == nil {
		return &PermissionError{Reason: NoSession, Privilege: privilege}
	}
	return r.authz.Check(r, privilege)
}

// Param returns a query or form value.
func (r *Request) Param(name string) string {
	return r.http.FormValue(name)
}

// HasParam reports whether the parameter was sent at all.
func (r *Request) HasParam(name string) bool {
	if err := r.http.ParseForm(); err != nil {
		return false
	}
	_, ok := r.http.Form[name]
	return ok
}

// ParamInt returns a parameter as int, or def if absent or malformed.
func (r *Request) ParamInt(name string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(r.Param(name)))
	if err != nil {
		return def
	}
	return v
}

// ParamInt64 returns a parameter as int64, or def if absent or malformed.
func (r *Request) ParamInt64(name string, def int64) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(r.Param(name)), 10, 64)
	if err != nil {
		return def
	}
	return v
}

// ParamBool returns a parameter as bool, or def if absent or malformed.
func (r *Request) ParamBool(name string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(r.Param(name)))
	if err != nil {
		return def
	}
	return v
}

// ParamJSON decodes a JSON encoded parameter into v.
func (r *Request) ParamJSON(name string, v any) error {
	return json.Unmarshal([]byte(r.Param(name)), v)
}
