// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package module

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/tomtom215/scuttle/internal/cache"
	"github.com/tomtom215/scuttle/internal/validation"
)

// Response is a module result that can serialise itself into a sink.
// Write may be called on a caching buffer, in which case its output is
// replayed verbatim to later clients with the same cache tag.
type Response interface {
	Write(acceptsGzip bool, sink cache.Sink) error
}

// JSONResponse marshals Value with goccy/go-json. Bodies are gzip encoded
// for clients that accept it.
type JSONResponse struct {
	Value  interface{}
	Status int
}

// JSON returns a 200 JSON response for v.
func JSON(v interface{}) *JSONResponse {
	return &JSONResponse{Value: v}
}

func (j *JSONResponse) Write(acceptsGzip bool, sink cache.Sink) error {
	data, err := json.Marshal(j.Value)
	if err != nil {
		return fmt.Errorf("marshal JSON response: %w", err)
	}
	if j.Status != 0 {
		sink.SetStatus(j.Status)
	}
	sink.SetContentType("application/json")
	sink.SetCharacterEncoding("UTF-8")

	if !acceptsGzip {
		sink.SetHeader("Content-Length", strconv.Itoa(len(data)))
		_, err = sink.Write(data)
		return err
	}

	sink.SetHeader("Content-Encoding", "gzip")
	sink.SetHeader("Vary", "Accept-Encoding")
	zw := gzip.NewWriter(sink)
	if _, err := zw.Write(data); err != nil {
		return fmt.Errorf("gzip JSON response: %w", err)
	}
	return zw.Close()
}

// PlainResponse writes a fixed body with explicit headers.
type PlainResponse struct {
	Body        []byte
	ContentType string
	Encoding    string
	Headers     map[string]string
	Status      int
}

// Text returns a text/plain UTF-8 response.
func Text(s string) *PlainResponse {
	return &PlainResponse{Body: []byte(s), ContentType: "text/plain", Encoding: "UTF-8"}
}

func (p *PlainResponse) Write(_ bool, sink cache.Sink) error {
	if p.Status != 0 {
		sink.SetStatus(p.Status)
	}
	if p.ContentType != "" {
		sink.SetContentType(p.ContentType)
	}
	if p.Encoding != "" {
		sink.SetCharacterEncoding(p.Encoding)
	}
	names := make([]string, 0, len(p.Headers))
	for name := range p.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sink.SetHeader(name, p.Headers[name])
	}
	sink.SetHeader("Content-Length", strconv.Itoa(len(p.Body)))
	_, err := sink.Write(p.Body)
	return err
}

// NotFound is the plain 404 body.
func NotFound() *PlainResponse {
	r := Text("404 Not Found")
	r.Status = http.StatusNotFound
	return r
}

// Forbidden is the plain 403 body.
func Forbidden() *PlainResponse {
	r := Text("403 Forbidden")
	r.Status = http.StatusForbidden
	return r
}

// LoginFailure is the JSON body sent when authentication fails.
func LoginFailure(e *LoginError) *JSONResponse {
	return &JSONResponse{Value: map[string]interface{}{
		"loginError": string(e.Reason),
		"success":    false,
	}}
}

// ErrorPayload describes one error in a cause chain.
type ErrorPayload struct {
	Message  string        `json:"message"`
	Type     string        `json:"type"`
	CausedBy *ErrorPayload `json:"causedBy,omitempty"`
	HasCause bool          `json:"hasCause"`
}

// Failure is the structured 500 response for a handler error: the error
// and the chain of errors it wraps, plus field violations for validation
// errors.
func Failure(err error) *JSONResponse {
	body := map[string]interface{}{
		"success":   false,
		"exception": describe(err),
	}
	var ve *validation.Error
	if errors.As(err, &ve) {
		body["violations"] = ve.Violations()
	}
	return &JSONResponse{Value: body, Status: http.StatusInternalServerError}
}

func describe(err error) *ErrorPayload {
	root := &ErrorPayload{Message: err.Error(), Type: fmt.Sprintf("%T", err)}
	cur := root
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		next := &ErrorPayload{Message: cause.Error(), Type: fmt.Sprintf("%T", cause)}
		cur.CausedBy = next
		cur.HasCause = true
		cur = next
	}
	return root
}
