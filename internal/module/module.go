// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

// Package module defines the contract between the dispatcher and the
// request handlers mounted under the backend path, together with the
// request, response and error types both sides share.
//
// A module is mounted at a single path segment. For a request to
// /backend/pages/about/team the module mounted at "pages" receives a
// Request whose Head is "pages" and Tail is "about/team".
package module

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scuttle/internal/database"
	"github.com/tomtom215/scuttle/internal/jobqueue"
)

// Module is a request handler mounted at a path.
//
// A single instance serves all requests for its mount point concurrently,
// so implementations must be safe for concurrent use. The response cache
// keys on the instance, so implementations must be comparable; use pointer
// receivers.
type Module interface {
	// CacheTag returns a key for the cacheable variant of the response to
	// r. Equal tags must produce byte-identical responses. Zero disables
	// caching for this request.
	CacheTag(r *Request) int64

	// Handle produces the response. Returning a *PermissionError yields
	// 403; any other error yields a 500 with a structured error payload.
	// A nil response with a nil error, or ErrNotFound, yields 404.
	Handle(r *Request) (Response, error)

	// Done is always called after Handle returns, whatever the outcome.
	Done(r *Request)

	// Loaded is called once after every module has been constructed.
	Loaded(ctx context.Context) error
}

// Base provides no-op defaults for the optional parts of Module.
type Base struct{}

func (Base) CacheTag(*Request) int64      { return 0 }
func (Base) Done(*Request)                {}
func (Base) Loaded(context.Context) error { return nil }

// Host is what a module constructor receives.
type Host struct {
	DB     *database.DB
	Jobs   *jobqueue.Queue
	Logger zerolog.Logger
}
