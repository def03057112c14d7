// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	moduleKey    contextKey = "module"
)

// GenerateRequestID returns a new random request ID.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithRequestID stores a request ID for later log events.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the stored request ID or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithModule records the mount point that is serving the request.
func ContextWithModule(ctx context.Context, mount string) context.Context {
	return context.WithValue(ctx, moduleKey, mount)
}

// ModuleFromContext returns the mount point recorded by ContextWithModule.
func ModuleFromContext(ctx context.Context) string {
	if m, ok := ctx.Value(moduleKey).(string); ok {
		return m
	}
	return ""
}

// Ctx returns the global logger enriched with the request_id and module
// fields carried by ctx.
//
//	logging.Ctx(r.Context()).Info().Msg("Login succeeded")
func Ctx(ctx context.Context) *zerolog.Logger {
	lc := With()
	if id := RequestIDFromContext(ctx); id != "" {
		lc = lc.Str("request_id", id)
	}
	if m := ModuleFromContext(ctx); m != "" {
		lc = lc.Str("module", m)
	}
	l := lc.Logger()
	return &l
}
