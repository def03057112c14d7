// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package modules

import (
	"time"

	"github.com/tomtom215/scuttle/internal/module"
	"github.com/tomtom215/scuttle/internal/registry"
)

// Privileges checked by the built-in modules.
const (
	PrivilegeSessionView = "session.view"
	PrivilegeJobsView    = "jobs.view"
)

// Info describes the running server to the meta module.
type Info struct {
	Name      string
	Version   string
	StartedAt time.Time

	// Mounts returns the current mount points. It is called per request
	// so that registry replacements are reflected.
	Mounts func() []string
}

// Definitions returns the module table in mount order.
func Definitions(info Info) []registry.Definition {
	return []registry.Definition{
		{
			Path:   "meta",
			Name:   "server metadata",
			Policy: registry.Deferred,
			New: func(host module.Host) (module.Module, error) {
				return NewMeta(host, info), nil
			},
		},
		{
			Path:   "session",
			Name:   "session",
			Policy: registry.Crucial,
			New: func(host module.Host) (module.Module, error) {
				return NewSession(host), nil
			},
		},
		{
			Path: "jobs",
			Name: "job schedule",
			New: func(host module.Host) (module.Module, error) {
				return NewJobs(host)
			},
		},
		{
			Path: "ping",
			Name: "ping",
			New: func(host module.Host) (module.Module, error) {
				return NewPing(host), nil
			},
		},
	}
}
