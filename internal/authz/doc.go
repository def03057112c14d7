// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

// Package authz grants privileges to users and roles using Casbin.
//
// A privilege is a dotted name such as "jobs.view". Policies name a subject
// (a user, or a role written "role:<name>"), a privilege pattern and the
// action "access":
//
//	p, role:operator, jobs.*, access
//	g, role:operator, role:editor
//
// Patterns use Casbin's keyMatch, so a trailing "*" matches any suffix.
// The model and a default policy are embedded; both can be replaced by
// files through EnforcerConfig.
//
// Decisions are cached per (subject, privilege) for CacheTTL. Expired
// entries are removed by Sweep, which the server runs as a repeating job.
package authz
