// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

/*
Package modules contains the request handlers that ship with the server.

Each module is described by a row in the static table returned by
Definitions; the loader in package registry constructs them at startup and
config.Modules.Enabled selects which rows are mounted.

Built-in modules:

	meta     server name, version and mounted modules (cached per lang)
	session  the logged in user (requires session.view)
	jobs     the job queue schedule (requires jobs.view)
	ping     liveness echo, never cached

Adding a module means adding a constructor and a Definition row; nothing
else in the server has to change.
*/
package modules
