// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

/*
Package supervisor runs Scuttle's long-lived services under suture v4.

The tree has two layers so the HTTP server keeps answering while the job
worker is being restarted, and the other way round:

	RootSupervisor ("scuttle")
	├── JobsSupervisor ("jobs-layer")
	│   └── JobQueueService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Restart events go to the zerolog stream through sutureslog and
logging.NewSlogLogger.

Shutdown order is the reverse of the layers: cancelling the root context
stops the HTTP server first (in-flight requests finish within the server's
shutdown timeout), then the job queue drains.
*/
package supervisor
