// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

/*
Package services adapts Scuttle's long-lived components to suture.Service.

  - HTTPServerService: ListenAndServe until the context ends, then Shutdown
  - JobQueueService: Start the job queue, and drain it with WaitStop on
    shutdown, falling back to Stop once the drain timeout passes

Each service implements fmt.Stringer so suture can name it in its events.
*/
package services
