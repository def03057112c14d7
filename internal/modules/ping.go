// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package modules

import (
	"time"

	"github.com/tomtom215/scuttle/internal/module"
)

// Pong is the body served by the ping module.
type Pong struct {
	Pong   bool      `json:"pong"`
	Method string    `json:"method"`
	Path   string    `json:"path,omitempty"`
	Time   time.Time `json:"time"`
}

// Ping answers every request with the current time. It is never cached.
type Ping struct {
	module.Base
	now func() time.Time
}

func NewPing(module.Host) *Ping {
	return &Ping{now: time.Now}
}

func (p *Ping) Handle(r *module.Request) (module.Response, error) {
	return module.JSON(Pong{
		Pong:   true,
		Method: r.Method.String(),
		Path:   r.Tail,
		Time:   p.now().UTC(),
	}), nil
}
