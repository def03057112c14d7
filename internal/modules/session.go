// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package modules

import (
	"github.com/rs/zerolog"

	"github.com/tomtom215/scuttle/internal/module"
)

// SessionInfo is the body served by the session module.
type SessionInfo struct {
	Username string `json:"username"`
	LoggedIn bool   `json:"logged_in"`
}

// Session reports who is logged in. Login and logout themselves are
// handled by the dispatcher before any module runs, so a client posts
// loginName/loginPassword (or logout) here and reads back the result.
type Session struct {
	module.Base
	logger zerolog.Logger
}

// NewSession returns the session module.
func NewSession(host module.Host) *Session {
	return &Session{logger: host.Logger}
}

func (s *Session) Handle(r *module.Request) (module.Response, error) {
	if err := r.Check(PrivilegeSessionView); err != nil {
		return nil, err
	}
	name := r.Username()
	return module.JSON(SessionInfo{Username: name, LoggedIn: name != ""}), nil
}
