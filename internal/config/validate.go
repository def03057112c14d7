// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package config

import (
	"errors"
	"fmt"

	"github.com/tomtom215/scuttle/internal/validation"
)

// Validate checks field constraints and the rules that span fields.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}
	return c.validateSecurity()
}

func (c *Config) validateSecurity() error {
	s := c.Security
	if (s.CasbinModel == "") != (s.CasbinPolicy == "") {
		return errors.New("CASBIN_MODEL_PATH and CASBIN_POLICY_PATH must be set together")
	}
	if s.LoginAttempts > 0 && s.LoginWindow <= 0 {
		return fmt.Errorf("LOGIN_ATTEMPT_WINDOW must be positive when LOGIN_MAX_ATTEMPTS is %d", s.LoginAttempts)
	}
	if (s.AdminUsername == "") != (s.AdminPassword == "") {
		return errors.New("ADMIN_USERNAME and ADMIN_PASSWORD must be set together")
	}
	for _, origin := range s.CORSOrigins {
		// credentialed requests carry the session cookie
		if origin == "*" {
			return errors.New("CORS_ORIGINS must list origins explicitly; * is not allowed with credentials")
		}
	}
	return nil
}
