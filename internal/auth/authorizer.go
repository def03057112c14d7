// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package auth

import (
	"errors"
	"fmt"

	"github.com/tomtom215/scuttle/internal/authz"
	"github.com/tomtom215/scuttle/internal/database"
	"github.com/tomtom215/scuttle/internal/module"
)

// AdminRole holds every privilege.
const AdminRole = "admin"

// Authorizer checks privileges of the session user. It implements
// module.Authorizer.
type Authorizer struct {
	dir      *Directory
	enforcer *authz.Enforcer
}

// NewAuthorizer creates an authorizer. enforcer may be nil, in which case
// only admin and per-user database privileges are honoured.
func NewAuthorizer(dir *Directory, enforcer *authz.Enforcer) *Authorizer {
	return &Authorizer{dir: dir, enforcer: enforcer}
}

// Check returns nil if the user logged in on r holds privilege, a
// *module.PermissionError if not, and any other error if the user could not
// be looked up.
func (a *Authorizer) Check(r *module.Request, privilege string) error {
	name := r.Username()
	if name == "" {
		return &module.PermissionError{Reason: module.NoSession, Privilege: privilege}
	}

	user, err := a.dir.Lookup(r.Context(), r.DB(), name)
	if errors.Is(err, database.ErrUserNotFound) {
		return &module.PermissionError{Reason: module.SessionUserNotInDatabase, Privilege: privilege, User: name}
	}
	if err != nil {
		return fmt.Errorf("check privilege %q for %s: %w", privilege, name, err)
	}

	if user.Role == AdminRole || user.HasPrivilege(privilege) {
		return nil
	}
	if a.enforcer != nil {
		allowed, err := a.enforcer.EnforceWithRoles(name, []string{user.Role}, privilege)
		if err != nil {
			return fmt.Errorf("check privilege %q for %s: %w", privilege, name, err)
		}
		if allowed {
			return nil
		}
	}
	return &module.PermissionError{Reason: module.UserLacksPrivilege, Privilege: privilege, User: name}
}
