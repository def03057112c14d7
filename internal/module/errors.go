// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package module

import (
	"errors"
	"fmt"
)

// ErrNotFound means there is nothing at the requested path: either no module
// is mounted there, or a module's Handle returned it for a tail it does not
// serve. The dispatcher answers 404 and never caches it.
var ErrNotFound = errors.New("module: not found")

// LoginReason says why a login attempt failed.
type LoginReason string

const (
	NoPasswordGiven     LoginReason = "NO_PASSWORD_GIVEN"
	UnknownUser         LoginReason = "UNKNOWN_USER"
	PasswordsDoNotMatch LoginReason = "PASSWORDS_DO_NOT_MATCH"
	TooManyAttempts     LoginReason = "TOO_MANY_ATTEMPTS"
	LoginUnavailable    LoginReason = "LOGIN_UNAVAILABLE"
)

// LoginError is an authentication failure. It is never cached.
type LoginError struct {
	Reason LoginReason
	Err    error
}

func (e *LoginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("login failed: %s: %v", e.Reason, e.Err)
	}
	return "login failed: " + string(e.Reason)
}

func (e *LoginError) Unwrap() error { return e.Err }

// PermissionReason says why an authorization check failed.
type PermissionReason string

const (
	NoSession                PermissionReason = "NO_SESSION"
	SessionUserNotInDatabase PermissionReason = "SESSION_USER_NOT_IN_DATABASE"
	UserLacksPrivilege       PermissionReason = "USER_LACKS_PRIVILEGE"
)

// PermissionError is an authorization denial. The dispatcher answers it
// with 403 and never caches it.
type PermissionError struct {
	Reason    PermissionReason
	Privilege string
	User      string
}

func (e *PermissionError) Error() string {
	if e.Privilege != "" {
		return fmt.Sprintf("permission denied: %s (privilege %q)", e.Reason, e.Privilege)
	}
	return "permission denied: " + string(e.Reason)
}

// IsPermissionError reports whether err is or wraps a *PermissionError.
func IsPermissionError(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}
