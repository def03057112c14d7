// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

// Package auth implements login, sessions and privilege checks for the
// backend dispatcher.
//
// # Login
//
// Every backend request passes through Authenticator.Login before its module
// runs. The request parameters drive it:
//
//	logout                       clears the session user, then continues
//	loginName + loginPassword    authenticates and stores the user name
//
// A request without loginName is not a login attempt and passes unchanged.
// Failed attempts yield a *module.LoginError whose reason is sent to the
// client as {"loginError": "...", "success": false}. Each attempt waits for
// the configured delay before the password is checked, and attempts per user
// name are throttled with a token bucket.
//
// # Privileges
//
// Authorizer implements module.Authorizer. Users with role "admin" hold
// every privilege. Otherwise a privilege is held if it is listed for the user
// in the database or granted to the user or their role by the Casbin policy
// (see package authz).
//
// # Sessions
//
// SessionStore keeps the session in a signed cookie (gorilla/sessions). The
// cookie is only rewritten when the session changed during the request.
//
// User lookups go through a circuit breaker so that a failing database turns
// into fast LOGIN_UNAVAILABLE answers instead of piling up requests.
package auth
