// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package database

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/tomtom215/scuttle/internal/logging"
	"github.com/tomtom215/scuttle/internal/metrics"
)

// ErrScopeReleased is returned when a released scope is used again.
var ErrScopeReleased = errors.New("database: scope already released")

// Querier is satisfied by *sql.Conn, *sql.Tx and *sql.DB.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Scope is a database handle owned by a single request. The connection is
// taken from the pool on first use and returned by Release, which the
// dispatcher defers for every request. A transaction still open at Release
// is rolled back.
type Scope struct {
	db       *DB
	mu       sync.Mutex
	conn     *sql.Conn
	tx       *sql.Tx
	released bool
}

// Conn returns the scope's connection, acquiring it on first call.
func (s *Scope) Conn(ctx context.Context) (*sql.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connLocked(ctx)
}

func (s *Scope) connLocked(ctx context.Context) (*sql.Conn, error) {
	if s.released {
		return nil, ErrScopeReleased
	}
	if s.conn == nil {
		c, err := s.db.conn.Conn(ctx)
		if err != nil {
			return nil, err
		}
		s.conn = c
	}
	return s.conn, nil
}

// Querier returns the open transaction if there is one, otherwise the
// scope's connection.
func (s *Scope) Querier(ctx context.Context) (Querier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return s.tx, nil
	}
	return s.connLocked(ctx)
}

// Begin starts a transaction on the scope's connection. If one is already
// open it is returned unchanged.
func (s *Scope) Begin(ctx context.Context) (*sql.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return s.tx, nil
	}
	c, err := s.connLocked(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := c.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	s.tx = tx
	return tx, nil
}

// Commit commits the open transaction. Without one it does nothing.
func (s *Scope) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	return err
}

// Rollback aborts the open transaction. Without one it does nothing.
func (s *Scope) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	return err
}

// InTx reports whether a transaction is open.
func (s *Scope) InTx() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx != nil
}

// Used reports whether a connection was ever acquired.
func (s *Scope) Used() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Release rolls back any open transaction and returns the connection to
// the pool. Errors are logged, never returned. Release is idempotent and a
// nil scope is valid.
func (s *Scope) Release(ctx context.Context) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true

	if s.tx != nil {
		metrics.DBScopeRollbacks.Inc()
		if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to roll back request transaction")
		} else {
			logging.Ctx(ctx).Debug().Msg("Rolled back transaction left open by request")
		}
		s.tx = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to release request connection")
		}
		s.conn = nil
	}
}
