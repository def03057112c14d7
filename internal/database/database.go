// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

// Package database owns the SQLite store behind Scuttle: connection setup,
// schema migrations, the user table and the request-scoped handle that the
// dispatcher releases at the end of every request.
//
// The driver is modernc.org/sqlite, a pure Go port, so the binary builds
// without cgo.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/tomtom215/scuttle/internal/logging"
	"github.com/tomtom215/scuttle/internal/metrics"
)

// Config holds database settings.
type Config struct {
	// Path is the database file, or ":memory:" for a private in-memory DB.
	Path string

	// MaxOpenConns caps the pool. In-memory databases always use one
	// connection so every query sees the same data.
	MaxOpenConns int

	// BusyTimeout is how long SQLite waits on a locked database.
	BusyTimeout time.Duration
}

// DB wraps the connection pool.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (creating if needed) the database and applies migrations.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	conn, err := sql.Open("sqlite", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isMemory(cfg.Path) {
		conn.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	db := &DB{conn: conn, path: cfg.Path}
	if err := db.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logging.Info().Str("path", cfg.Path).Msg("Database ready")
	return db, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

func dsn(cfg Config) string {
	sep := "?"
	if strings.Contains(cfg.Path, "?") {
		sep = "&"
	}
	out := fmt.Sprintf("%s%s_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		cfg.Path, sep, cfg.BusyTimeout.Milliseconds())
	if !isMemory(cfg.Path) {
		out += "&_pragma=journal_mode(WAL)"
	}
	return out
}

// SQL exposes the underlying pool.
func (db *DB) SQL() *sql.DB {
	return db.conn
}

// Ping checks if the database connection is alive
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return errors.New("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// Close closes the pool.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Scope returns a fresh request-scoped handle. Nothing is acquired until
// the handle is first used.
func (db *DB) Scope() *Scope {
	return &Scope{db: db}
}

// Optimize runs SQLite's housekeeping pragmas. It is scheduled as a
// repeating maintenance job.
func (db *DB) Optimize(ctx context.Context) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, "PRAGMA optimize")
	if err == nil && !isMemory(db.path) {
		_, err = db.conn.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	}
	metrics.RecordDBQuery("optimize", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("optimize database: %w", err)
	}
	return nil
}
