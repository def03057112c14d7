// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/scuttle/internal/metrics"
)

// ErrUserNotFound is returned when no user has the requested name.
var ErrUserNotFound = errors.New("database: user not found")

// User is a row of the users table plus its privileges.
type User struct {
	Name         string
	PasswordHash string
	Role         string
	Privileges   []string
}

// HasPrivilege reports whether p was granted directly to the user.
func (u *User) HasPrivilege(p string) bool {
	for _, have := range u.Privileges {
		if have == p {
			return true
		}
	}
	return false
}

// CheckPassword compares password against the stored bcrypt hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// Users reads and writes the users table.
type Users struct {
	db *DB
}

// Users returns the user repository.
func (db *DB) Users() *Users {
	return &Users{db: db}
}

// Lookup loads a user through q, which is normally the request scope's
// querier. A nil q uses the pool.
func (u *Users) Lookup(ctx context.Context, q Querier, name string) (*User, error) {
	if q == nil {
		q = u.db.conn
	}
	start := time.Now()
	user, err := lookupUser(ctx, q, name)
	if errors.Is(err, ErrUserNotFound) {
		metrics.RecordDBQuery("user_lookup", time.Since(start), nil)
	} else {
		metrics.RecordDBQuery("user_lookup", time.Since(start), err)
	}
	return user, err
}

func lookupUser(ctx context.Context, q Querier, name string) (*User, error) {
	user := &User{}
	err := q.QueryRowContext(ctx,
		`SELECT name, password_hash, role FROM users WHERE name = ?`, name).
		Scan(&user.Name, &user.PasswordHash, &user.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %q: %w", name, err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT privilege FROM user_privileges WHERE user_name = ? ORDER BY privilege`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load privileges for %q: %w", name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan privilege: %w", err)
		}
		user.Privileges = append(user.Privileges, p)
	}
	return user, rows.Err()
}

// Create inserts a user with a bcrypt-hashed password and optional direct
// privileges.
func (u *Users) Create(ctx context.Context, name, password, role string, privileges ...string) error {
	if name == "" || password == "" {
		return errors.New("user name and password are required")
	}
	if role == "" {
		role = "user"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	tx, err := u.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (name, password_hash, role) VALUES (?, ?, ?)`, name, string(hash), role); err != nil {
		return fmt.Errorf("failed to create user %q: %w", name, err)
	}
	sort.Strings(privileges)
	for _, p := range privileges {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_privileges (user_name, privilege) VALUES (?, ?)`, name, p); err != nil {
			return fmt.Errorf("failed to grant %q to %q: %w", p, name, err)
		}
	}
	return tx.Commit()
}

// Exists reports whether a user with name exists.
func (u *Users) Exists(ctx context.Context, name string) (bool, error) {
	var n int
	if err := u.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE name = ?`, name).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetPassword replaces a user's password.
func (u *Users) SetPassword(ctx context.Context, name, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	res, err := u.db.conn.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE name = ?`, string(hash), name)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}
