// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package sqlite opens local SQLite databases and versions their schema.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

type options struct {
	busyTimeout time.Duration
	maxConns    int
}

// Option tunes Open.
type Option func(*options)

// WithBusyTimeout sets how long a writer waits on a locked database.
func WithBusyTimeout(d time.Duration) Option { return func(o *options) { o.busyTimeout = d } }

// WithMaxConns caps the pool. WAL allows concurrent readers beside one writer.
func WithMaxConns(n int) Option { return func(o *options) { o.maxConns = n } }

// Open opens path in WAL mode with the busy timeout applied to every pooled
// connection, and pings it.
func Open(ctx context.Context, path string, opts ...Option) (*sql.DB, error) {
	o := options{busyTimeout: 5 * time.Second, maxConns: 4}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxConns <= 0 {
		o.maxConns = 1
	}

	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", o.busyTimeout.Milliseconds()))
	q.Add("_pragma", "synchronous(NORMAL)")
	dsn := (&url.URL{Scheme: "file", Opaque: path, RawQuery: q.Encode()}).String()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(o.maxConns)
	db.SetMaxIdleConns(o.maxConns)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", path, err)
	}
	return db, nil
}

// Migrate applies the statements of migrations whose index is at or above the
// stored PRAGMA user_version, in one transaction, and returns the resulting
// version. Entries must never be edited once released; append new ones.
func Migrate(ctx context.Context, db *sql.DB, migrations []string) (int, error) {
	var current int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return 0, fmt.Errorf("sqlite: read user_version: %w", err)
	}
	if current > len(migrations) {
		return current, fmt.Errorf("sqlite: database schema v%d is newer than this build (v%d)", current, len(migrations))
	}
	if current == len(migrations) {
		return current, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return current, fmt.Errorf("sqlite: begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for i := current; i < len(migrations); i++ {
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			return current, fmt.Errorf("sqlite: migration %d: %w", i+1, err)
		}
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", len(migrations))); err != nil {
		return current, fmt.Errorf("sqlite: write user_version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return current, fmt.Errorf("sqlite: commit migration: %w", err)
	}
	return len(migrations), nil
}
