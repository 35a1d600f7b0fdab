// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/sosync/internal/kv"
	"github.com/ManuGH/sosync/internal/persistence/sqlite"
)

const storeProbeKey = "health/probe"

// StoreChecker round-trips a small blob through the kv store.
type StoreChecker struct {
	store kv.Store
}

// NewStoreChecker creates a checker for the configured storage backend.
func NewStoreChecker(store kv.Store) *StoreChecker {
	return &StoreChecker{store: store}
}

func (c *StoreChecker) Name() string { return "storage" }

func (c *StoreChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	want := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	if err := c.store.Put(ctx, storeProbeKey, want); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "write failed"}
	}
	got, err := c.store.Get(ctx, storeProbeKey)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "read failed"}
	}
	if string(got) != string(want) {
		return CheckResult{Status: StatusUnhealthy, Message: "read back a different value"}
	}
	if err := c.store.Delete(ctx, storeProbeKey); err != nil && !errors.Is(err, kv.ErrNotFound) {
		return CheckResult{Status: StatusDegraded, Error: err.Error(), Message: "cleanup failed"}
	}
	return CheckResult{Status: StatusHealthy, Message: "read/write ok"}
}

// SQLiteChecker runs PRAGMA quick_check on the sqlite backend.
type SQLiteChecker struct {
	db *sql.DB
}

func NewSQLiteChecker(db *sql.DB) *SQLiteChecker {
	return &SQLiteChecker{db: db}
}

func (c *SQLiteChecker) Name() string { return "sqlite_integrity" }

func (c *SQLiteChecker) Check(ctx context.Context) CheckResult {
	problems, err := sqlite.VerifyIntegrity(ctx, c.db, sqlite.QuickCheck)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if len(problems) > 0 {
		return CheckResult{Status: StatusUnhealthy, Message: "corruption detected", Error: strings.Join(problems, "; ")}
	}
	return CheckResult{Status: StatusHealthy, Message: "ok"}
}

// RealtimeChecker reports the socket connection. A dropped socket only
// degrades the process: the HTTP route and reconnect loop remain.
type RealtimeChecker struct {
	connected func() bool
}

func NewRealtimeChecker(connected func() bool) *RealtimeChecker {
	return &RealtimeChecker{connected: connected}
}

func (c *RealtimeChecker) Name() string { return "realtime" }

func (c *RealtimeChecker) Check(context.Context) CheckResult {
	if c.connected == nil {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	if !c.connected() {
		return CheckResult{Status: StatusDegraded, Message: "socket disconnected"}
	}
	return CheckResult{Status: StatusHealthy, Message: "connected"}
}

// FuncChecker adapts a plain function into a Checker.
type FuncChecker struct {
	name string
	fn   func(ctx context.Context) error
	// failStatus is reported when fn fails.
	failStatus Status
}

// NewFuncChecker wraps fn; a failing fn reports failStatus.
func NewFuncChecker(name string, failStatus Status, fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, fn: fn, failStatus: failStatus}
}

func (c *FuncChecker) Name() string { return c.name }

func (c *FuncChecker) Check(ctx context.Context) CheckResult {
	if err := c.fn(ctx); err != nil {
		return CheckResult{Status: c.failStatus, Error: fmt.Sprintf("%v", err)}
	}
	return CheckResult{Status: StatusHealthy}
}
