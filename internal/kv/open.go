// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package kv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	Path    string
	Redis   RedisConfig
}

// Open creates a Store based on the backend configuration.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile, "":
		return OpenFileStore(cfg.Path)
	case BackendSQLite:
		if err := ensureDir(cfg.Path); err != nil {
			return nil, err
		}
		return OpenSQLiteStore(ctx, filepath.Join(cfg.Path, "sosync.sqlite"))
	case BackendBadger:
		if err := ensureDir(cfg.Path); err != nil {
			return nil, err
		}
		return OpenBadgerStore(filepath.Join(cfg.Path, "badger"))
	case BackendRedis:
		return OpenRedisStore(ctx, cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}

func ensureDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("kv: storage.path is required for this backend")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("kv: create dir: %w", err)
	}
	return nil
}
