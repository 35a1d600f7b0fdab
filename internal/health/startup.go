// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/sosync/internal/config"
	"github.com/ManuGH/sosync/internal/kv"
	"github.com/ManuGH/sosync/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment before a runtime starts.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	switch cfg.Storage.Backend {
	case kv.BackendFile, kv.BackendSQLite, kv.BackendBadger:
		if err := checkDataDir(logger, cfg.Storage.Path); err != nil {
			return fmt.Errorf("data directory check failed: %w", err)
		}
	case kv.BackendMemory:
		logger.Warn().
			Str("store_backend", cfg.Storage.Backend).
			Msg("in-memory store; history and credentials are lost on exit")
	}

	if cfg.API.BaseURL == "" && cfg.Realtime.Endpoint == "" {
		logger.Warn().Msg("neither api.baseURL nor realtime.endpoint configured; relying on the stored endpoint")
	}

	tempDir := filepath.Clean(os.TempDir())
	dataDir := filepath.Clean(cfg.Storage.Path)
	if cfg.Storage.Backend != kv.BackendMemory && tempDir != "." &&
		(dataDir == tempDir || strings.HasPrefix(dataDir, tempDir+string(filepath.Separator))) {
		logger.Warn().
			Str("data_dir", cfg.Storage.Path).
			Msg("data directory is under temp; history may be lost on reboot")
	}

	logger.Info().Msg("startup checks passed")
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str("path", path).Msg("data directory is writable")
	return nil
}
