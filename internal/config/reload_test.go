// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHolder_ReloadKeepsOldConfigOnError(t *testing.T) {
	path := writeConfig(t, "history:\n  capacity: 30\n")
	loader := NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(initial, loader)

	require.NoError(t, os.WriteFile(path, []byte("history:\n  capacity: 0\n"), 0o600))
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, 30, h.Get().History.Capacity)

	require.NoError(t, os.WriteFile(path, []byte("history:\n  capacity: 40\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))
	assert.Equal(t, 40, h.Get().History.Capacity)
}

func TestHolder_WatcherReloadsAndNotifies(t *testing.T) {
	path := writeConfig(t, "realtime:\n  endpoint: 10.0.0.5:5000\n")
	loader := NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(initial, loader)

	updates := make(chan AppConfig, 1)
	h.RegisterListener(updates)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		h.Wait()
	}()
	require.NoError(t, h.StartWatcher(ctx))

	require.NoError(t, os.WriteFile(path, []byte("realtime:\n  endpoint: 10.0.0.6:5000\n"), 0o600))

	select {
	case cfg := <-updates:
		assert.Equal(t, "10.0.0.6:5000", cfg.Realtime.Endpoint)
		assert.True(t, ConnectivityChanged(initial, cfg))
	case <-time.After(5 * time.Second):
		t.Fatal("no reload notification")
	}
	assert.Equal(t, "10.0.0.6:5000", h.Get().Realtime.Endpoint)
}

func TestHolder_WatcherDisabledWithoutFile(t *testing.T) {
	cfg, err := NewLoader("", "test").Load()
	require.NoError(t, err)
	h := NewHolder(cfg, NewLoader("", "test"))
	require.NoError(t, h.StartWatcher(context.Background()))
	h.Wait()
	assert.False(t, ConnectivityChanged(cfg, h.Get()))
}

func TestChangedFields(t *testing.T) {
	a := Defaults()
	b := a
	assert.Empty(t, ChangedFields(a, b))
	assert.False(t, ConnectivityChanged(a, b))

	b.LogLevel = "debug"
	b.Units.StaleAfter = 5 * time.Minute
	assert.Equal(t, []string{"units.staleAfter", "logLevel"}, ChangedFields(a, b))
	assert.False(t, ConnectivityChanged(a, b))

	b.Realtime.Path = "/io/"
	assert.True(t, ConnectivityChanged(a, b))
}
