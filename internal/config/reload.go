// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	xglog "github.com/ManuGH/sosync/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 500 * time.Millisecond

// watchedFields are compared after every reload. The connectivity flag marks
// fields that invalidate the transport verdict.
var watchedFields = []struct {
	name         string
	connectivity bool
	value        func(AppConfig) any
}{
	{"realtime.endpoint", true, func(c AppConfig) any { return c.Realtime.Endpoint }},
	{"realtime.path", true, func(c AppConfig) any { return c.Realtime.Path }},
	{"api.baseURL", true, func(c AppConfig) any { return c.API.BaseURL }},
	{"reporter.interval", false, func(c AppConfig) any { return c.Reporter.Interval }},
	{"units.staleAfter", false, func(c AppConfig) any { return c.Units.StaleAfter }},
	{"logLevel", false, func(c AppConfig) any { return c.LogLevel }},
}

// ChangedFields lists the watched fields that differ between a and b.
func ChangedFields(a, b AppConfig) []string {
	var out []string
	for _, f := range watchedFields {
		if f.value(a) != f.value(b) {
			out = append(out, f.name)
		}
	}
	return out
}

// ConnectivityChanged reports whether a reload moved either backend, in
// which case the transport verdict must be re-probed.
func ConnectivityChanged(a, b AppConfig) bool {
	for _, f := range watchedFields {
		if f.connectivity && f.value(a) != f.value(b) {
			return true
		}
	}
	return false
}

// Holder serves the last valid configuration and swaps it on reload. A
// failed reload leaves the current snapshot in place.
type Holder struct {
	current atomic.Pointer[AppConfig]
	loader  *Loader
	logger  zerolog.Logger

	mu        sync.Mutex
	listeners []chan<- AppConfig

	wg sync.WaitGroup
}

func NewHolder(initial AppConfig, loader *Loader) *Holder {
	h := &Holder{loader: loader, logger: xglog.WithComponent("config")}
	h.current.Store(&initial)
	return h
}

func (h *Holder) Get() AppConfig { return *h.current.Load() }

// RegisterListener adds ch to the reload fan-out. Delivery never blocks: a
// listener whose buffer is full misses that update.
func (h *Holder) RegisterListener(ch chan<- AppConfig) {
	h.mu.Lock()
	h.listeners = append(h.listeners, ch)
	h.mu.Unlock()
}

// Reload re-reads file and environment and publishes the result if it
// validates.
func (h *Holder) Reload(_ context.Context) error {
	next, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).Str(xglog.FieldEvent, "config.reload_failed").Msg("configuration reload rejected")
		return fmt.Errorf("reload config: %w", err)
	}
	prev := h.current.Swap(&next)

	h.mu.Lock()
	listeners := slices.Clone(h.listeners)
	h.mu.Unlock()
	for _, ch := range listeners {
		select {
		case ch <- next:
		default:
			h.logger.Warn().Str(xglog.FieldEvent, "config.listener_skip").Msg("listener busy, update dropped")
		}
	}

	h.logger.Info().
		Str(xglog.FieldEvent, "config.reloaded").
		Strs("changed", ChangedFields(*prev, next)).
		Msg("configuration reloaded")
	return nil
}

// StartWatcher reloads on changes to the config file until ctx ends. It is a
// no-op when configuration comes from defaults and environment only.
func (h *Holder) StartWatcher(ctx context.Context) error {
	path := h.loader.Path()
	if path == "" {
		h.logger.Debug().Str(xglog.FieldEvent, "config.watcher_disabled").Msg("no config file to watch")
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// The directory is watched so rename-on-save editors are seen.
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	h.logger.Info().Str(xglog.FieldEvent, "config.watcher_started").Str("path", path).Msg("watching config file")

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer w.Close()
		h.watch(ctx, w, filepath.Clean(path))
	}()
	return nil
}

// Wait blocks until the watcher goroutine has exited.
func (h *Holder) Wait() { h.wg.Wait() }

func (h *Holder) watch(ctx context.Context, w *fsnotify.Watcher, path string) {
	debounce := time.NewTimer(reloadDebounce)
	debounce.Stop()
	defer debounce.Stop()

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != path || ev.Op&relevant == 0 {
				continue
			}
			debounce.Reset(reloadDebounce)
		case <-debounce.C:
			// Errors are logged by Reload.
			_ = h.Reload(ctx)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Str(xglog.FieldEvent, "config.watcher_error").Msg("config watcher error")
		}
	}
}
