// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package history keeps a capped, persisted log of resolved sessions per
// reporting entity.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ManuGH/sosync/internal/domain/sos/model"
	"github.com/ManuGH/sosync/internal/kv"
	"github.com/ManuGH/sosync/internal/metrics"
)

// DefaultCapacity applies to both device and console caches.
const DefaultCapacity = 20

const keyPrefix = "history/"

// Cache is a FIFO ring of ResolvedSessionRecord persisted under one kv key.
// Records are stored oldest-first; List returns them newest-first.
type Cache struct {
	store    kv.Store
	key      string
	capacity int

	mu sync.Mutex
}

// New returns a cache for entity. capacity <= 0 selects DefaultCapacity.
func New(store kv.Store, entity string, capacity int) (*Cache, error) {
	entity = strings.TrimSpace(entity)
	if entity == "" {
		return nil, fmt.Errorf("history: entity is required")
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{store: store, key: keyPrefix + entity, capacity: capacity}, nil
}

// Capacity reports the configured cap.
func (c *Cache) Capacity() int { return c.capacity }

// Append records a resolution. A record for a session already present is
// ignored, so replayed resolution events stay idempotent. Entries beyond the
// cap are evicted oldest-first.
func (c *Cache) Append(ctx context.Context, rec model.ResolvedSessionRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.load(ctx)
	if err != nil {
		return err
	}
	if rec.SessionID != "" {
		for _, r := range records {
			if r.SessionID == rec.SessionID {
				return nil
			}
		}
	}
	records = append(records, rec)
	evicted := 0
	if over := len(records) - c.capacity; over > 0 {
		records = append([]model.ResolvedSessionRecord(nil), records[over:]...)
		evicted = over
	}
	if err := kv.PutJSON(ctx, c.store, c.key, records); err != nil {
		return fmt.Errorf("history: persist: %w", err)
	}
	metrics.AddHistoryEvictions(evicted)
	return nil
}

// List returns up to limit records, most recent first. limit <= 0 returns all.
func (c *Cache) List(ctx context.Context, limit int) ([]model.ResolvedSessionRecord, error) {
	c.mu.Lock()
	records, err := c.load(ctx)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	n := len(records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.ResolvedSessionRecord, 0, n)
	for i := len(records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, records[i])
	}
	return out, nil
}

// Clear drops every record for the entity.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Delete(ctx, c.key)
}

func (c *Cache) load(ctx context.Context) ([]model.ResolvedSessionRecord, error) {
	var records []model.ResolvedSessionRecord
	err := kv.GetJSON(ctx, c.store, c.key, &records)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: load: %w", err)
	}
	// A cap lowered between runs applies on read too.
	if over := len(records) - c.capacity; over > 0 {
		records = records[over:]
	}
	return records, nil
}

// Entities lists every entity with a persisted history.
func Entities(ctx context.Context, store kv.Store) ([]string, error) {
	keys, err := store.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, keyPrefix))
	}
	return out, nil
}
