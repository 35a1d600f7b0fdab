// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package history

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/sosync/internal/domain/sos/model"
	"github.com/ManuGH/sosync/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(i int) model.ResolvedSessionRecord {
	return model.ResolvedSessionRecord{
		SessionID:  fmt.Sprintf("s-%02d", i),
		ResolvedAt: time.Date(2025, 3, 1, 12, i, 0, 0, time.UTC),
		ResolvedBy: "device",
	}
}

func ids(recs []model.ResolvedSessionRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.SessionID)
	}
	return out
}

func TestCache_NeverExceedsCapacityAndEvictsOldestFirst(t *testing.T) {
	ctx := context.Background()
	c, err := New(kv.NewMemoryStore(), "device-1", 3)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		require.NoError(t, c.Append(ctx, record(i)))
		all, err := c.List(ctx, 0)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(all), 3)
	}

	all, err := c.List(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"s-05", "s-04", "s-03"}, ids(all))

	top, err := c.List(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"s-05", "s-04"}, ids(top))
}

func TestCache_DefaultCapacityIsTwenty(t *testing.T) {
	ctx := context.Background()
	c, err := New(kv.NewMemoryStore(), "console", 0)
	require.NoError(t, err)
	assert.Equal(t, 20, c.Capacity())

	for i := 0; i < 25; i++ {
		require.NoError(t, c.Append(ctx, record(i)))
	}
	all, err := c.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 20)
	assert.Equal(t, "s-24", all[0].SessionID)
	assert.Equal(t, "s-05", all[19].SessionID)
}

func TestCache_DuplicateSessionIgnored(t *testing.T) {
	ctx := context.Background()
	c, err := New(kv.NewMemoryStore(), "console", 5)
	require.NoError(t, err)
	require.NoError(t, c.Append(ctx, record(1)))
	require.NoError(t, c.Append(ctx, record(1)))
	all, err := c.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCache_SurvivesRestartAndKeepsEntitiesApart(t *testing.T) {
	ctx := context.Background()
	store, err := kv.OpenFileStore(t.TempDir())
	require.NoError(t, err)

	a, err := New(store, "device-a", 5)
	require.NoError(t, err)
	b, err := New(store, "device-b", 5)
	require.NoError(t, err)
	require.NoError(t, a.Append(ctx, record(1)))
	require.NoError(t, b.Append(ctx, record(2)))

	reopened, err := New(store, "device-a", 5)
	require.NoError(t, err)
	all, err := reopened.List(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"s-01"}, ids(all))

	entities, err := Entities(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []string{"device-a", "device-b"}, entities)
}

func TestCache_ConcurrentAppendsSerialize(t *testing.T) {
	ctx := context.Background()
	c, err := New(kv.NewMemoryStore(), "console", 50)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, c.Append(ctx, record(i)))
		}(i)
	}
	wg.Wait()

	all, err := c.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 30, "no append may be lost to a read-modify-write race")
}

func TestNew_RequiresEntity(t *testing.T) {
	_, err := New(kv.NewMemoryStore(), "  ", 5)
	require.Error(t, err)
}
