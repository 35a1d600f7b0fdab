// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package credentials

import (
	"context"
	"testing"

	"github.com/ManuGH/sosync/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	backing := kv.NewMemoryStore()
	s := New(backing)

	assert.False(t, s.Authenticated(ctx))

	require.NoError(t, s.SaveToken(ctx, " abc123 "))
	require.NoError(t, s.SaveProfile(ctx, Profile{ID: 7, Username: "asha", Email: "a@example.com"}))

	reloaded := New(backing)
	tok, err := reloaded.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc123", tok)
	p, err := reloaded.Profile(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "asha", p.Username)

	require.NoError(t, reloaded.Clear(ctx))
	assert.False(t, reloaded.Authenticated(ctx))
	_, err = backing.Get(ctx, tokenKey)
	require.ErrorIs(t, err, kv.ErrNotFound)
	_, err = backing.Get(ctx, profileKey)
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func TestStore_NewTokenDropsProfile(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemoryStore())
	require.NoError(t, s.SaveToken(ctx, "one"))
	require.NoError(t, s.SaveProfile(ctx, Profile{ID: 1, Username: "old"}))
	require.NoError(t, s.SaveToken(ctx, "two"))

	p, err := s.Profile(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestStore_RejectsEmptyToken(t *testing.T) {
	require.Error(t, New(kv.NewMemoryStore()).SaveToken(context.Background(), "  "))
}
